package app

// Config holds everything an App instance needs before the obfuscation
// configuration itself is loaded: where that configuration lives and how the
// process should log.
type Config struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}
