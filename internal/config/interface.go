package config

import "context"

// Loader abstracts the configuration file format away from the App. The HCL
// implementation lives in internal/hclcfg; tests construct Models directly.
type Loader interface {
	// Load parses the file at path into the format-agnostic model. The
	// returned model is already validated.
	Load(ctx context.Context, path string) (*Model, error)
}
