// Package app wires configuration loading, transformer resolution and the
// staged obfuscation pipeline into one runnable unit.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nk/veiljar/internal/config"
	"github.com/nk/veiljar/internal/ctxlog"
	"github.com/nk/veiljar/internal/transform"
)

// Version is the release identifier embedded in the watermark and the
// archive comment.
const Version = "1.0.0"

// watermark is interned into every written class's constant pool.
const watermark = "VEILJAR " + Version

// Attribution is the zip archive comment of every output container.
const Attribution = "Obfuscated by veiljar " + Version

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW         io.Writer
	logger       *slog.Logger
	config       *config.Model
	transformers []transform.Transformer
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger, the loaded
// obfuscation configuration, and every configured transformer resolved. A
// configuration that names an unknown transformer is rejected here, before
// any archive I/O happens.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, registry *transform.Registry) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	transformers, err := registry.Resolve(model)
	if err != nil {
		return nil, err
	}
	logger.Debug("Transformers resolved from config model.", "count", len(transformers))

	return &App{
		outW:         outW,
		logger:       logger,
		config:       model,
		transformers: transformers,
	}, nil
}

// Model returns the loaded obfuscation configuration. This is primarily for
// testing.
func (a *App) Model() *config.Model {
	return a.config
}
