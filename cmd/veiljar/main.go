package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nk/veiljar/internal/app"
	"github.com/nk/veiljar/internal/cli"
	"github.com/nk/veiljar/internal/hclcfg"
	"github.com/nk/veiljar/internal/transform"
)

// main is the entrypoint for the veiljar application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	loader := hclcfg.NewLoader()
	registry := transform.NewRegistry()
	veiljarApp, err := app.NewApp(outW, appConfig, loader, registry)
	if err != nil {
		return err
	}

	return veiljarApp.Run(context.Background())
}
