// Package hclcfg is the HCL implementation of the config.Loader interface.
package hclcfg

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/nk/veiljar/internal/config"
	"github.com/nk/veiljar/internal/ctxlog"
)

// Loader parses a veiljar HCL configuration file.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot decodes all top-level blocks of a configuration file.
type fileRoot struct {
	Obfuscation  *obfuscationBlock   `hcl:"obfuscation,block"`
	Transformers []*transformerBlock `hcl:"transformer,block"`
}

// obfuscationBlock is the HCL-specific schema of the `obfuscation` block.
type obfuscationBlock struct {
	Input            string   `hcl:"input"`
	Output           string   `hcl:"output"`
	Libraries        []string `hcl:"libraries,optional"`
	CompressionLevel *int     `hcl:"compression_level,optional"`
	TrashClasses     int      `hcl:"trash_classes,optional"`
}

// transformerBlock is the HCL-specific schema of a `transformer` block.
type transformerBlock struct {
	Name     string        `hcl:"name,label"`
	Priority *int          `hcl:"priority,optional"`
	Options  *optionsBlock `hcl:"options,block"`
}

// optionsBlock keeps transformer options as an open attribute set; each
// transformer decodes its own.
type optionsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// Load parses and validates the configuration file at path.
func (l *Loader) Load(ctx context.Context, path string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL config loader started.", "path", path)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, diags)
	}
	if root.Obfuscation == nil {
		return nil, &config.Error{Msg: fmt.Sprintf("%s has no obfuscation block", path)}
	}

	model := &config.Model{
		Input:            root.Obfuscation.Input,
		Output:           root.Obfuscation.Output,
		Libraries:        root.Obfuscation.Libraries,
		CompressionLevel: config.DefaultCompressionLevel,
		TrashClasses:     root.Obfuscation.TrashClasses,
	}
	if root.Obfuscation.CompressionLevel != nil {
		model.CompressionLevel = *root.Obfuscation.CompressionLevel
	}

	for _, block := range root.Transformers {
		options, err := extractOptions(block.Options)
		if err != nil {
			return nil, fmt.Errorf("transformer %q: %w", block.Name, err)
		}
		model.Transformers = append(model.Transformers, &config.Transformer{
			Name:     block.Name,
			Priority: block.Priority,
			Options:  options,
		})
	}

	if err := model.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("HCL config loaded.",
		"input", model.Input,
		"output", model.Output,
		"libraries", len(model.Libraries),
		"transformers", len(model.Transformers))
	return model, nil
}

// extractOptions evaluates the open attribute set of an options block into
// concrete cty values. Option expressions must be literal; there is no
// evaluation context to reference.
func extractOptions(block *optionsBlock) (map[string]cty.Value, error) {
	if block == nil || block.Body == nil {
		return nil, nil
	}
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid options block: %w", diags)
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	options := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("option %q: %w", name, diags)
		}
		options[name] = val
	}
	return options, nil
}
