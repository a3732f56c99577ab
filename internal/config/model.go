package config

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// DefaultCompressionLevel is used when the obfuscation block omits
// compression_level. It matches the deflate maximum.
const DefaultCompressionLevel = 9

// Model is the unified, format-agnostic representation of one obfuscation
// run: where to read, where to write, which libraries to resolve against,
// and which transformers to execute.
type Model struct {
	Input            string
	Output           string
	Libraries        []string
	CompressionLevel int
	TrashClasses     int
	Transformers     []*Transformer
}

// Transformer is the format-agnostic representation of a `transformer` block.
// Options are opaque to the core; each transformer interprets its own.
type Transformer struct {
	Name     string
	Priority *int
	Options  map[string]cty.Value
}

// Validate enforces the invariants every loader implementation must deliver.
func (m *Model) Validate() error {
	if m.Input == "" {
		return &Error{Msg: "input path is required"}
	}
	if m.Output == "" {
		return &Error{Msg: "output path is required"}
	}
	if m.CompressionLevel < 0 || m.CompressionLevel > 9 {
		return &Error{Msg: fmt.Sprintf("compression_level must be within 0..9, got %d", m.CompressionLevel)}
	}
	if m.TrashClasses < 0 {
		return &Error{Msg: fmt.Sprintf("trash_classes must not be negative, got %d", m.TrashClasses)}
	}
	return nil
}

// Error is a fatal configuration error: the run is rejected before any
// archive output is produced.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return "configuration error: " + e.Msg
}
