package transform

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/nk/veiljar/internal/config"
)

// Factory builds a transformer from its configuration block. The model is
// available for transformers whose knobs live in the obfuscation block.
type Factory func(model *config.Model, block *config.Transformer) (Transformer, error)

// Registry maps configuration names to transformer factories: an ordered
// registry of capabilities, resolved once at startup.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry populated with the built-in transformers.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("trash_classes", newTrashClassesFromConfig)
	r.Register("member_shuffler", newMemberShufflerFromConfig)
	return r
}

// Register adds or replaces a factory. External transformer packages hook in
// through this before the App resolves the configuration.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Resolve instantiates every configured transformer. An unknown name is a
// configuration error.
func (r *Registry) Resolve(model *config.Model) ([]Transformer, error) {
	transformers := make([]Transformer, 0, len(model.Transformers))
	for _, block := range model.Transformers {
		factory, ok := r.factories[block.Name]
		if !ok {
			return nil, &config.Error{Msg: fmt.Sprintf("unknown transformer %q", block.Name)}
		}
		t, err := factory(model, block)
		if err != nil {
			return nil, err
		}
		transformers = append(transformers, t)
	}
	return transformers, nil
}

// intOption reads a numeric option, falling back to def when absent.
func intOption(options map[string]cty.Value, key string, def int64) (int64, error) {
	v, ok := options[key]
	if !ok || v.IsNull() {
		return def, nil
	}
	if v.Type() != cty.Number {
		return 0, &config.Error{Msg: fmt.Sprintf("option %q must be a number", key)}
	}
	i, _ := v.AsBigFloat().Int64()
	return i, nil
}

// priorityOr returns the configured priority override or the default.
func priorityOr(block *config.Transformer, def int) int {
	if block != nil && block.Priority != nil {
		return *block.Priority
	}
	return def
}
