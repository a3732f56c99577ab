package hclcfg

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/nk/veiljar/internal/config"
	"github.com/nk/veiljar/internal/ctxlog"
	"github.com/nk/veiljar/internal/testutil"
)

func load(t *testing.T, content string) (*config.Model, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "veiljar.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	buf := &testutil.SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)
	return NewLoader().Load(ctx, path)
}

func TestLoadFullConfig(t *testing.T) {
	model, err := load(t, `
obfuscation {
  input             = "app.jar"
  output            = "app-obf.jar"
  libraries         = ["rt.jar", "deps.jar"]
  compression_level = 4
  trash_classes     = 25
}

transformer "member_shuffler" {
  priority = 15
  options {
    seed = 42
  }
}
`)
	require.NoError(t, err)
	assert.Equal(t, "app.jar", model.Input)
	assert.Equal(t, "app-obf.jar", model.Output)
	assert.Equal(t, []string{"rt.jar", "deps.jar"}, model.Libraries)
	assert.Equal(t, 4, model.CompressionLevel)
	assert.Equal(t, 25, model.TrashClasses)

	require.Len(t, model.Transformers, 1)
	tr := model.Transformers[0]
	assert.Equal(t, "member_shuffler", tr.Name)
	require.NotNil(t, tr.Priority)
	assert.Equal(t, 15, *tr.Priority)
	assert.True(t, tr.Options["seed"].RawEquals(cty.NumberIntVal(42)))
}

func TestLoadAppliesCompressionDefault(t *testing.T) {
	model, err := load(t, `
obfuscation {
  input  = "a.jar"
  output = "b.jar"
}
`)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultCompressionLevel, model.CompressionLevel)
	assert.Empty(t, model.Transformers)
}

func TestLoadRejectsMissingObfuscationBlock(t *testing.T) {
	_, err := load(t, `transformer "member_shuffler" {}`)
	require.Error(t, err)
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "no obfuscation block")
}

func TestLoadRejectsInvalidCompressionLevel(t *testing.T) {
	_, err := load(t, `
obfuscation {
  input             = "a.jar"
  output            = "b.jar"
  compression_level = 12
}
`)
	require.Error(t, err)
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "compression_level")
}

func TestLoadRejectsMissingInput(t *testing.T) {
	_, err := load(t, `
obfuscation {
  output = "b.jar"
}
`)
	require.Error(t, err)
}

func TestLoadRejectsUnparseableFile(t *testing.T) {
	_, err := load(t, `obfuscation { this is not hcl`)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	buf := &testutil.SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)
	_, err := NewLoader().Load(ctx, filepath.Join(t.TempDir(), "absent.hcl"))
	require.Error(t, err)
}
