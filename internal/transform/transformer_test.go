package transform

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nk/veiljar/internal/classfile"
	"github.com/nk/veiljar/internal/config"
	"github.com/nk/veiljar/internal/ctxlog"
	"github.com/nk/veiljar/internal/hierarchy"
	"github.com/nk/veiljar/internal/testutil"
)

// fake is a minimal transformer recording execution order.
type fake struct {
	name     string
	priority int
	trace    *[]string
	err      error
}

func (f *fake) Name() string                       { return f.name }
func (f *fake) Priority() int                      { return f.priority }
func (f *fake) Init(*Session)                      {}
func (f *fake) Transform(ctx context.Context) error {
	*f.trace = append(*f.trace, f.name)
	return f.err
}

func testSession(t *testing.T) (*Session, context.Context) {
	t.Helper()
	index := hierarchy.NewIndex()
	index.Put(classfile.NewBuilder(hierarchy.ObjectClass, "", classfile.AccPublic).Build())
	graph := hierarchy.NewGraph(index)
	s := &Session{
		Config:    &config.Model{},
		Index:     index,
		Classes:   make(map[string]*classfile.Class),
		Resources: make(map[string][]byte),
		Graph:     graph,
		Relations: hierarchy.NewRelations(graph),
	}
	buf := &testutil.SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return s, ctxlog.WithLogger(context.Background(), logger)
}

func TestSortOrdersByPriorityStably(t *testing.T) {
	var trace []string
	a := &fake{name: "a", priority: 20, trace: &trace}
	b := &fake{name: "b", priority: 10, trace: &trace}
	c := &fake{name: "c", priority: 20, trace: &trace}
	list := []Transformer{a, nil, b, c}

	Sort(list)
	assert.Equal(t, []Transformer{b, a, c, nil}, list)
}

func TestRunExecutesInOrderAndSkipsNil(t *testing.T) {
	s, ctx := testSession(t)
	var trace []string
	list := []Transformer{
		&fake{name: "first", trace: &trace},
		nil,
		&fake{name: "second", trace: &trace},
	}

	require.NoError(t, Run(ctx, s, list))
	assert.Equal(t, []string{"first", "second"}, trace)
}

func TestRunAbortsOnTransformerError(t *testing.T) {
	s, ctx := testSession(t)
	var trace []string
	boom := errors.New("boom")
	list := []Transformer{
		&fake{name: "first", trace: &trace, err: boom},
		&fake{name: "second", trace: &trace},
	}

	err := Run(ctx, s, list)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first"}, trace)
}

func TestSessionAddClassKeepsIndexInSync(t *testing.T) {
	s, _ := testSession(t)
	c := classfile.NewBuilder("x/Y", "java/lang/Object", classfile.AccPublic).Build()
	s.AddClass(c)

	assert.Same(t, c, s.Classes["x/Y"])
	assert.Same(t, c, s.Index.Get("x/Y"))
}

func TestRegistryResolveUnknownTransformer(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(&config.Model{Transformers: []*config.Transformer{{Name: "nope"}}})
	require.Error(t, err)
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "nope")
}

func TestRegistryResolvesBuiltins(t *testing.T) {
	r := NewRegistry()
	priority := 7
	model := &config.Model{Transformers: []*config.Transformer{
		{Name: "trash_classes"},
		{Name: "member_shuffler", Priority: &priority},
	}}

	list, err := r.Resolve(model)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Trash Classes", list[0].Name())
	assert.Equal(t, "Member Shuffler", list[1].Name())
	assert.Equal(t, 7, list[1].Priority())
}
