package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/nk/veiljar/internal/classfile"
	"github.com/nk/veiljar/internal/config"
	"github.com/nk/veiljar/internal/hierarchy"
)

func TestTrashClassesGeneratesRequestedCount(t *testing.T) {
	s, ctx := testSession(t)
	tr := NewTrashClasses(5, 42)
	tr.Init(s)

	require.NoError(t, tr.Transform(ctx))
	assert.Len(t, s.Classes, 5)
	for name, c := range s.Classes {
		assert.Same(t, c, s.Index.Get(name), name)
		assert.Equal(t, "java/lang/Object", c.SuperName)
		assert.NotZero(t, c.AccessFlags&classfile.AccSynthetic)
		assert.NotEmpty(t, c.Fields)
		require.Len(t, c.Methods, 1)
	}
}

func TestTrashClassesOutputEncodes(t *testing.T) {
	s, ctx := testSession(t)
	tr := NewTrashClasses(3, 7)
	tr.Init(s)
	require.NoError(t, tr.Transform(ctx))

	for name, c := range s.Classes {
		data, err := classfile.Encode(c, classfile.EncodeOptions{})
		require.NoError(t, err, name)
		reparsed, err := classfile.Decode(data, classfile.ModeFull)
		require.NoError(t, err, name)
		assert.Equal(t, name, reparsed.Name)
	}
}

func TestTrashClassesAvoidsNameCollisions(t *testing.T) {
	s, ctx := testSession(t)
	tr := NewTrashClasses(50, 1)
	tr.Init(s)
	require.NoError(t, tr.Transform(ctx))

	// Every generated name is unique: the map has exactly count entries and
	// none of them shadows the Object stand-in.
	assert.Len(t, s.Classes, 50)
	assert.NotContains(t, s.Classes, hierarchy.ObjectClass)
}

func TestTrashClassesCountFromOptions(t *testing.T) {
	tr, err := newTrashClassesFromConfig(
		&config.Model{TrashClasses: 2},
		&config.Transformer{Name: "trash_classes", Options: map[string]cty.Value{
			"count": cty.NumberIntVal(9),
			"seed":  cty.NumberIntVal(3),
		}},
	)
	require.NoError(t, err)

	s, ctx := testSession(t)
	tr.Init(s)
	require.NoError(t, tr.Transform(ctx))
	assert.Len(t, s.Classes, 9)
}

func TestTrashClassesRejectsNonNumericOption(t *testing.T) {
	_, err := newTrashClassesFromConfig(
		&config.Model{},
		&config.Transformer{Name: "trash_classes", Options: map[string]cty.Value{
			"count": cty.StringVal("lots"),
		}},
	)
	require.Error(t, err)
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
}

func TestMemberShufflerIsSeedDeterministic(t *testing.T) {
	build := func() *Session {
		s, _ := testSession(t)
		b := classfile.NewBuilder("x/Wide", "java/lang/Object", classfile.AccPublic|classfile.AccSuper)
		for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
			b.Field(classfile.AccPublic, name, "I")
		}
		s.AddClass(b.Build())
		return s
	}

	order := func(s *Session) []string {
		var names []string
		for _, f := range s.Classes["x/Wide"].Fields {
			names = append(names, f.Name)
		}
		return names
	}

	_, ctx := testSession(t)
	first, second := build(), build()
	original := order(first)

	tr1 := NewMemberShuffler(99)
	tr1.Init(first)
	require.NoError(t, tr1.Transform(ctx))

	tr2 := NewMemberShuffler(99)
	tr2.Init(second)
	require.NoError(t, tr2.Transform(ctx))

	assert.Equal(t, order(first), order(second))
	assert.NotEqual(t, original, order(first))
	assert.ElementsMatch(t, original, order(first))
}
