package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nk/veiljar/internal/classfile"
)

// zoo builds the recurring fixture: Dog and Cat extend Animal, Circle and
// Square implement Drawable, everything roots at a stand-in Object.
func zoo(t *testing.T) *Index {
	t.Helper()
	index := NewIndex()
	put(index, "java/lang/Object", "", false)
	put(index, "zoo/Animal", ObjectClass, false)
	put(index, "zoo/Dog", "zoo/Animal", false)
	put(index, "zoo/Cat", "zoo/Animal", false)
	put(index, "draw/Drawable", ObjectClass, true)
	put(index, "draw/Circle", ObjectClass, false, "draw/Drawable")
	put(index, "draw/Square", ObjectClass, false, "draw/Drawable")
	return index
}

func put(index *Index, name, super string, iface bool, interfaces ...string) {
	flags := uint16(classfile.AccPublic | classfile.AccSuper)
	if iface {
		flags = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
	}
	b := classfile.NewBuilder(name, super, flags)
	for _, i := range interfaces {
		b.Implements(i)
	}
	index.Put(b.Build())
}

func TestIndexResolveMissing(t *testing.T) {
	index := NewIndex()
	_, err := index.Resolve("no/Such")
	require.Error(t, err)
	var missing *MissingClassError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "no/Such", missing.Name)
}

func TestGraphEnsurePullsInAncestors(t *testing.T) {
	graph := NewGraph(zoo(t))
	node, err := graph.Ensure("zoo/Dog")
	require.NoError(t, err)
	assert.Equal(t, []string{"zoo/Animal"}, node.Parents)

	animal, err := graph.Ensure("zoo/Animal")
	require.NoError(t, err)
	assert.Contains(t, animal.Children(), "zoo/Dog")

	root, err := graph.Ensure(ObjectClass)
	require.NoError(t, err)
	assert.Contains(t, root.Children(), "zoo/Animal")
}

func TestGraphEnsureFailsOnMissingAncestor(t *testing.T) {
	index := NewIndex()
	put(index, "a/Orphan", "a/Ghost", false)
	graph := NewGraph(index)

	_, err := graph.Ensure("a/Orphan")
	require.Error(t, err)
	var missing *MissingClassError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "a/Ghost", missing.Name)
}

func TestGraphGenerationGrowsWithNodes(t *testing.T) {
	graph := NewGraph(zoo(t))
	before := graph.Generation()
	_, err := graph.Ensure("zoo/Dog")
	require.NoError(t, err)
	assert.Greater(t, graph.Generation(), before)

	// Re-ensuring creates nothing.
	after := graph.Generation()
	_, err = graph.Ensure("zoo/Dog")
	require.NoError(t, err)
	assert.Equal(t, after, graph.Generation())
}

func TestIsAssignableFromReflexive(t *testing.T) {
	rel := NewRelations(NewGraph(zoo(t)))
	ok, err := rel.IsAssignableFrom("zoo/Dog", "zoo/Dog")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestObjectAssignableFromEverything(t *testing.T) {
	rel := NewRelations(NewGraph(zoo(t)))
	for _, name := range []string{"zoo/Dog", "draw/Drawable", "draw/Circle"} {
		ok, err := rel.IsAssignableFrom(ObjectClass, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestIsAssignableFromIsAsymmetric(t *testing.T) {
	rel := NewRelations(NewGraph(zoo(t)))

	ok, err := rel.IsAssignableFrom("zoo/Animal", "zoo/Dog")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rel.IsAssignableFrom("zoo/Dog", "zoo/Animal")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsAssignableFromThroughInterface(t *testing.T) {
	rel := NewRelations(NewGraph(zoo(t)))
	ok, err := rel.IsAssignableFrom("draw/Drawable", "draw/Circle")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAssignableFromMissingClassIsAnError(t *testing.T) {
	rel := NewRelations(NewGraph(zoo(t)))
	_, err := rel.IsAssignableFrom("zoo/Animal", "no/Such")
	require.Error(t, err)
	var missing *MissingClassError
	require.ErrorAs(t, err, &missing)
}

func TestCommonSupertypeSiblings(t *testing.T) {
	rel := NewRelations(NewGraph(zoo(t)))

	super, err := rel.CommonSupertype("zoo/Dog", "zoo/Cat")
	require.NoError(t, err)
	assert.Equal(t, "zoo/Animal", super)

	// Commutative.
	super, err = rel.CommonSupertype("zoo/Cat", "zoo/Dog")
	require.NoError(t, err)
	assert.Equal(t, "zoo/Animal", super)
}

func TestCommonSupertypeAncestorWins(t *testing.T) {
	rel := NewRelations(NewGraph(zoo(t)))
	super, err := rel.CommonSupertype("zoo/Animal", "zoo/Dog")
	require.NoError(t, err)
	assert.Equal(t, "zoo/Animal", super)
}

func TestCommonSupertypeRootShortCircuit(t *testing.T) {
	rel := NewRelations(NewGraph(zoo(t)))
	super, err := rel.CommonSupertype(ObjectClass, "zoo/Dog")
	require.NoError(t, err)
	assert.Equal(t, ObjectClass, super)
}

func TestCommonSupertypeSharedInterfaceOnly(t *testing.T) {
	// Circle and Square share only Drawable; the verifier merge still lands
	// on the root rather than the interface.
	rel := NewRelations(NewGraph(zoo(t)))
	super, err := rel.CommonSupertype("draw/Circle", "draw/Square")
	require.NoError(t, err)
	assert.Equal(t, ObjectClass, super)
}

func TestCommonSupertypeInterfaceOfImplementor(t *testing.T) {
	// An interface merged with a class that implements it is the interface
	// itself: the implementor sits in the interface's descendant closure.
	rel := NewRelations(NewGraph(zoo(t)))

	super, err := rel.CommonSupertype("draw/Drawable", "draw/Circle")
	require.NoError(t, err)
	assert.Equal(t, "draw/Drawable", super)

	super, err = rel.CommonSupertype("draw/Circle", "draw/Drawable")
	require.NoError(t, err)
	assert.Equal(t, "draw/Drawable", super)
}

func TestCommonSupertypeInterfaceOfIndirectImplementor(t *testing.T) {
	// The interface dominates subclasses of its implementors too.
	index := zoo(t)
	put(index, "draw/Ring", "draw/Circle", false)
	rel := NewRelations(NewGraph(index))

	super, err := rel.CommonSupertype("draw/Drawable", "draw/Ring")
	require.NoError(t, err)
	assert.Equal(t, "draw/Drawable", super)
}

func TestCommonSupertypeInterfaceAndClass(t *testing.T) {
	rel := NewRelations(NewGraph(zoo(t)))
	super, err := rel.CommonSupertype("draw/Drawable", "zoo/Dog")
	require.NoError(t, err)
	assert.Equal(t, ObjectClass, super)
}

func TestClosureSeesClassesAddedAfterFirstQuery(t *testing.T) {
	index := zoo(t)
	rel := NewRelations(NewGraph(index))

	ok, err := rel.IsAssignableFrom("zoo/Animal", "zoo/Dog")
	require.NoError(t, err)
	assert.True(t, ok)

	// A transformer introduces a new subclass mid-run.
	put(index, "zoo/Wolf", "zoo/Animal", false)
	ok, err = rel.IsAssignableFrom("zoo/Animal", "zoo/Wolf")
	require.NoError(t, err)
	assert.True(t, ok)
}
