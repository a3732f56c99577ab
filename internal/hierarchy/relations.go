package hierarchy

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// closureCacheSize bounds the per-node descendant closure cache. Closures
// are cheap to rebuild, so an eviction only costs one extra BFS.
const closureCacheSize = 4096

type closure struct {
	gen     uint64
	members map[string]struct{}
}

// Relations answers assignability and least-common-supertype queries against
// a hierarchy graph, reproducing the bytecode verifier's merge semantics
// without loading classes.
//
// Descendant closures are memoized per node in an LRU keyed by class name.
// The graph may still be growing while queries run, so every hit is
// revalidated against the graph generation; a stale entry is recomputed,
// which keeps results identical to uncached recomputation.
type Relations struct {
	graph    *Graph
	closures *lru.Cache[string, *closure]
}

// Graph returns the underlying hierarchy graph.
func (r *Relations) Graph() *Graph {
	return r.graph
}

// NewRelations creates a relation engine over the graph.
func NewRelations(graph *Graph) *Relations {
	cache, err := lru.New[string, *closure](closureCacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &Relations{graph: graph, closures: cache}
}

// IsAssignableFrom reports whether a value of type b can be assigned to a
// variable of type a. Both names must resolve; an unknown class is a
// *MissingClassError, never a silent false.
func (r *Relations) IsAssignableFrom(a, b string) (bool, error) {
	if a == ObjectClass || a == b {
		return true, nil
	}
	// Ensure both nodes exist before consulting the closure: b may have been
	// indexed after a's closure was cached, and materializing its node is
	// what links it to its ancestors and bumps the generation.
	if _, err := r.graph.Ensure(a); err != nil {
		return false, err
	}
	if _, err := r.graph.Ensure(b); err != nil {
		return false, err
	}
	descendants, err := r.descendants(a)
	if err != nil {
		return false, err
	}
	_, ok := descendants[b]
	return ok, nil
}

// descendants returns the transitive child closure of name. Classes can be
// reached along several interface paths, hence the visited set.
func (r *Relations) descendants(name string) (map[string]struct{}, error) {
	gen := r.graph.Generation()
	if cached, ok := r.closures.Get(name); ok && cached.gen == gen {
		return cached.members, nil
	}

	node, err := r.graph.Ensure(name)
	if err != nil {
		return nil, err
	}
	all := make(map[string]struct{})
	queue := make([]string, 0, len(node.children))
	for child := range node.children {
		queue = append(queue, child)
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if _, seen := all[current]; seen {
			continue
		}
		all[current] = struct{}{}
		childNode, err := r.graph.Ensure(current)
		if err != nil {
			return nil, err
		}
		for child := range childNode.children {
			queue = append(queue, child)
		}
	}

	// Ensure calls above may have grown the graph; cache against the
	// generation the closure is actually valid for.
	r.closures.Add(name, &closure{gen: r.graph.Generation(), members: all})
	return all, nil
}

// CommonSupertype computes the least common supertype of a and b the way
// the verifier merges two reference types at a frame merge point.
func (r *Relations) CommonSupertype(a, b string) (string, error) {
	if a == ObjectClass || b == ObjectClass {
		return ObjectClass, nil
	}

	first, err := r.deriveAncestor(a, b)
	if err != nil {
		return "", err
	}
	if first != ObjectClass {
		return first, nil
	}
	second, err := r.deriveAncestor(b, a)
	if err != nil {
		return "", err
	}
	if second != ObjectClass {
		return second, nil
	}

	// Neither direction produced anything below the root: climb both
	// superclass chains in lock step and merge those.
	superA, err := r.superOf(a)
	if err != nil {
		return "", err
	}
	superB, err := r.superOf(b)
	if err != nil {
		return "", err
	}
	return r.CommonSupertype(superA, superB)
}

// deriveAncestor walks toward an ancestor of y starting from x. Interfaces
// never merge to anything narrower than the root: that simplification is
// load-bearing verifier behavior, not a shortcut.
func (r *Relations) deriveAncestor(x, y string) (string, error) {
	assignable, err := r.IsAssignableFrom(x, y)
	if err != nil {
		return "", err
	}
	if assignable {
		return x, nil
	}
	if assignable, err = r.IsAssignableFrom(y, x); err != nil {
		return "", err
	}
	if assignable {
		return y, nil
	}

	cx, err := r.graph.index.Resolve(x)
	if err != nil {
		return "", err
	}
	cy, err := r.graph.index.Resolve(y)
	if err != nil {
		return "", err
	}
	if cx.IsInterface() || cy.IsInterface() {
		return ObjectClass, nil
	}

	// Walk x's superclass chain until it dominates y. Terminates at the
	// root, which is assignable from everything.
	step := x
	for {
		if step, err = r.superOf(step); err != nil {
			return "", err
		}
		if assignable, err = r.IsAssignableFrom(step, y); err != nil {
			return "", err
		}
		if assignable {
			return step, nil
		}
	}
}

// superOf returns the superclass of name, treating a missing super as the
// root so malformed chains still terminate.
func (r *Relations) superOf(name string) (string, error) {
	c, err := r.graph.index.Resolve(name)
	if err != nil {
		return "", err
	}
	if c.SuperName == "" {
		return ObjectClass, nil
	}
	return c.SuperName, nil
}
