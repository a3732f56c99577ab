package hierarchy

import (
	"github.com/nk/veiljar/internal/classfile"
)

// Node is the hierarchy record of one class. Parents is fixed at creation;
// Children grows as more of the graph is explored and is only complete once
// every class that could name this one as an ancestor has been indexed.
type Node struct {
	Entry    *classfile.Class
	Parents  []string
	children map[string]struct{}
}

// Children returns the direct subclasses and implementors discovered so far.
func (n *Node) Children() map[string]struct{} {
	return n.children
}

// Graph lazily builds hierarchy nodes over a classpath index. Construction
// is memoized: a node is created at most once per name, and the node cache
// doubles as the guard against runaway recursion should the classpath data
// ever be malformed into a cycle.
type Graph struct {
	index *Index
	nodes map[string]*Node
	gen   uint64
}

// NewGraph creates an empty graph over the given classpath.
func NewGraph(index *Index) *Graph {
	return &Graph{index: index, nodes: make(map[string]*Node)}
}

// Index returns the classpath the graph resolves against.
func (g *Graph) Index() *Index {
	return g.index
}

// Generation increases whenever a node is created. Consumers caching
// anything derived from Children must revalidate against it.
func (g *Graph) Generation() uint64 {
	return g.gen
}

// Ensure returns the node for name, creating it and all its ancestors on
// first use. Each ancestor learns of the new child as a side effect. A name
// absent from the classpath is a *MissingClassError.
func (g *Graph) Ensure(name string) (*Node, error) {
	return g.ensure(name, "")
}

func (g *Graph) ensure(name, child string) (*Node, error) {
	node, ok := g.nodes[name]
	if !ok {
		entry, err := g.index.Resolve(name)
		if err != nil {
			return nil, err
		}
		node = &Node{Entry: entry, children: make(map[string]struct{})}
		if entry.SuperName != "" {
			node.Parents = append(node.Parents, entry.SuperName)
		}
		node.Parents = append(node.Parents, entry.Interfaces...)

		// Insert before recursing: the cache entry is the cycle guard.
		g.nodes[name] = node
		g.gen++

		for _, parent := range node.Parents {
			if _, err := g.ensure(parent, name); err != nil {
				return nil, err
			}
		}
	}
	if child != "" {
		node.children[child] = struct{}{}
	}
	return node, nil
}

// Build seeds the graph with every primary class; library ancestors are
// pulled in transitively. Called once per run after input loading.
func (g *Graph) Build(primary map[string]*classfile.Class) error {
	for name := range primary {
		if _, err := g.Ensure(name); err != nil {
			return err
		}
	}
	return nil
}
