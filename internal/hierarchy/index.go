// Package hierarchy models the combined classpath and the parent/child
// relation over it, and answers the two type-relation queries frame
// synthesis needs: assignability and least common supertype. Everything is
// computed from decoded class structure; no class is ever loaded or linked.
package hierarchy

import (
	"fmt"
	"sync"

	"github.com/nk/veiljar/internal/classfile"
)

// ObjectClass is the universal root type, assignable-from everything.
const ObjectClass = "java/lang/Object"

// MissingClassError reports a supertype or interface reference that no
// loaded container provides. It is fatal: type relations over an unknown
// class have no meaningful answer.
type MissingClassError struct {
	Name string
}

func (e *MissingClassError) Error() string {
	return fmt.Sprintf("%s is missing from the classpath", e.Name)
}

// Index is the combined classpath: every class available for resolution,
// primary input and libraries alike, keyed by internal name. Inserts are
// mutex-guarded so library containers can be ingested concurrently; after
// loading completes the index is effectively read-only.
type Index struct {
	mu      sync.RWMutex
	classes map[string]*classfile.Class
}

// NewIndex returns an empty classpath index.
func NewIndex() *Index {
	return &Index{classes: make(map[string]*classfile.Class)}
}

// Put registers a class under its qualified name. Later inserts win, which
// matches classpath shadowing order: the primary input is loaded last.
func (i *Index) Put(c *classfile.Class) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.classes[c.Name] = c
}

// Get returns the class for name, or nil.
func (i *Index) Get(name string) *classfile.Class {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.classes[name]
}

// Resolve returns the class for name or a *MissingClassError.
func (i *Index) Resolve(name string) (*classfile.Class, error) {
	if c := i.Get(name); c != nil {
		return c, nil
	}
	return nil, &MissingClassError{Name: name}
}

// Len returns the number of indexed classes.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.classes)
}
