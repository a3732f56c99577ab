// Package transform defines the transformer contract, the mutable session
// every transformer operates on, and the ordered execution of a transformer
// list.
package transform

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/nk/veiljar/internal/classfile"
	"github.com/nk/veiljar/internal/config"
	"github.com/nk/veiljar/internal/ctxlog"
	"github.com/nk/veiljar/internal/hierarchy"
)

// Session is the full mutable state of one obfuscation run, threaded
// explicitly through every transformer. Constructed fresh per run; there is
// no ambient global state.
type Session struct {
	Config    *config.Model
	Index     *hierarchy.Index
	Classes   map[string]*classfile.Class
	Resources map[string][]byte
	Graph     *hierarchy.Graph
	Relations *hierarchy.Relations
}

// AddClass registers a synthesized class in the primary set and the
// classpath index, preserving the invariant that the primary set is a
// subset of the classpath.
func (s *Session) AddClass(c *classfile.Class) {
	s.Classes[c.Name] = c
	s.Index.Put(c)
}

// Transformer is one rewrite pass. Init always runs before Transform, and
// transformers execute in ascending Priority order.
type Transformer interface {
	Name() string
	Priority() int
	Init(s *Session)
	Transform(ctx context.Context) error
}

// Sort orders transformers by priority, stably, so equal priorities keep
// their configured order. Nil entries sink to the end; Run skips them.
func Sort(transformers []Transformer) {
	sort.SliceStable(transformers, func(i, j int) bool {
		return priorityOf(transformers[i]) < priorityOf(transformers[j])
	})
}

func priorityOf(t Transformer) int {
	if t == nil {
		return math.MaxInt
	}
	return t.Priority()
}

// Run executes the transformer list in order against the session. A nil
// entry is tolerated and skipped; a transformer error aborts the run.
func Run(ctx context.Context, s *Session, transformers []Transformer) error {
	logger := ctxlog.FromContext(ctx)
	for _, t := range transformers {
		if t == nil {
			continue
		}
		logger.Info("Running transformer.", "transformer", t.Name())
		start := time.Now()
		t.Init(s)
		if err := t.Transform(ctx); err != nil {
			return err
		}
		logger.Info("Finished running transformer.", "transformer", t.Name(), "duration_ms", time.Since(start).Milliseconds())
	}
	return nil
}
