package app

import (
	"context"

	"github.com/nk/veiljar/internal/config"
	"github.com/nk/veiljar/internal/ctxlog"
	"github.com/nk/veiljar/internal/hierarchy"
	"github.com/nk/veiljar/internal/jar"
	"github.com/nk/veiljar/internal/transform"
)

// stage names the pipeline checkpoints in execution order. Each Run passes
// through every stage exactly once; there is no skipping and no going back.
type stage int

const (
	stageIdle stage = iota
	stageLibrariesLoaded
	stageInputLoaded
	stageHierarchyBuilt
	stageTransforming
	stageWritten
	stageDone
)

var stageNames = [...]string{
	"idle",
	"libraries_loaded",
	"input_loaded",
	"hierarchy_built",
	"transforming",
	"written",
	"done",
}

func (s stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Run executes the full obfuscation pipeline: library ingestion, input
// loading, hierarchy construction, the transformer chain, and archive
// writing. Any error aborts the run before the output stage touches disk,
// except writer errors themselves.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	current := stageIdle

	index := hierarchy.NewIndex()
	jar.LoadLibraries(ctx, index, a.config.Libraries)
	current = a.advance(current, stageLibrariesLoaded)

	classes, resources, err := jar.LoadInput(ctx, index, a.config.Input)
	if err != nil {
		return err
	}
	current = a.advance(current, stageInputLoaded)

	graph := hierarchy.NewGraph(index)
	if err := graph.Build(classes); err != nil {
		return err
	}
	relations := hierarchy.NewRelations(graph)
	current = a.advance(current, stageHierarchyBuilt)

	transformers := a.assembleTransformers()
	if len(transformers) == 0 {
		return &config.Error{Msg: "no transformers are enabled"}
	}
	transform.Sort(transformers)
	current = a.advance(current, stageTransforming)

	session := &transform.Session{
		Config:    a.config,
		Index:     index,
		Classes:   classes,
		Resources: resources,
		Graph:     graph,
		Relations: relations,
	}
	if err := transform.Run(ctx, session, transformers); err != nil {
		return err
	}

	writer := jar.NewWriter(a.config.CompressionLevel, watermark, Attribution)
	if err := writer.Write(ctx, a.config.Output, session.Classes, session.Resources, relations); err != nil {
		return err
	}
	current = a.advance(current, stageWritten)

	a.advance(current, stageDone)
	a.logger.Info("Obfuscation finished.")
	return nil
}

// assembleTransformers combines the configured transformer list with the
// decoy generator implied by a positive trash_classes count. An explicit
// trash_classes block wins over the implied one. The implied pass goes to
// the front of the list: the sort is stable, so on a priority tie decoys
// are generated before any configured pass runs.
func (a *App) assembleTransformers() []transform.Transformer {
	transformers := make([]transform.Transformer, len(a.transformers))
	copy(transformers, a.transformers)

	if a.config.TrashClasses > 0 && !a.hasTrashClasses() {
		decoys := transform.NewTrashClasses(a.config.TrashClasses, 0)
		transformers = append([]transform.Transformer{decoys}, transformers...)
	}
	return transformers
}

func (a *App) hasTrashClasses() bool {
	for _, block := range a.config.Transformers {
		if block.Name == "trash_classes" {
			return true
		}
	}
	return false
}

// advance moves the pipeline forward one checkpoint. Stages are strictly
// sequential; a jump means a missing step and is a programmer error.
func (a *App) advance(from, to stage) stage {
	if to != from+1 {
		panic("pipeline stage skipped: " + from.String() + " -> " + to.String())
	}
	a.logger.Debug("Pipeline stage reached.", "stage", to.String())
	return to
}
