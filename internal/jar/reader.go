// Package jar reads and writes zip-structured class containers. Loading
// feeds the classpath index and the primary class set; writing re-encodes
// classes with frame synthesis and a frameless fallback.
package jar

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nk/veiljar/internal/classfile"
	"github.com/nk/veiljar/internal/ctxlog"
	"github.com/nk/veiljar/internal/hierarchy"
)

// ClassSuffix marks archive entries treated as class files.
const ClassSuffix = ".class"

// ArchiveError reports a container that could not be opened or read as a
// zip archive. Fatal for the primary input, skip-with-warning for libraries.
type ArchiveError struct {
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// LoadLibraries ingests zero or more library containers into the classpath
// index, structure-only. Libraries load concurrently; no per-library problem
// is fatal: a missing file is a warning, an unreadable archive aborts only
// that library, an unparseable entry skips only that class. Absences surface
// later as missing-class failures at query time.
func LoadLibraries(ctx context.Context, index *hierarchy.Index, paths []string) {
	logger := ctxlog.FromContext(ctx)
	var g errgroup.Group
	for _, path := range paths {
		path := path
		g.Go(func() error {
			if _, err := os.Stat(path); err != nil {
				logger.Warn("Library could not be found and will be ignored.", "path", path)
				return nil
			}
			logger.Info("Loading library.", "path", path)
			if err := loadLibrary(index, path, logger); err != nil {
				logger.Error("Library could not be opened as a zip file.", "path", path, "error", err)
			}
			return nil
		})
	}
	// Workers never return errors; they log and move on.
	_ = g.Wait()
}

func loadLibrary(index *hierarchy.Index, path string, logger *slog.Logger) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if isDir(f) || !strings.HasSuffix(f.Name, ClassSuffix) {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			logger.Error("Error while reading library class.", "entry", f.Name, "error", err)
			continue
		}
		c, err := classfile.Decode(data, classfile.ModeStructure)
		if err != nil {
			logger.Error("Error while loading library class.", "entry", strings.TrimSuffix(f.Name, ClassSuffix), "error", err)
			continue
		}
		index.Put(c)
	}
	return nil
}

// LoadInput reads the primary container. An unopenable archive is fatal.
// Class entries decode fully; an entry that merely looks like a class file
// is demoted to an opaque resource so it round-trips untouched. Classes old
// enough to carry jsr/ret subroutines get them inlined before any later
// stage sees the code.
func LoadInput(ctx context.Context, index *hierarchy.Index, path string) (map[string]*classfile.Class, map[string][]byte, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Loading input.", "path", path)

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, &ArchiveError{Path: path, Err: err}
	}
	defer zr.Close()

	classes := make(map[string]*classfile.Class)
	resources := make(map[string][]byte)
	for _, f := range zr.File {
		if isDir(f) {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, nil, &ArchiveError{Path: path, Err: fmt.Errorf("entry %s: %w", f.Name, err)}
		}
		if !strings.HasSuffix(f.Name, ClassSuffix) {
			resources[f.Name] = data
			continue
		}

		c, err := classfile.Decode(data, classfile.ModeFull)
		if err != nil {
			logger.Warn("Could not load entry as a class, keeping it as a resource.", "entry", f.Name, "error", err)
			resources[f.Name] = data
			continue
		}
		if c.Major <= classfile.MajorJava5 {
			inlineLegacySubroutines(c, logger)
		}
		classes[c.Name] = c
		index.Put(c)
	}

	logger.Info("Input loaded.", "classes", len(classes), "resources", len(resources))
	return classes, resources, nil
}

// inlineLegacySubroutines rewrites jsr/ret control flow in a pre-Java-6
// class. A shape the inliner cannot handle keeps the method unmodified;
// these classes predate stack map frames, so nothing downstream breaks.
func inlineLegacySubroutines(c *classfile.Class, logger *slog.Logger) {
	n, err := classfile.InlineSubroutines(c)
	if err != nil {
		var unsupported *classfile.UnsupportedSubroutineError
		if errors.As(err, &unsupported) {
			logger.Warn("Leaving legacy subroutine in place.", "class", c.Name, "reason", unsupported.Reason)
			return
		}
		logger.Warn("Subroutine inlining failed.", "class", c.Name, "error", err)
		return
	}
	if n > 0 {
		logger.Debug("Inlined legacy subroutines.", "class", c.Name, "methods", n)
	}
}

func isDir(f *zip.File) bool {
	return strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir()
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
