package jar

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/klauspost/compress/flate"

	"github.com/nk/veiljar/internal/classfile"
	"github.com/nk/veiljar/internal/ctxlog"
	"github.com/nk/veiljar/internal/hierarchy"
)

// Writer emits the output container: re-encoded classes, verbatim resources
// and an attribution comment, deflated at a configured level.
type Writer struct {
	level       int
	watermark   string
	attribution string
}

// NewWriter creates a Writer. level is the deflate level (0..9); the
// watermark string is interned into every class's constant pool.
func NewWriter(level int, watermark, attribution string) *Writer {
	return &Writer{level: level, watermark: watermark, attribution: attribution}
}

// Write produces the output archive at path. Classes are encoded with frame
// synthesis backed by the relation engine; a class that fails is retried
// frameless, and a class that still fails is logged and left out rather than
// failing the run. An existing destination is renamed aside first.
func (w *Writer) Write(ctx context.Context, path string, classes map[string]*classfile.Class, resources map[string][]byte, rel *hierarchy.Relations) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Writing output.", "path", path)

	if err := renameAside(ctx, path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return &ArchiveError{Path: path, Err: err}
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, w.level)
	})

	opts := classfile.EncodeOptions{
		ComputeFrames: true,
		CommonSuper:   rel.CommonSupertype,
		ResolveClass: func(name string) error {
			_, err := rel.Graph().Index().Resolve(name)
			return err
		},
		Watermark: []string{w.watermark},
	}

	written := 0
	for _, name := range sortedKeys(classes) {
		c := classes[name]
		data, err := w.encodeClass(ctx, c, opts)
		if err != nil {
			logger.Error("Error writing class. Skipping.", "class", c.Name, "error", err)
			continue
		}
		if err := writeZipEntry(zw, c.Name+ClassSuffix, data); err != nil {
			logger.Error("Error writing class entry. Skipping.", "class", c.Name, "error", err)
			continue
		}
		written++
	}

	for _, name := range sortedKeys(resources) {
		if err := writeZipEntry(zw, name, resources[name]); err != nil {
			logger.Error("Error writing resource. Skipping.", "resource", name, "error", err)
		}
	}

	if err := zw.SetComment(w.attribution); err != nil {
		return &ArchiveError{Path: path, Err: err}
	}
	if err := zw.Close(); err != nil {
		return &ArchiveError{Path: path, Err: err}
	}
	logger.Info("Output written.", "classes", written, "resources", len(resources))
	return nil
}

// encodeClass tries the frame-computing encoding and degrades to the
// frameless mode when anything goes wrong. The frameless retry has no
// further fallback.
func (w *Writer) encodeClass(ctx context.Context, c *classfile.Class, opts classfile.EncodeOptions) ([]byte, error) {
	data, err := classfile.Encode(c, opts)
	if err == nil {
		return data, nil
	}
	ctxlog.FromContext(ctx).Warn("Error computing frames, skipping them (might cause runtime errors).",
		"class", c.Name, "error", err)
	return classfile.Encode(c, classfile.EncodeOptions{Watermark: opts.Watermark})
}

// renameAside moves an existing destination out of the way: never silently
// overwritten, never a reason to block the run.
func renameAside(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	backup := path + ".bak"
	for i := 1; ; i++ {
		if _, err := os.Stat(backup); err != nil {
			break
		}
		backup = fmt.Sprintf("%s.bak%d", path, i)
	}
	if err := os.Rename(path, backup); err != nil {
		return &ArchiveError{Path: path, Err: err}
	}
	ctxlog.FromContext(ctx).Info("Output file already exists, renamed aside.", "renamed_to", backup)
	return nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	entry, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = entry.Write(data)
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
