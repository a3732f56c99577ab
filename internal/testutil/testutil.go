// Package testutil holds the shared fixtures of the test suite: a
// thread-safe log buffer, class file factories and jar builders.
package testutil

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nk/veiljar/internal/classfile"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// ClassBytes encodes a minimal public class extending super and implementing
// the given interfaces.
func ClassBytes(t *testing.T, name, super string, interfaces ...string) []byte {
	t.Helper()
	b := classfile.NewBuilder(name, super, classfile.AccPublic|classfile.AccSuper)
	for _, iface := range interfaces {
		b.Implements(iface)
	}
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

// InterfaceBytes encodes a minimal interface. Interfaces always extend
// java/lang/Object.
func InterfaceBytes(t *testing.T, name string, extends ...string) []byte {
	t.Helper()
	b := classfile.NewBuilder(name, "java/lang/Object",
		classfile.AccPublic|classfile.AccInterface|classfile.AccAbstract)
	for _, iface := range extends {
		b.Implements(iface)
	}
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

// ObjectBytes encodes a stand-in java/lang/Object so fixtures never depend
// on a real JDK runtime jar.
func ObjectBytes(t *testing.T) []byte {
	t.Helper()
	data, err := classfile.NewBuilder("java/lang/Object", "", classfile.AccPublic|classfile.AccSuper).Bytes()
	require.NoError(t, err)
	return data
}

// BuildJar writes a zip archive under dir with the given entries and returns
// its path. Entry names are taken verbatim; class entries should already
// carry the .class suffix.
func BuildJar(t *testing.T, dir, name string, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for entryName, data := range entries {
		w, err := zw.Create(entryName)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

// ReadJar opens a zip archive and returns its file entries by name.
func ReadJar(t *testing.T, path string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	entries := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		rc.Close()
		require.NoError(t, err)
		entries[f.Name] = buf.Bytes()
	}
	return entries
}
