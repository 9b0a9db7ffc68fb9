// Package streamfile builds the lazy Source/Sink suppliers spec.md's
// PayloadItem expects (manifest.ReadCloser/WriteCloser factories,
// resolved once at transfer time) from plain filesystem paths, for the
// CLI and for tests that want a file-backed item instead of an
// in-memory one.
//
// Adapted from the teacher's internal/storage.FileBlobStore, which put
// and got whole blobs under a content id in a flat directory. That
// whole-blob shape has no place here, spec.md's items are bound
// lazily to open streams, not looked up by id after the fact, so this
// package keeps only the "a plain file is the backing store" idea and
// rebuilds it around opening a single *os.File per call instead of
// Put/Get'ing byte slices.
package streamfile

import (
	"os"

	"github.com/viruswevh/ObscurCore/internal/manifest"
)

// Source returns a Source supplier (spec.md §3) that opens path
// read-only each time it is called.
func Source(path string) func() (manifest.ReadCloser, error) {
	return func() (manifest.ReadCloser, error) {
		return os.Open(path)
	}
}

// Sink returns a Sink supplier that creates (or truncates) path for
// writing each time it is called.
func Sink(path string) func() (manifest.WriteCloser, error) {
	return func() (manifest.WriteCloser, error) {
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	}
}
