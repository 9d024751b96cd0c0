// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// An os.File backed Namespace, grounded on lldb's SimpleFileFiler/OSFiler:
// WriteAt/ReadAt straight through to the file, with Sync doing the actual
// persistence barrier the btt engine relies on for its durable-on-return
// contract.

package namespace

import (
	"context"
	"os"

	"github.com/cznic/fileutil"
)

var _ Namespace = (*FileNamespace)(nil)

// FileNamespace is a Namespace backed by a regular os.File. Every Write and
// SetZero is followed by an fsync before returning, satisfying the
// durable-on-return contract the btt engine assumes of its namespace.
//
// FileNamespace does not itself memory-map the file; callers wanting
// zero-copy reads for large scans should prefer a namespace.Map-capable
// implementation, which this is not (Map always reports false).
type FileNamespace struct {
	f    *os.File
	size int64
}

// OpenFileNamespace opens an existing file as a Namespace.
func OpenFileNamespace(name string) (*FileNamespace, error) {
	f, err := os.OpenFile(name, os.O_RDWR, 0666)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &FileNamespace{f: f, size: fi.Size()}, nil
}

// CreateFileNamespace creates a new file of the given size, mode 0666
// (before umask), usable as a Namespace. The file must not already exist.
func CreateFileNamespace(name string, size int64) (*FileNamespace, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return nil, err
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}

	return &FileNamespace{f: f, size: size}, nil
}

// Close closes the underlying file.
func (f *FileNamespace) Close() error { return f.f.Close() }

// Size implements Namespace.
func (f *FileNamespace) Size() int64 { return f.size }

// Read implements Namespace.
func (f *FileNamespace) Read(_ context.Context, _ int, b []byte, off int64) error {
	_, err := f.f.ReadAt(b, off)
	return err
}

// Write implements Namespace. The write is followed by Sync, making it
// durable before returning as the engine's contract requires.
func (f *FileNamespace) Write(_ context.Context, _ int, b []byte, off int64) error {
	if _, err := f.f.WriteAt(b, off); err != nil {
		return err
	}

	return f.f.Sync()
}

// SetZero implements Namespace, punching a hole where the underlying
// filesystem supports it and otherwise writing explicit zero bytes.
func (f *FileNamespace) SetZero(_ context.Context, _ int, n int64, off int64) error {
	if err := fileutil.PunchHole(f.f, off, n); err == nil {
		return f.f.Sync()
	}

	zeros := make([]byte, 1<<20)
	for n > 0 {
		chunk := int64(len(zeros))
		if n < chunk {
			chunk = n
		}
		if _, err := f.f.WriteAt(zeros[:chunk], off); err != nil {
			return err
		}
		off += chunk
		n -= chunk
	}
	return f.f.Sync()
}

// Map implements Namespace. FileNamespace never supports direct mapping.
func (f *FileNamespace) Map(_ int, _ int64, _ int) ([]byte, bool) { return nil, false }

// Sync implements Namespace.
func (f *FileNamespace) Sync(_ []byte) error { return f.f.Sync() }

// IsZeroed implements Namespace. A freshly ftruncate'd regular file reads
// back as zero on every mainstream filesystem.
func (f *FileNamespace) IsZeroed() bool { return true }
