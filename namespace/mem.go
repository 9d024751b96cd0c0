// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// A memory-only implementation of Namespace, grounded on lldb's MemFiler:
// content is kept in fixed size pages allocated lazily, with a shared
// all-zero page answering reads of pages never written.

package namespace

import (
	"context"
	"fmt"
	"sync"

	"github.com/cznic/mathutil"
)

const (
	pgBits = 12
	pgSize = 1 << pgBits
	pgMask = pgSize - 1
)

var zeroPage [pgSize]byte

// MemNamespace is a memory backed Namespace. It is not persistent across
// process restarts, but its fault injection hooks (FailWriteAt,
// FailNextWrite, FailNextRead) make it the vehicle for the
// crash-consistency tests in flog_test.go: a write can be made to fail
// partway through a multi-step operation exactly once, simulating a
// process or power loss at that point.
type MemNamespace struct {
	mu   sync.Mutex
	m    map[int64]*[pgSize]byte
	size int64

	failNextWrite bool
	failNextRead  bool

	writeSeq  int64 // count of Write calls so far, for FailWriteAt
	failWrite int64 // 0 disabled, else the 1-indexed Write call to fail
}

// NewMemNamespace returns a new MemNamespace of the given size, reading
// back as all zeros everywhere until written.
func NewMemNamespace(size int64) *MemNamespace {
	return &MemNamespace{m: map[int64]*[pgSize]byte{}, size: size}
}

// FailNextWrite causes the next Write or SetZero call to return an error
// instead of performing the write, then clears itself. It is a test-only
// fault injection hook; the reference implementation exposes an analogous
// global fault-injection counter, out of scope of the engine itself.
func (f *MemNamespace) FailNextWrite() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNextWrite = true
}

// FailNextRead is the read-side counterpart of FailNextWrite.
func (f *MemNamespace) FailNextRead() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNextRead = true
}

// FailWriteAt arranges for the n'th Write call counting from now
// (1-indexed) to fail instead of landing, letting a test pick a precise
// point inside a multi-write operation — such as between a flog commit
// and its map install — to freeze durable state at and simulate a crash
// there. The counter resets after firing once.
func (f *MemNamespace) FailWriteAt(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeSeq = 0
	f.failWrite = n
}

// Size implements Namespace.
func (f *MemNamespace) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Read implements Namespace.
func (f *MemNamespace) Read(_ context.Context, _ int, b []byte, off int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNextRead {
		f.failNextRead = false
		return fmt.Errorf("namespace: injected read failure at off %d", off)
	}

	if off < 0 || off+int64(len(b)) > f.size {
		return fmt.Errorf("namespace: read [%d,%d) out of bounds (size %d)", off, off+int64(len(b)), f.size)
	}

	pgI := off >> pgBits
	pgO := int(off & pgMask)
	rem := len(b)
	for rem != 0 {
		pg := f.m[pgI]
		if pg == nil {
			pg = &zeroPage
		}
		nc := copy(b[:mathutil.Min(rem, pgSize-pgO)], pg[pgO:])
		pgI++
		pgO = 0
		rem -= nc
		b = b[nc:]
	}
	return nil
}

// Write implements Namespace.
func (f *MemNamespace) Write(_ context.Context, _ int, b []byte, off int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNextWrite {
		f.failNextWrite = false
		return fmt.Errorf("namespace: injected write failure at off %d", off)
	}

	f.writeSeq++
	if f.failWrite != 0 && f.writeSeq == f.failWrite {
		f.failWrite = 0
		return fmt.Errorf("namespace: injected write failure (call #%d) at off %d", f.writeSeq, off)
	}

	return f.writeAtLocked(b, off)
}

func (f *MemNamespace) writeAtLocked(b []byte, off int64) error {
	if off < 0 {
		return fmt.Errorf("namespace: write at negative off %d", off)
	}

	end := off + int64(len(b))
	pgI := off >> pgBits
	pgO := int(off & pgMask)
	rem := len(b)
	for rem != 0 {
		pg := f.m[pgI]
		if pg == nil {
			pg = new([pgSize]byte)
			f.m[pgI] = pg
		}
		nc := copy(pg[pgO:], b)
		pgI++
		pgO = 0
		rem -= nc
		b = b[nc:]
	}
	f.size = mathutil.MaxInt64(f.size, end)
	return nil
}

// SetZero implements Namespace.
func (f *MemNamespace) SetZero(_ context.Context, _ int, n int64, off int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNextWrite {
		f.failNextWrite = false
		return fmt.Errorf("namespace: injected zero-fill failure at off %d", off)
	}

	end := off + n
	for n > 0 {
		pgI := off >> pgBits
		pgO := int(off & pgMask)
		nc := int64(pgSize - pgO)
		if n < nc {
			nc = n
		}
		if nc == pgSize {
			delete(f.m, pgI)
		} else if pg := f.m[pgI]; pg != nil {
			copy(pg[pgO:pgO+int(nc)], zeroPage[:])
		}
		off += nc
		n -= nc
	}
	if end > f.size {
		f.size = end
	}
	return nil
}

// Map implements Namespace. MemNamespace never supports direct mapping;
// the engine falls back to Read/Write.
func (f *MemNamespace) Map(_ int, _ int64, _ int) ([]byte, bool) { return nil, false }

// Sync implements Namespace.
func (f *MemNamespace) Sync(_ []byte) error { return nil }

// IsZeroed implements Namespace. Freshly addressed MemNamespace pages are
// always the shared zero page until written.
func (f *MemNamespace) IsZeroed() bool { return true }
