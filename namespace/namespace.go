// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package namespace defines the abstract, byte-addressable storage region
// the btt package runs on top of, along with two ready made
// implementations: an in-memory one for tests and fault injection, and an
// os.File backed one for real persistence.
//
// The BTT engine has no idea how, or even whether, a Namespace is actually
// durable. It only knows that Write, SetZero and Sync are required to have
// returned before the data they describe is considered safely on media.
package namespace

import "context"

// Namespace is the only dependency surface the btt engine consumes. It
// mirrors the five-callback table of the reference implementation this
// package's sibling is built from: read, write, set_zero, map and sync.
//
// Implementations are called concurrently from up to NLane distinct lanes;
// a Namespace MUST be safe for concurrent use by multiple lanes, but a
// single lane is never used concurrently by more than one goroutine at a
// time.
type Namespace interface {
	// Size reports the total addressable size of the namespace in bytes.
	Size() int64

	// Read copies len(b) bytes from namespace offset off into b.
	Read(ctx context.Context, lane int, b []byte, off int64) error

	// Write copies b to namespace offset off, durably, before returning.
	Write(ctx context.Context, lane int, b []byte, off int64) error

	// SetZero fills n bytes at off with zeros, durably, before returning.
	SetZero(ctx context.Context, lane int, n int64, off int64) error

	// Map returns a direct view of up to len bytes at off, if the
	// namespace supports it. The returned slice may be shorter than len.
	// A namespace that cannot provide direct views returns (nil, false).
	Map(lane int, off int64, length int) ([]byte, bool)

	// Sync flushes a range previously obtained from Map.
	Sync(b []byte) error

	// IsZeroed reports whether freshly addressable regions of this
	// namespace are guaranteed to read back as zero. The btt layout
	// writer does not consult it: formatting an arena always zeroes its
	// data, flog and map regions explicitly.
	IsZeroed() bool
}
