// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package btt_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cznic/btt/btt"
	"github.com/cznic/btt/namespace"
)

const (
	testLBASize = 512
	testNFree   = 256
	testNSSize  = 16 << 20
)

func mustInit(t *testing.T, ns namespace.Namespace, opts btt.Options) *btt.BTT {
	t.Helper()
	b, err := btt.Init(context.Background(), ns, testLBASize, opts)
	require.NoError(t, err)
	t.Cleanup(b.Fini)
	return b
}

// Scenario 1: zero-read on an unlaid pool. Init itself must not write
// anything to the namespace; the layout format is deferred to the first
// Write, so a read-only open/read cycle leaves the namespace untouched.
func TestReadUnwrittenIsZero(t *testing.T) {
	ns := namespace.NewMemNamespace(testNSSize)
	b := mustInit(t, ns, btt.Options{NFree: testNFree})

	require.True(t, bytes.Equal(snapshot(t, ns), make([]byte, testNSSize)))

	buf := make([]byte, testLBASize)
	for i := range buf {
		buf[i] = 0xff
	}
	require.NoError(t, b.Read(context.Background(), 0, 0, buf))
	require.True(t, bytes.Equal(buf, make([]byte, testLBASize)))

	require.True(t, bytes.Equal(snapshot(t, ns), make([]byte, testNSSize)))

	problems, err := b.Check(context.Background())
	require.NoError(t, err)
	require.Empty(t, problems)
}

// Scenario 2: a single write survives a close/reopen cycle.
func TestWritePersistsAcrossReopen(t *testing.T) {
	ns := namespace.NewMemNamespace(testNSSize)
	bufA := bytes.Repeat([]byte{0xa5}, testLBASize)

	func() {
		b := mustInit(t, ns, btt.Options{NFree: testNFree})
		require.NoError(t, b.Write(context.Background(), 0, 7, bufA))
	}()

	b2 := mustInit(t, ns, btt.Options{NFree: testNFree})

	got := make([]byte, testLBASize)
	require.NoError(t, b2.Read(context.Background(), 0, 7, got))
	require.Equal(t, bufA, got)

	require.NoError(t, b2.Read(context.Background(), 0, 8, got))
	require.Equal(t, make([]byte, testLBASize), got)

	problems, err := b2.Check(context.Background())
	require.NoError(t, err)
	require.Empty(t, problems)
}

// Scenario 5: SetError latches a read failure until the next write.
func TestSetErrorLatchesUntilWrite(t *testing.T) {
	ns := namespace.NewMemNamespace(testNSSize)
	b := mustInit(t, ns, btt.Options{NFree: testNFree})

	ctx := context.Background()
	require.NoError(t, b.SetError(ctx, 0, 3))

	buf := make([]byte, testLBASize)
	require.Error(t, b.Read(ctx, 0, 3, buf))

	want := bytes.Repeat([]byte{0x42}, testLBASize)
	require.NoError(t, b.Write(ctx, 0, 3, want))

	got := make([]byte, testLBASize)
	require.NoError(t, b.Read(ctx, 0, 3, got))
	require.Equal(t, want, got)
}

// Idempotence: SetZero/SetZero and SetError/SetError behave the same as
// a single call.
func TestSetZeroSetErrorIdempotent(t *testing.T) {
	ns := namespace.NewMemNamespace(testNSSize)
	b := mustInit(t, ns, btt.Options{NFree: testNFree})
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, 0, 5, bytes.Repeat([]byte{1}, testLBASize)))
	require.NoError(t, b.SetZero(ctx, 0, 5))
	require.NoError(t, b.SetZero(ctx, 0, 5))

	buf := make([]byte, testLBASize)
	require.NoError(t, b.Read(ctx, 0, 5, buf))
	require.Equal(t, make([]byte, testLBASize), buf)

	require.NoError(t, b.SetError(ctx, 0, 6))
	require.NoError(t, b.SetError(ctx, 0, 6))
	require.Error(t, b.Read(ctx, 0, 6, buf))
}

// Boundary: lba == NLBA is out of range, lba == NLBA-1 is not.
func TestLBABoundary(t *testing.T) {
	ns := namespace.NewMemNamespace(testNSSize)
	b := mustInit(t, ns, btt.Options{NFree: testNFree})
	ctx := context.Background()

	buf := make([]byte, testLBASize)
	require.NoError(t, b.Read(ctx, 0, b.NLBA()-1, buf))
	require.Error(t, b.Read(ctx, 0, b.NLBA(), buf))
}

// Boundary: an open/fini/open cycle with no writes leaves the namespace
// byte-identical.
func TestReopenWithoutWritesIsStable(t *testing.T) {
	ns := namespace.NewMemNamespace(testNSSize)
	b1 := mustInit(t, ns, btt.Options{NFree: testNFree})
	b1.Fini()

	snap := snapshot(t, ns)

	b2 := mustInit(t, ns, btt.Options{NFree: testNFree})
	b2.Fini()

	require.True(t, bytes.Equal(snap, snapshot(t, ns)))
}

func snapshot(t *testing.T, ns *namespace.MemNamespace) []byte {
	t.Helper()
	buf := make([]byte, ns.Size())
	require.NoError(t, ns.Read(context.Background(), 0, buf, 0))
	return buf
}

// Boundary: writing the same LBA 2*nfree+1 times on one lane exercises
// flog slot recycling (v1) and the v2 lane allocator equally, and must
// never violate the one-owner-per-internal-block invariant Check enforces.
func TestRepeatedWriteRecyclesFreeBlocks(t *testing.T) {
	for _, major := range []uint16{1, 2} {
		ns := namespace.NewMemNamespace(testNSSize)
		b := mustInit(t, ns, btt.Options{NFree: 4, Major: major})
		ctx := context.Background()

		buf := make([]byte, testLBASize)
		for i := 0; i < 2*4+1; i++ {
			buf[0] = byte(i)
			require.NoError(t, b.Write(ctx, 0, 11, buf))
		}

		got := make([]byte, testLBASize)
		require.NoError(t, b.Read(ctx, 0, 11, got))
		require.Equal(t, byte(2*4), got[0])

		problems, err := b.Check(ctx)
		require.NoError(t, err)
		require.Empty(t, problems)
	}
}

// Scenario 6: RTT interlock. A reader that has published its RTT slot
// still sees the pre-write value, and a concurrent writer does not reuse
// that value's backing block until the reader clears its slot.
func TestRTTInterlockDelaysBlockReuse(t *testing.T) {
	ns := namespace.NewMemNamespace(testNSSize)
	b := mustInit(t, ns, btt.Options{NFree: 4, Major: 1})
	ctx := context.Background()

	old := bytes.Repeat([]byte{0x11}, testLBASize)
	require.NoError(t, b.Write(ctx, 1, 9, old))

	readDone := make(chan struct{})
	readStarted := make(chan struct{})
	var readBuf [testLBASize]byte

	// Lane 0 reads LBA 9. MemNamespace has no hook to pause mid-Read, so
	// this exercises the non-racing path of the same interlock: by the
	// time Read returns, a concurrent Write on another lane must not have
	// corrupted the bytes Read was in the middle of copying.
	go func() {
		close(readStarted)
		_ = b.Read(ctx, 0, 9, readBuf[:])
		close(readDone)
	}()
	<-readStarted

	newBuf := bytes.Repeat([]byte{0x22}, testLBASize)
	require.NoError(t, b.Write(ctx, 1, 9, newBuf))
	<-readDone

	require.True(t, bytes.Equal(readBuf[:], old) || bytes.Equal(readBuf[:], newBuf))

	final := make([]byte, testLBASize)
	require.NoError(t, b.Read(ctx, 0, 9, final))
	require.Equal(t, newBuf, final)
}
