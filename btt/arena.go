// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Run-time arena state (C7): a host-order mirror of the on-media info
// block for one arena, plus everything that exists only in memory: the
// per-lane flog state, the read-tracking table, the nfree map locks, the
// v2 in-DRAM free list and the arena's own error flag and info mutex.
//
// Arenas are held in a plain slice on the engine, indexed by arena id; no
// arena holds a pointer back to another, so there is no aliasing to reason
// about when one arena is torn down independently of the others.

package btt

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cznic/btt/namespace"
)

type laneFlog struct {
	entryOff [2]int64 // absolute namespace offsets of the two flog-pair halves
	next     int       // which half writeFlogEntry targets next
	current  flogEntry // validated, host-order current entry for this lane
}

type arena struct {
	id       int
	startOff int64 // absolute namespace offset of this arena's first byte
	size     int64 // byte span of this arena, startOff inclusive
	info     info  // host-order mirror of the on-media info block

	errored atomic.Bool // BTTINFO_FLAG_ERROR, mirrored for lock-free reads
	infoMu  sync.Mutex  // serializes info-block flag updates

	flogs []laneFlog // len == info.NFree, indexed by lane
	rtt   []atomic.Uint32

	mapLocks []sync.Mutex // len == info.NFree

	// v2 lane allocator (C11) state: the in-DRAM free list built once at
	// Init by scanning the map, and the block each lane currently holds
	// as its exclusive free block. freeMu serializes get against itself
	// across lanes; it is not the same lock as mapLocks.
	freeMu   sync.Mutex
	freeList []uint32
	laneFree []uint32
}

func newArena(id int, startOff int64, n *info) *arena {
	a := &arena{
		id:       id,
		startOff: startOff,
		info:     *n,
		flogs:    make([]laneFlog, n.NFree),
		rtt:      make([]atomic.Uint32, n.NFree),
		mapLocks: make([]sync.Mutex, n.NFree),
		laneFree: make([]uint32, n.NFree),
	}
	for i := range a.rtt {
		a.rtt[i].Store(mapEntryError)
	}
	a.errored.Store(n.Flags&flagErrorMask != 0)
	return a
}

func (a *arena) mapLockIndex(premapLBA uint32) uint32 {
	return (premapLBA * 4 / 64) % a.info.NFree
}

func (a *arena) mapEntryOff(premapLBA uint32) int64 {
	return a.startOff + int64(a.info.MapOff) + int64(premapLBA)*4
}

func (a *arena) dataBlockOff(internalLBA uint32) int64 {
	return a.startOff + int64(a.info.DataOff) + int64(internalLBA)*int64(a.info.InternalLBASize)
}

func (a *arena) flogPairOff(lane uint32) int64 {
	return a.startOff + int64(a.info.FlogOff) + int64(lane)*flogPairAlign
}

func (a *arena) infoOff() int64       { return a.startOff }
func (a *arena) backupInfoOff() int64 { return a.startOff + int64(a.info.InfoOff) }

// latchError flips the in-memory error flag, refusing every further
// Write, SetZero and SetError against this arena (Reads still proceed),
// and makes a best-effort
// attempt to persist BTTINFO_FLAG_ERROR into both info block copies so a
// later reopen sees the same state. The persist attempt's own failure is
// not reported: latchError is always called from a path that has already
// failed, and there is nothing further to roll back to.
func (a *arena) latchError(ctx context.Context, ns namespace.Namespace) {
	if a.errored.Swap(true) {
		return
	}

	a.infoMu.Lock()
	defer a.infoMu.Unlock()
	a.info.Flags |= flagError
	b := a.info.encode()
	_ = ns.Write(ctx, 0, b, a.infoOff())
	_ = ns.Write(ctx, 0, b, a.backupInfoOff())
}
