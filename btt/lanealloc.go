// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// v2 lane allocator (C11): v2-format arenas carry no flog. Instead the
// free block a lane will write to next lives entirely in DRAM, rebuilt at
// every Init by scanning the map for internal blocks no external LBA
// currently references. One block is handed to each lane up front; the
// rest stay on arena.freeList for getLaneFree to draw from as lanes touch
// LBAs that have never been written (map entries still in the initial
// state).

package btt

import (
	"context"

	"go.uber.org/zap"

	"github.com/cznic/btt/namespace"
)

// buildFreeList scans the map once at Init time, populating a.freeList
// with every internal block not currently referenced by a non-initial map
// entry, then seeds up to nlane lanes with one free block apiece.
//
// Entries whose lba() falls outside InternalNLBA are out-of-range; this
// is logged and the entry skipped rather than flagging the arena,
// matching the reference free-list scan's observed behavior.
func (a *arena) buildFreeList(ctx context.Context, ns namespace.Namespace, log *zap.Logger, nlane int) error {
	used := make([]bool, a.info.InternalNLBA)
	for lba := uint32(0); lba < a.info.ExternalNLBA; lba++ {
		entry, err := a.readRawMapEntry(ctx, ns, 0, lba)
		if err != nil {
			return err
		}
		if entry.isInitial() {
			// v2: no block has been drawn for this LBA yet, so there is
			// nothing to mark used.
			continue
		}
		ilba := entry.lba()
		if ilba >= a.info.InternalNLBA {
			log.Warn("buildFreeList: out-of-range map entry skipped", zap.Int("arena", a.id), zap.Uint32("lba", lba), zap.Uint32("block", ilba))
			continue
		}
		used[ilba] = true
	}

	free := make([]uint32, 0, a.info.InternalNLBA-a.info.ExternalNLBA)
	for i, u := range used {
		if !u {
			free = append(free, uint32(i))
		}
	}
	a.freeList = free

	for lane := 0; lane < nlane && len(a.freeList) > 0; lane++ {
		n := len(a.freeList) - 1
		a.laneFree[lane] = a.freeList[n]
		a.freeList = a.freeList[:n]
	}
	return nil
}

// getLaneFree pops one block off the shared free list into lane's slot
// and returns it. Invariant 2 (external_nlba + nfree == internal_nlba)
// guarantees the list never empties in normal operation; if it does
// anyway the previous block assigned to this lane is handed back rather
// than panicking, since every caller treats the result as "a" free block,
// not necessarily a fresh one.
func (a *arena) getLaneFree(lane int) uint32 {
	a.freeMu.Lock()
	defer a.freeMu.Unlock()

	if len(a.freeList) == 0 {
		return a.laneFree[lane]
	}
	n := len(a.freeList) - 1
	block := a.freeList[n]
	a.freeList = a.freeList[:n]
	a.laneFree[lane] = block
	return block
}
