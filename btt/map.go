// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Map engine (C5): single 32-bit entry reads/writes through the namespace,
// guarded by a per-cache-line map lock so that at most one writer holds a
// given (arena, bucket) pair at a time. Readers never take this lock; they
// go through the RTT interlock in rtt.go instead.

package btt

import (
	"context"
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/cznic/btt/namespace"
)

func (a *arena) isV1() bool { return a.info.Major == 1 }

// readRawMapEntry reads map[premapLBA] with no locking; callers that need
// the read-modify-write atomicity of a map update must go through
// mapLock/mapUnlock instead.
func (a *arena) readRawMapEntry(ctx context.Context, ns namespace.Namespace, lane int, premapLBA uint32) (mapEntry, error) {
	var b [4]byte
	if err := ns.Read(ctx, lane, b[:], a.mapEntryOff(premapLBA)); err != nil {
		return 0, errIO("readRawMapEntry", err)
	}
	return mapEntry(binary.LittleEndian.Uint32(b[:])), nil
}

func (a *arena) writeRawMapEntry(ctx context.Context, ns namespace.Namespace, lane int, premapLBA uint32, e mapEntry) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(e))
	if err := ns.Write(ctx, lane, b[:], a.mapEntryOff(premapLBA)); err != nil {
		return errIO("writeRawMapEntry", err)
	}
	return nil
}

// mapLock acquires the map-lock bucket covering premapLBA and reads its
// current entry. On a v1-format arena an initial-state entry is
// synthesized as the identity mapping premapLBA|NORMAL. On a v2-format
// arena an initial-state entry instead draws a fresh block from the lane
// allocator (C11); a non-initial entry becomes the block this lane will
// reuse on its next write.
//
// The caller MUST eventually call mapUnlock or mapAbort exactly once to
// release the bucket.
func (a *arena) mapLock(ctx context.Context, ns namespace.Namespace, log *zap.Logger, lane int, premapLBA uint32) (mapEntry, error) {
	idx := a.mapLockIndex(premapLBA)
	a.mapLocks[idx].Lock()

	entry, err := a.readRawMapEntry(ctx, ns, lane, premapLBA)
	if err != nil {
		a.mapLocks[idx].Unlock()
		return 0, err
	}

	if a.isV1() {
		if entry.isInitial() {
			entry = newMapEntry(premapLBA, mapEntryNormal)
		}
	} else {
		if entry.isInitial() {
			block := a.getLaneFree(lane)
			entry = newMapEntry(block, mapEntryNormal)
			traceDetail(log, "map.lock.v2.alloc", zap.Int("lane", lane), zap.Uint32("lba", premapLBA), zap.Uint32("block", block))
		} else {
			a.freeMu.Lock()
			a.laneFree[lane] = entry.lba()
			a.freeMu.Unlock()
		}
	}

	return entry, nil
}

// mapUnlock installs entry into map[premapLBA] and releases the bucket
// taken by mapLock. Any failure here latches the arena into the error
// state: partial I/O to the map cannot be safely reasoned about without a
// full rescan.
func (a *arena) mapUnlock(ctx context.Context, ns namespace.Namespace, lane int, premapLBA uint32, entry mapEntry) error {
	idx := a.mapLockIndex(premapLBA)
	defer a.mapLocks[idx].Unlock()

	if err := a.writeRawMapEntry(ctx, ns, lane, premapLBA, entry); err != nil {
		return err
	}
	return nil
}

// mapAbort releases the bucket taken by mapLock without writing anything.
func (a *arena) mapAbort(premapLBA uint32) {
	a.mapLocks[a.mapLockIndex(premapLBA)].Unlock()
}
