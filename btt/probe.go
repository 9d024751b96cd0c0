// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Arena prober (C8): splits a namespace into consecutive arenas of at
// most maxArenaSize each. If arena 0 already carries a valid info block,
// every arena is recovered from media. If arena 0's primary and backup
// info blocks both fail validation but are not both all zero, Init fails
// with a LayoutInconsistent error; the namespace is not treated as
// unformatted. If both are all zero, the whole namespace is
// assumed never laid out: probeArenas computes every arena's geometry
// without performing any namespace I/O, and leaves the actual format
// (UUID generation, zeroing, info blocks, v1 flog seeding) to
// formatAllArenas, invoked lazily by BTT.ensureLaidOut on the first real
// Write, SetError or non-superfluous SetZero. Arena 0's UUID becomes the
// parent UUID every later arena's info block is checked against (or
// stamped with, at format time), tying the whole namespace's arenas
// together.

package btt

import (
	"context"

	"github.com/google/uuid"

	"github.com/cznic/btt/namespace"
)

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// readInfoAt reads and decodes the infoSize-byte block at off, trying the
// primary location first and falling back to backupOff on any failure.
// If both fail and both the primary and the backup bytes are all zero, it
// reports ok=false rather than an error: a never-formatted arena.
func readInfoAt(ctx context.Context, ns namespace.Namespace, primaryOff, backupOff int64, parentUUID *[16]byte) (n *info, ok bool, err error) {
	buf := make([]byte, infoSize)
	if err := ns.Read(ctx, 0, buf, primaryOff); err != nil {
		return nil, false, errIO("readInfoAt: primary", err)
	}
	if n, derr := decodeInfo(buf, parentUUID); derr == nil {
		return n, true, nil
	}
	primaryZero := isAllZero(buf)

	if err := ns.Read(ctx, 0, buf, backupOff); err != nil {
		return nil, false, errIO("readInfoAt: backup", err)
	}
	if n, derr := decodeInfo(buf, parentUUID); derr == nil {
		return n, true, nil
	}
	if primaryZero && isAllZero(buf) {
		return nil, false, nil
	}
	return nil, false, errLayout("readInfoAt: both primary and backup info blocks are corrupt", primaryOff)
}

// formatArena stamps a fresh layout for a never-used arena and persists
// both info block copies immediately. Called from formatAllArenas at the
// point the deferred first-write format actually lands, never from Init
// itself: Init must leave an unformatted namespace untouched.
func formatArena(ctx context.Context, ns namespace.Namespace, off int64, sz int64, externalLBASize uint32, nfree uint32, major uint16, ownUUID, parentUUID [16]byte, nextOff uint64) (*info, error) {
	n, err := computeLayout(sz, externalLBASize, nfree, major)
	if err != nil {
		return nil, err
	}
	n.UUID = ownUUID
	n.ParentUUID = parentUUID
	n.NextOff = nextOff

	// Zero data+map+flog (everything between the two info copies) before
	// writing anything into it. Not required for correctness, since
	// isInitial() already treats an unwritten map entry as empty, but it
	// keeps a freshly formatted arena byte-identical to one that has
	// always been zero.
	if middle := sz - 2*infoSize; middle > 0 {
		if err := ns.SetZero(ctx, 0, middle, off+infoSize); err != nil {
			return nil, errIO("formatArena: zero", err)
		}
	}

	if n.Major == 1 {
		if err := seedV1Flogs(ctx, ns, off, n); err != nil {
			return nil, err
		}
	}

	b := n.encode()
	if err := ns.Write(ctx, 0, b, off); err != nil {
		return nil, errIO("formatArena: primary", err)
	}
	if err := ns.Write(ctx, 0, b, off+int64(n.InfoOff)); err != nil {
		return nil, errIO("formatArena: backup", err)
	}
	return n, nil
}

// seedV1Flogs gives each of a freshly formatted v1 arena's lanes an
// initial flog entry whose OldMap/NewMap both name one of the nfree
// internal blocks reserved beyond ExternalNLBA — the "spare" block that
// lane's first real write will consume. LBA 0 is a placeholder: OldMap
// and NewMap are equal, so loadLane's recovery never mistakes this
// record for an interrupted write.
func seedV1Flogs(ctx context.Context, ns namespace.Namespace, arenaOff int64, n *info) error {
	for lane := uint32(0); lane < n.NFree; lane++ {
		freeBlock := (n.ExternalNLBA + lane) | mapEntryNormal
		e := flogEntry{LBA: 0, OldMap: freeBlock, NewMap: freeBlock, Seq: 1}
		off := arenaOff + int64(n.FlogOff) + int64(lane)*flogPairAlign
		if err := ns.Write(ctx, 0, e.encode(), off); err != nil {
			return errIO("seedV1Flogs", err)
		}
	}
	return nil
}

// arenaChunks splits a namespace of the given total size into consecutive
// arena byte ranges of at most maxArenaSize each, dropping any final
// remainder too small to host another arena. It performs no namespace
// I/O: the split is pure arithmetic, usable both to recover an already
// laid out namespace and to compute geometry for one that has not been
// formatted yet.
func arenaChunks(total int64) (offs []int64, sizes []int64) {
	off := int64(0)
	for off < total {
		sz := maxArenaSize
		if total-off < sz {
			sz = total - off
		}
		if sz < minArenaSize {
			break
		}
		offs = append(offs, off)
		sizes = append(sizes, sz)
		off += sz
	}
	return offs, sizes
}

// probeArenas determines whether the namespace has ever been laid out (by
// reading arena 0's info block) and returns arenas ready for
// loadLane/buildFreeList either way. If arena 0 reads as never formatted,
// every other arena's geometry is computed without touching the
// namespace, and laidout is false: Init must not write anything to an
// unformatted namespace (see BTT.ensureLaidOut), only compute the
// addressable range a reader of the not-yet-existent layout would see.
func probeArenas(ctx context.Context, ns namespace.Namespace, externalLBASize uint32, nfree uint32, major uint16) (arenas []*arena, laidout bool, err error) {
	total := ns.Size()
	if total < minArenaSize {
		return nil, false, errInvalid("probeArenas: namespace smaller than one arena", total)
	}

	offs, sizes := arenaChunks(total)

	_, ok, err := readInfoAt(ctx, ns, offs[0], offs[0]+sizes[0]-infoSize, nil)
	if err != nil {
		return nil, false, err
	}

	if !ok {
		for id, off := range offs {
			n, err := computeLayout(sizes[id], externalLBASize, nfree, major)
			if err != nil {
				return nil, false, err
			}
			a := newArena(id, off, n)
			a.size = sizes[id]
			arenas = append(arenas, a)
		}
		return arenas, false, nil
	}

	var parentUUID *[16]byte
	for id, off := range offs {
		backupOff := off + sizes[id] - infoSize
		n, ok, err := readInfoAt(ctx, ns, off, backupOff, parentUUID)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, errLayout("probeArenas: arena partially formatted", off)
		}
		if parentUUID == nil {
			u := n.UUID
			parentUUID = &u
		}

		a := newArena(id, off, n)
		a.size = sizes[id]
		arenas = append(arenas, a)
	}

	return arenas, true, nil
}

// formatAllArenas performs the deferred first-write layout format across
// every arena of a namespace probeArenas found never formatted: generates
// arena 0's UUID (which becomes every later arena's parent UUID), then
// persists each arena's info blocks, zeroes its data/map/flog region and
// (v1 only) seeds its flog pairs. Called at most once per BTT, guarded by
// ensureLaidOut's double-checked lock.
func formatAllArenas(ctx context.Context, ns namespace.Namespace, arenas []*arena, externalLBASize uint32, nfree uint32, major uint16) error {
	var parentUUID [16]byte
	for i, a := range arenas {
		ownUUID, err := uuid.NewRandom()
		if err != nil {
			return errOOM("formatAllArenas: uuid generation", err)
		}
		if i == 0 {
			parentUUID = [16]byte(ownUUID)
		}

		var nextOff uint64
		if i < len(arenas)-1 {
			nextOff = uint64(arenas[i+1].startOff - a.startOff)
		}

		n, err := formatArena(ctx, ns, a.startOff, a.size, externalLBASize, nfree, major, [16]byte(ownUUID), parentUUID, nextOff)
		if err != nil {
			return err
		}
		a.info = *n
	}
	return nil
}
