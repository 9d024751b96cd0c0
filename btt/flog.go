// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Flog engine (C4): v1-format arenas keep one free-list/log pair per lane,
// 64 bytes apart, each holding two 16-byte halves. A write commits by
// writing the *other* half with the successor of the currently-valid
// half's 2-bit sequence number in the cycle 1 -> 2 -> 3 -> 1; whichever
// half's sequence number is the successor of the other's is valid, so a
// crash between the two half-writes always
// leaves exactly one well-formed, unambiguous record behind.

package btt

import (
	"context"
	"encoding/binary"

	"github.com/cznic/btt/namespace"
)

// flogEntry is one half of a lane's flog pair: the external LBA the
// operation concerns, the map entry it replaced, the map entry it
// installs, and the half's sequence number (1, 2 or 3; 0 marks a half
// that has never been written).
type flogEntry struct {
	LBA    uint32
	OldMap uint32
	NewMap uint32
	Seq    uint32
}

const flogEntrySize = 16

func (e flogEntry) encode() []byte {
	b := make([]byte, flogEntrySize)
	binary.LittleEndian.PutUint32(b[0:4], e.LBA)
	binary.LittleEndian.PutUint32(b[4:8], e.OldMap)
	binary.LittleEndian.PutUint32(b[8:12], e.NewMap)
	binary.LittleEndian.PutUint32(b[12:16], e.Seq)
	return b
}

func decodeFlogEntry(b []byte) flogEntry {
	return flogEntry{
		LBA:    binary.LittleEndian.Uint32(b[0:4]),
		OldMap: binary.LittleEndian.Uint32(b[4:8]),
		NewMap: binary.LittleEndian.Uint32(b[8:12]),
		Seq:    binary.LittleEndian.Uint32(b[12:16]),
	}
}

// chooseValid picks the current half of a flog pair. A zero sequence
// number means that half was never written (true only of a freshly
// formatted arena, where half 0 is seeded with seq 1 and half 1 is left
// zero). Otherwise the valid half is whichever one's sequence number is
// the successor of the other's: the successor is the half most recently
// written. Two equal nonzero sequence numbers are not reported; half 0 is
// returned.
func chooseValid(e0, e1 flogEntry) (valid flogEntry, idx int) {
	switch {
	case e0.Seq == 0:
		return e1, 1
	case e1.Seq == 0:
		return e0, 0
	case nextSeq(e0.Seq) == e1.Seq:
		return e1, 1
	default:
		return e0, 0
	}
}

// readFlogPair loads both halves of lane's flog pair and returns the
// valid one along with both halves' namespace offsets, for use by
// loadLane and writeFlogEntry.
func readFlogPair(ctx context.Context, ns namespace.Namespace, lane int, pairOff int64) (valid flogEntry, validIdx int, offs [2]int64, err error) {
	offs = [2]int64{pairOff, pairOff + flogEntrySize}
	var buf [2 * flogEntrySize]byte
	if err = ns.Read(ctx, lane, buf[:], pairOff); err != nil {
		return flogEntry{}, 0, offs, errIO("readFlogPair", err)
	}
	e0 := decodeFlogEntry(buf[0:flogEntrySize])
	e1 := decodeFlogEntry(buf[flogEntrySize : 2*flogEntrySize])
	valid, validIdx = chooseValid(e0, e1)
	return valid, validIdx, offs, nil
}

// loadLane reads lane's flog pair, recovers it if a crash left the map
// out of sync with the valid half's NewMap, and records the recovered
// state on a.flogs[lane].
//
// Recovery (flog recovery at open): the valid half
// always describes the *last attempted* operation. If map[LBA] still
// equals OldMap (an initial-state map entry counting as the identity
// mapping LBA|NORMAL, as mapLock synthesizes it), the write that would
// publish NewMap never reached the map, so it is completed now. Any other
// value, NewMap included, is left as it is; the arena is not flagged.
func (a *arena) loadLane(ctx context.Context, ns namespace.Namespace, lane int) error {
	pairOff := a.flogPairOff(uint32(lane))
	valid, validIdx, offs, err := readFlogPair(ctx, ns, lane, pairOff)
	if err != nil {
		return err
	}

	a.flogs[lane] = laneFlog{entryOff: offs, next: 1 - validIdx, current: valid}

	if valid.Seq == 0 {
		// Freshly formatted arena: nothing committed yet on this lane.
		return nil
	}

	cur, err := a.readRawMapEntry(ctx, ns, lane, valid.LBA)
	if err != nil {
		return err
	}
	if cur.isInitial() {
		cur = newMapEntry(valid.LBA, mapEntryNormal)
	}

	// Only a live match against OldMap means the map update never made it
	// to media; complete it now. Any other value — NewMap already
	// published, or (for the no-op entry a freshly formatted v1 arena
	// seeds into each lane) an LBA the entry was never really about — is
	// left untouched, mirroring the reference recovery pass.
	if uint32(cur) == valid.OldMap {
		if err := a.writeRawMapEntry(ctx, ns, lane, valid.LBA, mapEntry(valid.NewMap)); err != nil {
			return err
		}
	}
	return nil
}

// writeFlogEntry durably commits a map update for lane: oldMap is the
// entry map[lba] held before this write, newMap the entry it is about to
// become. This is the heart of atomicity: the 16-byte entry is split into
// two separate durable writes, lba+old_map first and new_map+seq second,
// so a crash landing between them can never be mistaken for a freshly
// valid entry — the half whose seq was never (re-)written can never beat
// chooseValid's successor test. Only after both writes return is it safe
// to install newMap into the map itself.
func (a *arena) writeFlogEntry(ctx context.Context, ns namespace.Namespace, lane int, lba, oldMap, newMap uint32) error {
	lf := &a.flogs[lane]
	entry := flogEntry{LBA: lba, OldMap: oldMap, NewMap: newMap, Seq: nextSeq(lf.current.Seq)}
	off := lf.entryOff[lf.next]
	b := entry.encode()

	if err := ns.Write(ctx, lane, b[0:8], off); err != nil {
		return errIO("writeFlogEntry: lba/old_map", err)
	}
	if err := ns.Write(ctx, lane, b[8:16], off+8); err != nil {
		return errIO("writeFlogEntry: new_map/seq", err)
	}

	lf.current = entry
	lf.next = 1 - lf.next
	return nil
}

// seedVirginLane installs, with no namespace I/O at all, the in-memory
// flog state lane needs for its first real Write on an arena that has
// never been laid out on media yet — the same state loadLane would
// recover once formatArena has actually run and seeded this pair for
// real. Init calls this instead of loadLane for an unformatted arena so
// that Write can proceed correctly the moment the deferred format lands.
func (a *arena) seedVirginLane(lane int) {
	freeBlock := (a.info.ExternalNLBA + uint32(lane)) | mapEntryNormal
	pairOff := a.flogPairOff(uint32(lane))
	a.flogs[lane] = laneFlog{
		entryOff: [2]int64{pairOff, pairOff + flogEntrySize},
		next:     1,
		current:  flogEntry{LBA: 0, OldMap: freeBlock, NewMap: freeBlock, Seq: 1},
	}
}
