// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package btt implements the Block Translation Table: single-block
// power-fail atomic writes layered over a raw, byte-addressable
// namespace that otherwise offers no write atomicity of its own.
//
// A BTT partitions its namespace into one or more arenas (see arena.go),
// each with its own info block, map and free-block bookkeeping. External
// LBAs are addressed linearly across all arenas; internally each arena
// remaps an external LBA to one of a slightly larger pool of internal
// blocks, so that a write can land in a fresh block and be published by
// flipping a single 32-bit map entry — the one operation every namespace
// this package targets can be trusted to apply atomically.
package btt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cznic/btt/namespace"
)

// BTT is an open Block Translation Table instance. A *BTT is safe for
// concurrent use across lanes: operations against distinct lanes run
// concurrently, but a single lane must be driven by one goroutine at a
// time (see NLane).
type BTT struct {
	ns              namespace.Namespace
	log             *zap.Logger
	externalLBASize uint32
	nlane           int
	nfree           uint32
	major           uint16

	arenas   []*arena
	arenaLBA []uint32 // arenaLBA[i] is the cumulative ExternalNLBA before arenas[i]
	nlba     int64

	// laidout reports whether the namespace's layout has actually been
	// persisted yet. An Init against an all-zero namespace leaves it
	// false and the namespace untouched; ensureLaidOut performs the
	// deferred format, under layoutMu, the first time Write, SetError or
	// a non-superfluous SetZero needs it to exist.
	laidout  atomic.Bool
	layoutMu sync.Mutex
}

// Init opens (recovering from any interrupted write as necessary) a BTT
// with the given external block size. For a namespace that has never
// been formatted, Init computes the layout it would have without writing
// anything to it: the actual format is deferred to the first Write,
// SetError or non-superfluous SetZero (see ensureLaidOut). ctx bounds
// every namespace I/O Init performs.
func Init(ctx context.Context, ns namespace.Namespace, externalLBASize uint32, opts Options) (*BTT, error) {
	if externalLBASize == 0 {
		return nil, errInvalid("Init: zero external LBA size", externalLBASize)
	}
	opts.check()

	arenas, laidout, err := probeArenas(ctx, ns, externalLBASize, opts.NFree, opts.Major)
	if err != nil {
		return nil, err
	}
	if len(arenas) == 0 {
		return nil, errInvalid("Init: namespace too small for any arena", ns.Size())
	}

	nlane := opts.nlane()
	for _, a := range arenas {
		if int(a.info.NFree) < nlane {
			nlane = int(a.info.NFree)
		}
	}

	for _, a := range arenas {
		if a.isV1() {
			for lane := 0; lane < nlane; lane++ {
				if laidout {
					if err := a.loadLane(ctx, ns, lane); err != nil {
						return nil, fmt.Errorf("btt: arena %d lane %d recovery: %w", a.id, lane, err)
					}
				} else {
					a.seedVirginLane(lane)
				}
			}
		} else {
			if err := a.buildFreeList(ctx, ns, opts.Log, nlane); err != nil {
				return nil, fmt.Errorf("btt: arena %d free list: %w", a.id, err)
			}
		}
	}

	b := &BTT{
		ns:              ns,
		log:             opts.Log,
		externalLBASize: externalLBASize,
		nlane:           nlane,
		nfree:           opts.NFree,
		major:           opts.Major,
		arenas:          arenas,
	}
	b.laidout.Store(laidout)
	cum := uint32(0)
	for _, a := range arenas {
		b.arenaLBA = append(b.arenaLBA, cum)
		cum += a.info.ExternalNLBA
		b.nlba += int64(a.info.ExternalNLBA)
	}

	traceOp(b.log, "init", zap.Int("arenas", len(arenas)), zap.Int("nlane", nlane), zap.Int64("nlba", b.nlba), zap.Bool("laidout", laidout))
	return b, nil
}

// ensureLaidOut performs the deferred first-write layout format exactly
// once. Init leaves an unformatted namespace untouched, so the first
// operation that actually needs the layout to exist — Write, SetError, or
// a SetZero that isn't itself superfluous — must format it first.
func (b *BTT) ensureLaidOut(ctx context.Context) error {
	if b.laidout.Load() {
		return nil
	}
	b.layoutMu.Lock()
	defer b.layoutMu.Unlock()
	if b.laidout.Load() {
		return nil
	}
	if err := formatAllArenas(ctx, b.ns, b.arenas, b.externalLBASize, b.nfree, b.major); err != nil {
		return err
	}
	b.laidout.Store(true)
	traceOp(b.log, "layout formatted")
	return nil
}

// NLane reports the number of independent lanes this BTT was opened
// with. Callers must confine concurrent operations against a given lane
// number to a single goroutine at a time; distinct lanes may proceed
// fully concurrently.
func (b *BTT) NLane() int { return b.nlane }

// NLBA reports the total number of external LBAs addressable across
// every arena.
func (b *BTT) NLBA() int64 { return b.nlba }

// locate finds the arena holding external lba and the LBA's offset
// within that arena (its premap LBA).
func (b *BTT) locate(lba int64) (*arena, uint32, error) {
	if lba < 0 || lba >= b.nlba {
		return nil, 0, errInvalid("locate: lba out of range", lba)
	}
	for i := len(b.arenas) - 1; i >= 0; i-- {
		if lba >= int64(b.arenaLBA[i]) {
			return b.arenas[i], uint32(lba - int64(b.arenaLBA[i])), nil
		}
	}
	panic("btt: locate: unreachable")
}

func (b *BTT) checkLane(lane int) error {
	if lane < 0 || lane >= b.nlane {
		return errInvalid("lane out of range", lane)
	}
	return nil
}

func (b *BTT) checkBuf(buf []byte) error {
	if uint32(len(buf)) != b.externalLBASize {
		return errInvalid("buffer length does not match external LBA size", len(buf))
	}
	return nil
}

// Read fills buf, which must be exactly the configured external LBA size,
// with the current contents of lba. A never-written LBA reads as zero.
func (b *BTT) Read(ctx context.Context, lane int, lba int64, buf []byte) error {
	if err := b.checkLane(lane); err != nil {
		return err
	}
	if err := b.checkBuf(buf); err != nil {
		return err
	}
	a, premap, err := b.locate(lba)
	if err != nil {
		return err
	}

	for {
		entry, err := a.readRawMapEntry(ctx, b.ns, lane, premap)
		if err != nil {
			return err
		}
		if entry.isZeroOrInitial() {
			for i := range buf {
				buf[i] = 0
			}
			return nil
		}
		if entry.isError() {
			return errIO("Read: block in error state", fmt.Errorf("lba %d", lba))
		}

		internalLBA := entry.lba()
		a.rttPublish(lane, internalLBA)

		again, err := a.readRawMapEntry(ctx, b.ns, lane, premap)
		if err != nil {
			a.rttClear(lane)
			return err
		}
		if again != entry {
			a.rttClear(lane)
			continue
		}

		err = b.ns.Read(ctx, lane, buf, a.dataBlockOff(internalLBA))
		a.rttClear(lane)
		if err != nil {
			traceErr(b.log, "read", err, zap.Int64("lba", lba))
			return errIO("Read: data block", err)
		}
		return nil
	}
}

// Write atomically replaces the contents of lba with buf, which must be
// exactly the configured external LBA size. A concurrent Read of the
// same LBA observes either the old contents or the new contents in full,
// never a mix, even across a crash.
func (b *BTT) Write(ctx context.Context, lane int, lba int64, buf []byte) error {
	if err := b.checkLane(lane); err != nil {
		return err
	}
	if err := b.checkBuf(buf); err != nil {
		return err
	}
	if err := b.ensureLaidOut(ctx); err != nil {
		return err
	}
	a, premap, err := b.locate(lba)
	if err != nil {
		return err
	}
	if a.errored.Load() {
		return errIO("Write: arena in error state", fmt.Errorf("arena %d", a.id))
	}

	var freeBlock uint32
	if a.isV1() {
		freeBlock = mapEntry(a.flogs[lane].current.OldMap).lba()
	} else {
		// Only this lane's own goroutine ever reads or writes
		// a.laneFree[lane]; freeMu only arbitrates the shared
		// freeList slice inside getLaneFree/mapLock.
		freeBlock = a.laneFree[lane]
	}

	a.rttWaitFree(freeBlock)

	if err := b.ns.Write(ctx, lane, buf, a.dataBlockOff(freeBlock)); err != nil {
		return errIO("Write: data block", err)
	}

	old, err := a.mapLock(ctx, b.ns, b.log, lane, premap)
	if err != nil {
		return err
	}

	newEntry := newMapEntry(freeBlock, mapEntryNormal)

	if a.isV1() {
		if err := a.writeFlogEntry(ctx, b.ns, lane, premap, uint32(old), uint32(newEntry)); err != nil {
			a.mapAbort(premap)
			return err
		}
	}

	if err := a.mapUnlock(ctx, b.ns, lane, premap, newEntry); err != nil {
		a.latchError(ctx, b.ns)
		traceErr(b.log, "write", err, zap.Int64("lba", lba))
		return err
	}

	traceDetail(b.log, "write", zap.Int64("lba", lba), zap.Uint32("block", freeBlock))
	return nil
}

// SetZero atomically sets lba to read back as all-zero, without
// allocating or writing a data block. An lba already reading as zero —
// including one that has never been written at all — is a no-op.
func (b *BTT) SetZero(ctx context.Context, lane int, lba int64) error {
	return b.setFlag(ctx, lane, lba, mapEntryZero)
}

// SetError atomically marks lba as unreadable: subsequent Reads fail
// until a later Write or SetZero replaces the mapping. This is the
// engine's way of recording "the underlying medium reported a read
// failure here" without losing track of which LBA was affected.
func (b *BTT) SetError(ctx context.Context, lane int, lba int64) error {
	return b.setFlag(ctx, lane, lba, mapEntryError)
}

// setFlag is the shared body of SetZero and SetError: it stamps flag
// into lba's map entry, masking in whatever internal block the entry
// already names (new_entry = (old_entry & LBA_MASK) | flag) instead of
// discarding it — dropping those bits would orphan a previously-written
// block the moment either call landed on it. Setting the zero flag on an
// entry already reading zero or never written is superfluous and is the
// one case that must not itself trigger the deferred layout format;
// every other case ensures the layout exists first. Neither call
// participates in a v1 arena's flog: the map store itself is already the
// atomic unit here, matching the reference implementation.
func (b *BTT) setFlag(ctx context.Context, lane int, lba int64, flag uint32) error {
	if err := b.checkLane(lane); err != nil {
		return err
	}
	a, premap, err := b.locate(lba)
	if err != nil {
		return err
	}

	if !b.laidout.Load() {
		if flag == mapEntryZero {
			return nil
		}
		if err := b.ensureLaidOut(ctx); err != nil {
			return err
		}
	}

	if a.errored.Load() {
		return errIO("setFlag: arena in error state", fmt.Errorf("arena %d", a.id))
	}

	if flag == mapEntryZero {
		// mapLock turns an initial entry into a NORMAL one, so the
		// never-written case is recognized from the raw entry.
		raw, err := a.readRawMapEntry(ctx, b.ns, lane, premap)
		if err != nil {
			return err
		}
		if raw.isZeroOrInitial() {
			return nil
		}
	}

	var laneFree uint32
	if !a.isV1() {
		laneFree = a.laneFree[lane]
	}
	old, err := a.mapLock(ctx, b.ns, b.log, lane, premap)
	if err != nil {
		return err
	}
	if !a.isV1() {
		// mapLock hands the entry's block to this lane as its next free
		// block, as Write needs; here that block stays in the map, so the
		// lane keeps the free block it already had.
		a.laneFree[lane] = laneFree
	}
	if flag == mapEntryZero && old.isZeroOrInitial() {
		a.mapAbort(premap)
		return nil
	}

	if err := a.mapUnlock(ctx, b.ns, lane, premap, newMapEntry(old.lba(), flag)); err != nil {
		a.latchError(ctx, b.ns)
		return err
	}
	return nil
}

// Fini releases any in-memory state held by the BTT. It does not close
// the underlying namespace; the caller retains ownership of that.
func (b *BTT) Fini() {
	traceOp(b.log, "fini")
	b.arenas = nil
}
