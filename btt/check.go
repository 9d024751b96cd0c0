// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Whole-engine consistency checker (C10): walks every arena's map,
// confirming no two external LBAs ever reference the same internal
// block, and — for v1 arenas — every lane's current flog entry too,
// since a block a lane holds in reserve between writes is just as surely
// "owned" as one a map entry points at. Any internal block neither the
// map nor a flog entry references is a leak: nothing will ever free it.
// Reported duplicates are sorted for a stable, diffable report.

package btt

import (
	"context"
	"fmt"
	"sort"

	"github.com/cznic/sortutil"
)

// Inconsistency describes one problem Check found. Arena is the arena's
// id (arena.go), not a namespace offset.
type Inconsistency struct {
	Arena  int
	Detail string
}

func (i Inconsistency) String() string {
	return fmt.Sprintf("arena %d: %s", i.Arena, i.Detail)
}

// Check reads every map entry in every arena, and every lane's current
// flog entry on a v1 arena, and reports: any internal block referenced
// more than once; any entry referencing a block outside InternalNLBA;
// any arena whose primary and backup info blocks have drifted apart; and,
// v1 only, any internal block referenced by neither the map nor a flog
// entry, a leak. It takes no locks: a Check run concurrently with Writes
// may report transient false positives, since it is meant for offline or
// quiesced verification (see cmd/bttcheck). A namespace that has never
// been laid out is consistent by definition.
func (b *BTT) Check(ctx context.Context) ([]Inconsistency, error) {
	if !b.laidout.Load() {
		return nil, nil
	}

	var out []Inconsistency

	for _, a := range b.arenas {
		back, err := readBackupInfo(ctx, b.ns, a)
		if err != nil {
			out = append(out, Inconsistency{Arena: a.id, Detail: "backup info block unreadable: " + err.Error()})
		} else if *back != a.info {
			out = append(out, Inconsistency{Arena: a.id, Detail: "primary and backup info blocks disagree"})
		}

		owner := make(map[uint32]uint32, a.info.InternalNLBA) // internal lba -> first owning external lba
		marked := make([]bool, a.info.InternalNLBA)
		var dupes []uint32

		mark := func(ilba, ownerLBA uint32, label string) {
			if ilba >= a.info.InternalNLBA {
				out = append(out, Inconsistency{Arena: a.id, Detail: fmt.Sprintf("%s: internal block %d out of range", label, ilba)})
				return
			}
			if marked[ilba] {
				dupes = append(dupes, ilba)
				return
			}
			marked[ilba] = true
			owner[ilba] = ownerLBA
		}

		for lba := uint32(0); lba < a.info.ExternalNLBA; lba++ {
			entry, err := a.readRawMapEntry(ctx, b.ns, 0, lba)
			if err != nil {
				out = append(out, Inconsistency{Arena: a.id, Detail: fmt.Sprintf("lba %d: read failed: %v", lba, err)})
				continue
			}
			if entry.isInitial() {
				if a.isV1() {
					// v1's initial state is the identity mapping, not an
					// unallocated block; v2's initial state has drawn no
					// block at all and is skipped entirely.
					mark(lba, lba, fmt.Sprintf("lba %d", lba))
				}
				continue
			}
			mark(entry.lba(), lba, fmt.Sprintf("lba %d", lba))
		}

		if a.isV1() {
			for lane := uint32(0); lane < a.info.NFree; lane++ {
				valid, _, _, err := readFlogPair(ctx, b.ns, int(lane), a.flogPairOff(lane))
				if err != nil {
					out = append(out, Inconsistency{Arena: a.id, Detail: fmt.Sprintf("lane %d: flog read failed: %v", lane, err)})
					continue
				}
				if valid.Seq == 0 {
					continue
				}
				mark(mapEntry(valid.OldMap).lba(), 0, fmt.Sprintf("lane %d flog", lane))
			}

			for ilba := uint32(0); ilba < a.info.InternalNLBA; ilba++ {
				if !marked[ilba] {
					out = append(out, Inconsistency{Arena: a.id, Detail: fmt.Sprintf("internal block %d unreferenced by map or flog (leaked)", ilba)})
				}
			}
		}

		if len(dupes) > 0 {
			sort.Sort(sortutil.Uint32Slice(dupes))
			var last uint32
			for i, ilba := range dupes {
				if i > 0 && ilba == last {
					continue
				}
				last = ilba
				out = append(out, Inconsistency{Arena: a.id, Detail: fmt.Sprintf("internal block %d referenced by more than one external lba (first owner lba %d)", ilba, owner[ilba])})
			}
		}
	}

	return out, nil
}

func readBackupInfo(ctx context.Context, ns interface {
	Read(ctx context.Context, lane int, b []byte, off int64) error
}, a *arena) (*info, error) {
	buf := make([]byte, infoSize)
	if err := ns.Read(ctx, 0, buf, a.backupInfoOff()); err != nil {
		return nil, err
	}
	return decodeInfo(buf, &a.info.ParentUUID)
}
