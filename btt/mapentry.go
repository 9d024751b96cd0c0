// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Map entry decode helpers (C5): a 32-bit entry packs a 30-bit internal LBA
// and a 2-bit state in its top bits. These predicates are carried as named
// vocabulary, mirroring map_entry_is_error/_zero/_initial in the reference
// implementation, since recovery, read and write all branch on them.

package btt

// mapEntry is a map entry in host byte order; on media it is stored
// little-endian (see (*arena).readRawMapEntry / writeRawMapEntry in map.go).
type mapEntry uint32

func newMapEntry(lba uint32, flag uint32) mapEntry {
	return mapEntry(lba&mapEntryLBAMask | flag)
}

func (e mapEntry) lba() uint32 { return uint32(e) & mapEntryLBAMask }

func (e mapEntry) flags() uint32 { return uint32(e) &^ mapEntryLBAMask }

func (e mapEntry) isInitial() bool { return e.flags() == 0 }

func (e mapEntry) isZero() bool { return e.flags() == mapEntryZero }

func (e mapEntry) isError() bool { return e.flags() == mapEntryError }

func (e mapEntry) isNormal() bool { return e.flags() == mapEntryNormal }

func (e mapEntry) isZeroOrInitial() bool { return e.isZero() || e.isInitial() }
