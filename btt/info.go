// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The arena info block (C3): signature, UUIDs, version, geometry, five
// section offsets and a trailing Fletcher64 checksum. Two copies exist per
// arena, primary at the arena's first byte and backup at infooff; they are
// kept byte-identical by every write and read back with silent fallback to
// the backup on a checksum or signature failure.

package btt

import (
	"bytes"
	"encoding/binary"
)

// infoSize is the fixed on-media size of an Info block: it is deliberately
// padded (via Unused) to exactly one 4 KiB section so that dataoff always
// starts on a section boundary.
const infoSize = 4096

// info is the host-byte-order mirror of a btt_info struct. All fields are
// converted to/from little-endian only at encode/decode time.
type info struct {
	UUID       [16]byte
	ParentUUID [16]byte
	Flags      uint32
	Major      uint16
	Minor      uint16

	ExternalLBASize uint32
	ExternalNLBA    uint32
	InternalLBASize uint32
	InternalNLBA    uint32
	NFree           uint32
	InfoSize        uint32

	NextOff uint64
	DataOff uint64
	MapOff  uint64
	FlogOff uint64
	InfoOff uint64
}

// encode serializes info into a fresh infoSize-byte little-endian block,
// recomputing and appending the Fletcher64 checksum over everything
// preceding it.
func (n *info) encode() []byte {
	b := make([]byte, infoSize)
	copy(b[0:16], infoSig[:])
	copy(b[16:32], n.UUID[:])
	copy(b[32:48], n.ParentUUID[:])
	binary.LittleEndian.PutUint32(b[48:52], n.Flags)
	binary.LittleEndian.PutUint16(b[52:54], n.Major)
	binary.LittleEndian.PutUint16(b[54:56], n.Minor)
	binary.LittleEndian.PutUint32(b[56:60], n.ExternalLBASize)
	binary.LittleEndian.PutUint32(b[60:64], n.ExternalNLBA)
	binary.LittleEndian.PutUint32(b[64:68], n.InternalLBASize)
	binary.LittleEndian.PutUint32(b[68:72], n.InternalNLBA)
	binary.LittleEndian.PutUint32(b[72:76], n.NFree)
	binary.LittleEndian.PutUint32(b[76:80], n.InfoSize)
	binary.LittleEndian.PutUint64(b[80:88], n.NextOff)
	binary.LittleEndian.PutUint64(b[88:96], n.DataOff)
	binary.LittleEndian.PutUint64(b[96:104], n.MapOff)
	binary.LittleEndian.PutUint64(b[104:112], n.FlogOff)
	binary.LittleEndian.PutUint64(b[112:120], n.InfoOff)
	// b[120 : infoSize-8] is the reserved, always-zero Unused region.
	sum := fletcher64(b[:infoSize-8])
	binary.LittleEndian.PutUint64(b[infoSize-8:infoSize], sum)
	return b
}

// decodeInfo validates and parses an infoSize-byte little-endian block,
// returning an error naming the first failing check (signature, parent
// UUID, major version, checksum). parentUUID is nil for arena 0, whose
// own UUID instead becomes the parent UUID every later arena must carry;
// for every other arena it must be arena 0's UUID.
func decodeInfo(b []byte, parentUUID *[16]byte) (*info, error) {
	if len(b) != infoSize {
		return nil, errLayout("info: short block", len(b))
	}
	if !bytes.Equal(b[0:16], infoSig[:]) {
		return nil, errLayout("info: bad signature", b[0:16])
	}

	var n info
	copy(n.UUID[:], b[16:32])
	copy(n.ParentUUID[:], b[32:48])
	if parentUUID != nil && n.ParentUUID != *parentUUID {
		return nil, errLayout("info: parent uuid mismatch", n.ParentUUID)
	}

	n.Flags = binary.LittleEndian.Uint32(b[48:52])
	n.Major = binary.LittleEndian.Uint16(b[52:54])
	n.Minor = binary.LittleEndian.Uint16(b[54:56])
	if n.Major == 0 {
		return nil, errLayout("info: zero major version", n.Major)
	}

	n.ExternalLBASize = binary.LittleEndian.Uint32(b[56:60])
	n.ExternalNLBA = binary.LittleEndian.Uint32(b[60:64])
	n.InternalLBASize = binary.LittleEndian.Uint32(b[64:68])
	n.InternalNLBA = binary.LittleEndian.Uint32(b[68:72])
	n.NFree = binary.LittleEndian.Uint32(b[72:76])
	n.InfoSize = binary.LittleEndian.Uint32(b[76:80])
	n.NextOff = binary.LittleEndian.Uint64(b[80:88])
	n.DataOff = binary.LittleEndian.Uint64(b[88:96])
	n.MapOff = binary.LittleEndian.Uint64(b[96:104])
	n.FlogOff = binary.LittleEndian.Uint64(b[104:112])
	n.InfoOff = binary.LittleEndian.Uint64(b[112:120])

	wantSum := binary.LittleEndian.Uint64(b[infoSize-8 : infoSize])
	gotSum := fletcher64(b[:infoSize-8])
	if wantSum != gotSum {
		return nil, errLayout("info: checksum mismatch", nil)
	}

	return &n, nil
}
