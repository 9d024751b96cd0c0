// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Endian helpers (C1): every on-media field is little-endian regardless of
// host byte order, converted at the read/write boundary rather than
// threaded through as raw host-order integers. Also the Fletcher-style
// 64-bit checksum info blocks are signed with.

package btt

import "encoding/binary"

// fletcher64 computes a Fletcher-style 64-bit checksum over data, which
// MUST have a length that is a multiple of 4. It is used exactly once per
// info block: the trailing checksum field itself is left out of the
// hashed bytes, both when generating a checksum to store and when
// verifying a stored one.
//
// Unlike a CRC, Fletcher64 is trivially incremental and branch-free, which
// matters here because it runs on every info block read and every layout
// write; info blocks are large (infosize bytes, mostly an unused
// reserved region) but written rarely and read once per arena per Init.
func fletcher64(data []byte) uint64 {
	if len(data)%4 != 0 {
		panic("btt: fletcher64: len(data) not a multiple of 4")
	}

	var lo, hi uint32
	for i := 0; i < len(data); i += 4 {
		lo += binary.LittleEndian.Uint32(data[i : i+4])
		hi += lo
	}
	return uint64(hi)<<32 | uint64(lo)
}
