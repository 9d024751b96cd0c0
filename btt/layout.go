// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Arena layout calculation (C2): from a raw arena size and the engine's
// external LBA size, derive the internal LBA size, block counts and
// section offsets. Section order within an arena, each aligned to
// sectionAlign (4 KiB): primary info, data, flog, map, backup info.

package btt

// internalLBASize rounds B up to at least minLBASize and then up to a
// multiple of internalLBAAlign.
func internalLBASize(externalLBASize uint32) uint32 {
	sz := int64(externalLBASize)
	if sz < minLBASize {
		sz = minLBASize
	}
	return uint32(roundupInt64(sz, internalLBAAlign))
}

// computeLayout derives an arena's geometry from its raw size and the
// engine's external LBA size. NextOff is left zero; the caller (the arena
// prober, which knows whether another arena follows) fills it in.
//
// Fails if the arena is too small to hold at least 2*nfree internal
// blocks: nfree strictly more internal blocks must exist per arena than
// external LBAs, with room to spare.
func computeLayout(rawSize int64, externalLBASize uint32, nfree uint32, major uint16) (*info, error) {
	if rawSize < minArenaSize {
		return nil, errInvalid("computeLayout: arena below minimum size", rawSize)
	}
	if rawSize > maxArenaSize {
		return nil, errInvalid("computeLayout: arena above maximum size", rawSize)
	}

	ilbasize := internalLBASize(externalLBASize)

	flogSize := roundupInt64(int64(nfree)*flogPairAlign, sectionAlign)

	// Data blocks and their map entries share what is left after both
	// info blocks, the flog and one section of map rounding slack.
	internalNLBA := (rawSize - 2*infoSize - flogSize - sectionAlign) / (int64(ilbasize) + 4)
	if internalNLBA < 2*int64(nfree) {
		return nil, errInvalid("computeLayout: arena too small for nfree", nfree)
	}

	externalNLBA := internalNLBA - int64(nfree)

	mapSize := roundupInt64(externalNLBA*4, sectionAlign)

	infoOff := rawSize - infoSize
	flogOff := infoOff - mapSize - flogSize
	mapOff := infoOff - mapSize
	dataOff := int64(infoSize)

	return &info{
		Major:           major,
		Minor:           minorVersion,
		ExternalLBASize: externalLBASize,
		ExternalNLBA:    uint32(externalNLBA),
		InternalLBASize: ilbasize,
		InternalNLBA:    uint32(internalNLBA),
		NFree:           nfree,
		InfoSize:        infoSize,
		DataOff:         uint64(dataOff),
		MapOff:          uint64(mapOff),
		FlogOff:         uint64(flogOff),
		InfoOff:         uint64(infoOff),
	}, nil
}
