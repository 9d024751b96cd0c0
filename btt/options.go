// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package btt

import "go.uber.org/zap"

// Options are passed to Init to amend engine behavior. The compatibility
// promise is the same as for struct types in the Go standard library:
// introduce changes only by adding new exported fields.
type Options struct {
	// NFree is the number of free blocks per arena, i.e. the number of
	// lanes, map-lock buckets, flog pairs and RTT slots. Zero means
	// DefaultNFree.
	NFree uint32

	// MaxLane caps the number of lanes handed out by NLane; the engine
	// uses min(NFree, MaxLane). Zero means no cap beyond NFree.
	MaxLane int

	// Major selects the on-media layout version stamped into any arena
	// formatted fresh by this Init call: 1 for the flog-recovery write
	// path, 2 for the v2 lane-allocator path. Zero means the latest (2).
	// Reopening an existing namespace always honors whatever version is
	// already on media, regardless of this setting.
	Major uint16

	// Log receives structured trace/diagnostic output. Nil means no
	// logging.
	Log *zap.Logger

	checked bool
}

func (o *Options) check() {
	if o.checked {
		return
	}

	if o.NFree == 0 {
		o.NFree = DefaultNFree
	}
	if o.Major == 0 {
		o.Major = majorVersion
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	o.checked = true
}

func (o *Options) nlane() int {
	n := int(o.NFree)
	if o.MaxLane > 0 && o.MaxLane < n {
		n = o.MaxLane
	}
	if n < 1 {
		n = 1
	}
	return n
}
