// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Read-Tracking Table (C6): lock-free interlock between concurrent
// readers and the single writer per lane. A reader publishes the
// internal block it is about to read into its lane's RTT slot, re-reads
// the map entry to catch a writer that moved the LBA in the gap, and
// clears the slot when done. A writer about to reuse a block spins until
// no RTT slot anywhere still names it, so it can never overwrite data a
// reader has started to read.
//
// rttIdle reuses mapEntryError as the "not reading anything" sentinel:
// internal LBAs are masked to 30 bits by mapEntryLBAMask and so never
// collide with it.

package btt

import "runtime"

const rttIdle = mapEntryError

func (a *arena) rttPublish(lane int, internalLBA uint32) {
	a.rtt[lane].Store(internalLBA)
}

func (a *arena) rttClear(lane int) {
	a.rtt[lane].Store(rttIdle)
}

// rttWaitFree blocks the calling goroutine until no lane's RTT slot names
// block. Called by the writer right before it reuses block for new data,
// so it never races a reader still reading the block it is about to
// overwrite.
func (a *arena) rttWaitFree(block uint32) {
	for {
		busy := false
		for i := range a.rtt {
			if a.rtt[i].Load() == block {
				busy = true
				break
			}
		}
		if !busy {
			return
		}
		runtime.Gosched()
	}
}
