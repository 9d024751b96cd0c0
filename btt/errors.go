// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package btt

import "fmt"

// Kind classifies an *Error the way the reference implementation's errno
// values would, without relying on a process-global errno.
type Kind int

const (
	// InvalidArgument signals an out-of-range LBA or bad Init parameter.
	// No engine state is changed.
	InvalidArgument Kind = iota

	// IO signals a namespace callback failure, or a write routed to an
	// arena already latched into the error state.
	IO

	// LayoutInconsistent signals an on-media structure Init cannot use:
	// an info block that fails validation with no valid copy to fall
	// back to, or arena 0 formatted while a later arena is not. A flog
	// pair with equal sequence numbers is not detected, and Check reports
	// duplicated, out-of-range or unreferenced internal blocks as
	// Inconsistency values rather than as an *Error.
	LayoutInconsistent

	// OutOfMemory signals that no fresh arena UUID could be generated
	// during the deferred layout format. Allocation of run-time arena
	// state (map locks, RTT, flog slots) does not report this kind.
	OutOfMemory
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case IO:
		return "I/O error"
	case LayoutInconsistent:
		return "layout inconsistent"
	case OutOfMemory:
		return "out of memory"
	default:
		return "unknown error"
	}
}

// Error is a tagged result kind standing in for the reference
// implementation's global errno: Src names the operation or field that
// failed and Arg, if present, is the offending value.
type Error struct {
	Kind Kind
	Src  string
	Arg  any
	Err  error // wrapped namespace/io error, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("btt: %s: %s: %v", e.Kind, e.Src, e.Err)
	}
	if e.Arg != nil {
		return fmt.Sprintf("btt: %s: %s (%v)", e.Kind, e.Src, e.Arg)
	}
	return fmt.Sprintf("btt: %s: %s", e.Kind, e.Src)
}

func (e *Error) Unwrap() error { return e.Err }

func errInvalid(src string, arg any) error {
	return &Error{Kind: InvalidArgument, Src: src, Arg: arg}
}

func errIO(src string, err error) error {
	return &Error{Kind: IO, Src: src, Err: err}
}

func errLayout(src string, arg any) error {
	return &Error{Kind: LayoutInconsistent, Src: src, Arg: arg}
}

func errOOM(src string, err error) error {
	return &Error{Kind: OutOfMemory, Src: src, Err: err}
}
