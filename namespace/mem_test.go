// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package namespace_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cznic/btt/namespace"
)

func TestMemNamespaceReadWrite(t *testing.T) {
	ns := namespace.NewMemNamespace(1 << 20)
	ctx := context.Background()

	zero := make([]byte, 4096)
	got := make([]byte, 4096)
	require.NoError(t, ns.Read(ctx, 0, got, 0))
	require.True(t, bytes.Equal(zero, got))

	want := bytes.Repeat([]byte{0x7e}, 4096)
	require.NoError(t, ns.Write(ctx, 0, want, 100))
	require.NoError(t, ns.Read(ctx, 0, got, 100))
	require.Equal(t, want, got)

	require.NoError(t, ns.SetZero(ctx, 0, 4096, 100))
	require.NoError(t, ns.Read(ctx, 0, got, 100))
	require.Equal(t, zero, got)
}

func TestMemNamespaceGrowsSize(t *testing.T) {
	ns := namespace.NewMemNamespace(0)
	ctx := context.Background()
	require.NoError(t, ns.Write(ctx, 0, []byte{1, 2, 3}, 10))
	require.Equal(t, int64(13), ns.Size())
}

func TestMemNamespaceFailHooks(t *testing.T) {
	ns := namespace.NewMemNamespace(4096)
	ctx := context.Background()
	buf := make([]byte, 4)

	ns.FailNextWrite()
	require.Error(t, ns.Write(ctx, 0, buf, 0))
	require.NoError(t, ns.Write(ctx, 0, buf, 0))

	ns.FailNextRead()
	require.Error(t, ns.Read(ctx, 0, buf, 0))
	require.NoError(t, ns.Read(ctx, 0, buf, 0))

	ns.FailWriteAt(2)
	require.NoError(t, ns.Write(ctx, 0, buf, 0))
	require.Error(t, ns.Write(ctx, 0, buf, 0))
	require.NoError(t, ns.Write(ctx, 0, buf, 0))
}
