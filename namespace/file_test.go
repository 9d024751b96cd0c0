// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package namespace_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cznic/btt/namespace"
)

func TestFileNamespaceReadWrite(t *testing.T) {
	name := filepath.Join(t.TempDir(), "ns.bin")
	ns, err := namespace.CreateFileNamespace(name, 1<<20)
	require.NoError(t, err)
	defer ns.Close()

	ctx := context.Background()
	zero := make([]byte, 4096)
	got := make([]byte, 4096)
	require.NoError(t, ns.Read(ctx, 0, got, 0))
	require.Equal(t, zero, got)

	want := bytes.Repeat([]byte{0x5a}, 4096)
	require.NoError(t, ns.Write(ctx, 0, want, 4096))
	require.NoError(t, ns.Read(ctx, 0, got, 4096))
	require.Equal(t, want, got)

	require.NoError(t, ns.SetZero(ctx, 0, 4096, 4096))
	require.NoError(t, ns.Read(ctx, 0, got, 4096))
	require.Equal(t, zero, got)
}

func TestFileNamespaceReopen(t *testing.T) {
	name := filepath.Join(t.TempDir(), "ns.bin")
	ns, err := namespace.CreateFileNamespace(name, 1<<16)
	require.NoError(t, err)

	want := bytes.Repeat([]byte{0x11}, 256)
	require.NoError(t, ns.Write(context.Background(), 0, want, 0))
	require.NoError(t, ns.Close())

	ns2, err := namespace.OpenFileNamespace(name)
	require.NoError(t, err)
	defer ns2.Close()

	require.Equal(t, int64(1<<16), ns2.Size())
	got := make([]byte, 256)
	require.NoError(t, ns2.Read(context.Background(), 0, got, 0))
	require.Equal(t, want, got)
}
