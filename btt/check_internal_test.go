// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package btt

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cznic/btt/namespace"
)

// Regression for the bug SetZero/SetError used to have: installing a bare
// flag-only map entry, with no lba bits at all, orphans whatever internal
// block the lba previously named. This test bypasses SetZero entirely and
// pokes the map directly to simulate that exact bug, then confirms
// Check's leak detection actually catches the orphaned block.
func TestCheckCatchesOrphanedBlockFromBareFlagWrite(t *testing.T) {
	ns := namespace.NewMemNamespace(16 << 20)
	ctx := context.Background()

	b, err := Init(ctx, ns, 512, Options{NFree: 8, Major: 1})
	require.NoError(t, err)
	t.Cleanup(b.Fini)

	require.NoError(t, b.Write(ctx, 0, 3, bytes.Repeat([]byte{9}, 512)))

	problems, err := b.Check(ctx)
	require.NoError(t, err)
	require.Empty(t, problems)

	a := b.arenas[0]
	orphaned := a.info.ExternalNLBA // lane 0's first-ever allocation
	require.NoError(t, a.writeRawMapEntry(ctx, b.ns, 0, 3, mapEntry(mapEntryZero)))

	problems, err = b.Check(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, problems)

	want := fmt.Sprintf("internal block %d unreferenced by map or flog (leaked)", orphaned)
	var sawLeak bool
	for _, p := range problems {
		if p.Detail == want {
			sawLeak = true
			break
		}
	}
	require.True(t, sawLeak, "expected a leak report for internal block %d, got %v", orphaned, problems)
}
