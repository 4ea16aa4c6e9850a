// Copyright 2025 The Trieroot Authors
// This file is part of Trieroot.
//
// Trieroot is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Trieroot is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Trieroot. If not, see <http://www.gnu.org/licenses/>.

package dbutils

import (
	"testing"

	"github.com/ledgerwatch/erigon-lib/common"
	"github.com/stretchr/testify/require"
)

func TestCompositeStorageKey(t *testing.T) {
	addrHash := common.HexToHash("0x11")
	slotHash := common.HexToHash("0x22")

	key := GenerateCompositeStorageKey(addrHash, slotHash)
	require.Len(t, key, 64)

	gotAddr, gotSlot, err := ParseCompositeStorageKey(key)
	require.NoError(t, err)
	require.Equal(t, addrHash, gotAddr)
	require.Equal(t, slotHash, gotSlot)

	_, _, err = ParseCompositeStorageKey(key[:63])
	require.Error(t, err)
}

func TestCompositeTrieKey(t *testing.T) {
	addrHash := common.HexToHash("0x11")
	path := []byte{0x0a, 0x0b, 0x0c}
	key := GenerateCompositeTrieKey(addrHash, path)
	require.Equal(t, addrHash[:], key[:32])
	require.Equal(t, path, key[32:])
}

func TestNextSubtree(t *testing.T) {
	next, ok := NextSubtree([]byte{0x01, 0x02})
	require.True(t, ok)
	require.Equal(t, []byte{0x01, 0x03}, next)

	next, ok = NextSubtree([]byte{0x01, 0xff})
	require.True(t, ok)
	require.Equal(t, []byte{0x02, 0x00}, next)

	_, ok = NextSubtree([]byte{0xff, 0xff})
	require.False(t, ok)
}

func TestNextNibblesSubtree(t *testing.T) {
	out := make([]byte, 0, 8)

	require.True(t, NextNibblesSubtree([]byte{0x01, 0x02}, &out))
	require.Equal(t, []byte{0x01, 0x03}, out)

	// trailing max nibbles are truncated, not carried
	require.True(t, NextNibblesSubtree([]byte{0x01, 0x0f}, &out))
	require.Equal(t, []byte{0x02}, out)

	require.False(t, NextNibblesSubtree([]byte{0x0f, 0x0f}, &out))
	require.Empty(t, out)
}
