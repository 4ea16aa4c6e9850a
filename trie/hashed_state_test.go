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

package trie

import (
	"testing"

	"github.com/ledgerwatch/erigon-lib/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/flatstate/trieroot/accounts"
)

func TestConstructPrefixSets(t *testing.T) {
	a := common.HexToHash("0x01")
	b := common.HexToHash("0x02")
	c := common.HexToHash("0x03")

	post := NewHashedPostState()
	post.AddAccount(a, &accounts.Account{Initialised: true, Nonce: 1})
	post.AddAccount(b, nil)
	post.AddStorage(c, common.HexToHash("0xaa"), *uint256.NewInt(1))

	sets := post.ConstructPrefixSets()

	// all three accounts dirty the account trie, c through its storage
	require.Equal(t, 3, sets.Account.Len())
	require.True(t, sets.Account.Retain(keyNibbles(a)[:4]))

	_, ok := sets.DestroyedAccounts[b]
	require.True(t, ok)
	require.Len(t, sets.DestroyedAccounts, 1)

	require.Contains(t, sets.Storage, c)
	require.NotContains(t, sets.Storage, a)
}

func TestConstructPrefixSetsMarkers(t *testing.T) {
	a := common.HexToHash("0x01")
	deleted := common.HexToHash("0xaa")
	created := common.HexToHash("0xbb")

	post := NewHashedPostState()
	post.AddStorage(a, deleted, uint256.Int{})
	post.AddStorage(a, created, *uint256.NewInt(7))

	sets := post.ConstructPrefixSets()
	ps := sets.Storage[a]
	require.Equal(t, 2, ps.Len())

	// only the upserted slot carries the created marker
	_, next := ps.RetainWithMarker([]byte{})
	require.Equal(t, keyNibbles(created), next)
}

func TestDestroyAccountWipesSlots(t *testing.T) {
	a := common.HexToHash("0x01")

	post := NewHashedPostState()
	post.AddStorage(a, common.HexToHash("0xaa"), *uint256.NewInt(1))
	post.DestroyAccount(a)
	require.True(t, post.Storages[a].Wiped)
	require.Empty(t, post.Storages[a].Slots)

	sets := post.ConstructPrefixSets()
	require.True(t, sets.Storage[a].Retain([]byte{0x0f, 0x0f}))
}

func keyNibbles(h common.Hash) []byte {
	out := make([]byte, 64)
	for i, b := range h {
		out[2*i] = b / 16
		out[2*i+1] = b % 16
	}
	return out
}
