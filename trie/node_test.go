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
	"github.com/stretchr/testify/require"
)

func TestCompressDecompressNibbles(t *testing.T) {
	var compressed, decompressed []byte
	in := []byte{0x0a, 0x0b, 0x0c, 0x0d}
	CompressNibbles(in, &compressed)
	require.Equal(t, []byte{0xab, 0xcd}, compressed)
	DecompressNibbles(compressed, &decompressed)
	require.Equal(t, in, decompressed)

	CompressNibbles(nil, &compressed)
	require.Empty(t, compressed)
}

func TestKeyIsBefore(t *testing.T) {
	require.True(t, keyIsBefore([]byte{0x01}, []byte{0x02}))
	require.False(t, keyIsBefore([]byte{0x02}, []byte{0x01}))
	// nil sorts last
	require.True(t, keyIsBefore([]byte{0xff}, nil))
	require.False(t, keyIsBefore(nil, []byte{0x00}))
	require.False(t, keyIsBefore(nil, nil))
}

func TestMarshalUnmarshalTrieNode(t *testing.T) {
	h1 := common.HexToHash("0x11")
	h2 := common.HexToHash("0x22")
	root := common.HexToHash("0x33")

	hashes := append(append([]byte{}, h1.Bytes()...), h2.Bytes()...)
	v := MarshalTrieNode(0b111, 0b010, 0b101, hashes, root.Bytes(), make([]byte, 6+len(hashes)+32))

	hasState, hasTree, hasHash, gotHashes, gotRoot := UnmarshalTrieNodeTyped(v)
	require.Equal(t, uint16(0b111), hasState)
	require.Equal(t, uint16(0b010), hasTree)
	require.Equal(t, uint16(0b101), hasHash)
	require.Equal(t, []common.Hash{h1, h2}, gotHashes)
	require.Equal(t, root, gotRoot)
}

func TestUnmarshalTrieNodeWithoutRoot(t *testing.T) {
	h1 := common.HexToHash("0x11")
	v := MarshalTrieNode(0b11, 0, 0b10, h1.Bytes(), nil, make([]byte, 6+32))

	_, _, hasHash, hashes, rootHash := UnmarshalTrieNode(v)
	require.Equal(t, uint16(0b10), hasHash)
	require.Equal(t, h1.Bytes(), hashes)
	require.Empty(t, rootHash)
}

func TestValidateTrieRecord(t *testing.T) {
	h1 := common.HexToHash("0x11")
	k := []byte{0x0a}

	good := MarshalTrieNode(0b11, 0, 0b10, h1.Bytes(), nil, make([]byte, 6+32))
	require.NoError(t, ValidateTrieRecord(k, good))

	withRoot := MarshalTrieNode(0b11, 0b10, 0b10, h1.Bytes(), h1.Bytes(), make([]byte, 6+64))
	require.NoError(t, ValidateTrieRecord(k, withRoot))

	err := ValidateTrieRecord(k, []byte{0x01, 0x02})
	require.ErrorIs(t, err, ErrCorruptedTrieRecord)

	err = ValidateTrieRecord(k, good[:6+17]) // truncated hash
	require.ErrorIs(t, err, ErrCorruptedTrieRecord)

	// hasHash digit outside hasState
	bad := MarshalTrieNode(0b01, 0, 0b10, h1.Bytes(), nil, make([]byte, 6+32))
	require.ErrorIs(t, ValidateTrieRecord(k, bad), ErrCorruptedTrieRecord)

	// more hashes than the mask flags
	tooMany := MarshalTrieNode(0b11, 0, 0b10, append(h1.Bytes(), make([]byte, 64)...), nil, make([]byte, 6+96))
	require.ErrorIs(t, ValidateTrieRecord(k, tooMany), ErrCorruptedTrieRecord)
}
