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

	"github.com/stretchr/testify/require"
)

func TestPrefixSetRetain(t *testing.T) {
	ps := NewPrefixSet()
	ps.AddKey([]byte{0xa0})
	ps.AddKey([]byte{0xbb})

	require.True(t, ps.Retain([]byte{}))
	require.True(t, ps.Retain([]byte{0x0a}))
	require.True(t, ps.Retain([]byte{0x0a, 0x00}))
	require.False(t, ps.Retain([]byte{0x0a, 0x01}))
	require.True(t, ps.Retain([]byte{0x0b}))
	require.True(t, ps.Retain([]byte{0x0b, 0x0b}))
	require.False(t, ps.Retain([]byte{0x0c}))
}

func TestPrefixSetEmpty(t *testing.T) {
	ps := NewPrefixSet()
	require.False(t, ps.Retain([]byte{}))
	require.False(t, ps.Retain([]byte{0x01}))
}

func TestPrefixSetAll(t *testing.T) {
	ps := NewPrefixSetAll()
	require.True(t, ps.Retain([]byte{}))
	require.True(t, ps.Retain([]byte{0x0f, 0x0f}))
	retain, next := ps.RetainWithMarker([]byte{0x01})
	require.True(t, retain)
	require.Nil(t, next)
}

func TestPrefixSetMarkers(t *testing.T) {
	ps := NewPrefixSet()
	ps.AddKeyWithMarker([]byte{0xa0}, false)
	ps.AddKeyWithMarker([]byte{0xbb}, true)
	ps.AddKeyWithMarker([]byte{0xcc}, false)

	_, next := ps.RetainWithMarker([]byte{0x0a})
	require.Equal(t, []byte{0x0b, 0x0b}, next)

	// past the marked key there is nothing marked left
	_, next = ps.RetainWithMarker([]byte{0x0c})
	require.Nil(t, next)
}

func TestPrefixSetAscendingWindow(t *testing.T) {
	ps := NewPrefixSet()
	for _, k := range [][]byte{{0x11}, {0x22}, {0x33}, {0x44}} {
		ps.AddKey(k)
	}
	// ascending probes move the window forward without losing matches
	require.True(t, ps.Retain([]byte{0x01}))
	require.False(t, ps.Retain([]byte{0x01, 0x02}))
	require.True(t, ps.Retain([]byte{0x02, 0x02}))
	require.True(t, ps.Retain([]byte{0x03}))
	require.False(t, ps.Retain([]byte{0x04, 0x05}))

	ps.Rewind()
	require.True(t, ps.Retain([]byte{0x01, 0x01}))
}
