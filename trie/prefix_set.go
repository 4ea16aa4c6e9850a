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
	"bytes"
	"sort"
)

// PrefixSet marks the parts of the trie that have been changed and therefore
// cannot be loaded from the cached node records. A prefix is "retained" when
// some changed key has it as a prefix. Lookups must come in ascending key
// order, which lets the set keep a moving window (lteIndex) instead of
// binary-searching on every call.
type PrefixSet struct {
	hexes    sortableHexes
	markers  []bool // markers[i] is true when hexes[i] is a newly created key
	lteIndex int    // Index of the "LTE" key in the keys slice. Next one is "GT"
	inited   bool   // Whether the keys are sorted and the window index is set
	all      bool   // Retain everything, used when the whole subtrie is invalidated
}

type sortableHexes [][]byte

func (s sortableHexes) Len() int           { return len(s) }
func (s sortableHexes) Less(i, j int) bool { return bytes.Compare(s[i], s[j]) < 0 }
func (s sortableHexes) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

func NewPrefixSet() *PrefixSet {
	return &PrefixSet{}
}

// NewPrefixSetAll returns a set that retains every prefix.
func NewPrefixSetAll() *PrefixSet {
	return &PrefixSet{all: true}
}

// AddKey adds a compact (byte-per-8-bits) key, converting it to nibbles.
func (ps *PrefixSet) AddKey(key []byte) {
	ps.AddKeyWithMarker(key, false)
}

// AddKeyWithMarker adds a compact key. The marker flags keys that did not
// exist before the state change, which bounds how far the walk may skip
// over the state without missing new leaves.
func (ps *PrefixSet) AddKeyWithMarker(key []byte, marker bool) {
	nibbles := make([]byte, 2*len(key))
	for i, b := range key {
		nibbles[i*2] = b / 16
		nibbles[i*2+1] = b % 16
	}
	ps.AddHex(nibbles, marker)
}

// AddHex adds a key already in nibble form.
func (ps *PrefixSet) AddHex(hex []byte, marker bool) {
	ps.hexes = append(ps.hexes, hex)
	ps.markers = append(ps.markers, marker)
	ps.inited = false
}

func (ps *PrefixSet) Len() int { return len(ps.hexes) }

func (ps *PrefixSet) ensureInited() {
	if ps.inited {
		return
	}
	if !sort.IsSorted(ps.hexes) {
		sort.Sort(&prefixSetSorter{ps})
	}
	ps.lteIndex = 0
	ps.inited = true
}

// prefixSetSorter keeps markers aligned with hexes while sorting.
type prefixSetSorter struct {
	ps *PrefixSet
}

func (s *prefixSetSorter) Len() int { return len(s.ps.hexes) }
func (s *prefixSetSorter) Less(i, j int) bool {
	return bytes.Compare(s.ps.hexes[i], s.ps.hexes[j]) < 0
}
func (s *prefixSetSorter) Swap(i, j int) {
	s.ps.hexes[i], s.ps.hexes[j] = s.ps.hexes[j], s.ps.hexes[i]
	s.ps.markers[i], s.ps.markers[j] = s.ps.markers[j], s.ps.markers[i]
}

// Retain reports whether the given nibble prefix covers any changed key.
func (ps *PrefixSet) Retain(prefix []byte) bool {
	retain, _ := ps.RetainWithMarker(prefix)
	return retain
}

// RetainWithMarker additionally returns the next marked (newly created) key
// at or after the window position, or nil if there is none. Callers use it
// to bound state-skipping: the skip must not jump over a created key that
// has no cached trie record yet.
func (ps *PrefixSet) RetainWithMarker(prefix []byte) (bool, []byte) {
	if ps.all {
		return true, nil
	}
	if len(ps.hexes) == 0 {
		return false, nil
	}
	ps.ensureInited()
	// Adjust "GT" if necessary
	var gtAdjusted bool
	for ps.lteIndex < len(ps.hexes)-1 && bytes.Compare(ps.hexes[ps.lteIndex+1], prefix) <= 0 {
		ps.lteIndex++
		gtAdjusted = true
	}
	// Adjust "LTE" if necessary (normally will not be necessary)
	for !gtAdjusted && ps.lteIndex > 0 && bytes.Compare(ps.hexes[ps.lteIndex], prefix) > 0 {
		ps.lteIndex--
	}
	if ps.lteIndex < len(ps.hexes) {
		if bytes.HasPrefix(ps.hexes[ps.lteIndex], prefix) {
			return true, ps.nextMarkedItem(ps.lteIndex)
		}
	}
	if ps.lteIndex < len(ps.hexes)-1 {
		if bytes.HasPrefix(ps.hexes[ps.lteIndex+1], prefix) {
			return true, ps.nextMarkedItem(ps.lteIndex + 1)
		}
	}
	return false, ps.nextMarkedItem(ps.lteIndex)
}

func (ps *PrefixSet) nextMarkedItem(i int) []byte {
	for j := i; j < len(ps.markers); j++ {
		if ps.markers[j] {
			return ps.hexes[j]
		}
	}
	return nil
}

// Rewind resets the moving window so the set can be walked again from the
// lowest key.
func (ps *PrefixSet) Rewind() {
	ps.lteIndex = 0
}
