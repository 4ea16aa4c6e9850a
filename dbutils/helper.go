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

// NextSubtree does []byte++. Returns false if overflow.
func NextSubtree(in []byte) ([]byte, bool) {
	r := make([]byte, len(in))
	copy(r, in)
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] != 255 {
			r[i]++
			return r, true
		}

		r[i] = 0
	}
	return nil, false
}

// NextNibblesSubtree is the nibble-space version of NextSubtree: it
// increments the last non-0xf nibble and truncates the tail. Returns
// false when the path consists of 0xf nibbles only.
func NextNibblesSubtree(in []byte, out *[]byte) bool {
	r := (*out)[:0]
	for i := len(in) - 1; i >= 0; i-- {
		if in[i] != 15 { // max nibble
			r = append(r, in[:i+1]...)
			r[i]++
			*out = r
			return true
		}
	}
	*out = r
	return false
}
