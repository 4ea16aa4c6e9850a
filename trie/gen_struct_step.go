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
	"fmt"

	"github.com/ledgerwatch/erigon-lib/common"

	"github.com/flatstate/trieroot/rlphacks"
)

// structInfoReceiver is the set of opcodes emitted by the structure
// generation algorithm. Each opcode folds or pushes subtrie hashes on the
// receiver's stack.
type structInfoReceiver interface {
	leafHash(keyLength int, keyHex []byte, val rlphacks.RlpSerializable) error
	extensionHash(key []byte) error
	branchHash(set uint16) error
	hash(hash []byte) error
	topHash() []byte
	topHashes(prefix []byte, hasHash, hasState uint16) []byte
}

// HashCollector gets called whenever a branch node is folded, so that the
// caller can persist (or invalidate) the intermediate node record for the
// given nibble path. rootHash is non-nil only for the record that closes a
// whole subtrie at the walk cutoff.
type HashCollector func(keyHex []byte, hasState, hasTree, hasHash uint16, hashes, rootHash []byte) error
type StorageHashCollector func(addrHash []byte, keyHex []byte, hasState, hasTree, hasHash uint16, hashes, rootHash []byte) error

func calcPrecLen(groups []uint16) int {
	if len(groups) == 0 {
		return 0
	}
	return len(groups) - 1
}

type GenStructStepData interface {
	GenStructStepData()
}

type GenStructStepLeafData struct {
	Value rlphacks.RlpSerializable
}

func (GenStructStepLeafData) GenStructStepData() {}

type GenStructStepHashData struct {
	Hash    common.Hash
	HasTree bool
}

func (GenStructStepHashData) GenStructStepData() {}

// GenStructStep is one step of the algorithm that generates the structural information based on the sequence of keys.
// `curr`, `succ` are two full keys or prefixes that are currently visible to the algorithm. By comparing these, the algorithm
// makes decisions about the local structure, i.e. the presence of the prefix groups.
// `e` parameter is the hash builder, which uses the structure information to fold subtrie hashes on its stack.
// `h` parameter is the hash collector, which is notified whenever a branch node is folded.
// `data` parameter specifies whether a leaf or a hash is being emitted for `curr`.
// `groups` parameter is the map of the stack. each element of the `groups` slice is a bitmask, one bit per element currently on the stack.
// Whenever a branch opcode is emitted, the set of digits is taken from the corresponding `groups` item, which is
// then removed from the slice. This signifies the usage of the number of the stack items by the branch opcode.
// `hasTree` and `hasHash` are maintained in parallel with `groups`: per-level bitmasks of the digits under which
// a stored subtree exists, and of the digits whose folded hashes are available for collection.
func GenStructStep(
	curr, succ []byte,
	e structInfoReceiver,
	h HashCollector,
	data GenStructStepData,
	groups []uint16,
	hasTree []uint16,
	hasHash []uint16,
	trace bool,
) ([]uint16, []uint16, []uint16, error) {
	for precLen, buildExtensions := calcPrecLen(groups), false; precLen >= 0; precLen, buildExtensions = calcPrecLen(groups), true {
		var precExists = len(groups) > 0
		// Calculate the prefix of the smallest prefix group containing curr
		var precLen int
		if len(groups) > 0 {
			precLen = len(groups) - 1
		}
		succLen := prefixLen(succ, curr)
		var maxLen int
		if precLen > succLen {
			maxLen = precLen
		} else {
			maxLen = succLen
		}
		if trace {
			fmt.Printf("curr: %x, succ: %x, maxLen %d, groups: %b, precLen: %d, succLen: %d, buildExtensions: %t\n", curr, succ, maxLen, groups, precLen, succLen, buildExtensions)
		}

		// Add the digit immediately following the max common prefix and compute length of remainder length
		extraDigit := curr[maxLen]
		for maxLen >= len(groups) {
			groups = append(groups, 0)
		}
		groups[maxLen] |= uint16(1) << extraDigit
		remainderStart := maxLen
		if len(succ) > 0 || precExists {
			remainderStart++
		}
		for remainderStart >= len(hasTree) {
			hasTree = append(hasTree, 0)
			hasHash = append(hasHash, 0)
		}
		remainderLen := len(curr) - remainderStart

		if !buildExtensions {
			switch v := data.(type) {
			case *GenStructStepHashData:
				/* building a hash */
				if err := e.hash(v.Hash[:]); err != nil {
					return nil, nil, nil, err
				}
				hasHash[maxLen] |= uint16(1) << curr[maxLen]
				if v.HasTree {
					hasTree[maxLen] |= uint16(1) << curr[maxLen]
				}
				buildExtensions = true
			case *GenStructStepLeafData:
				/* building leafs */
				if err := e.leafHash(remainderLen, curr, v.Value); err != nil {
					return nil, nil, nil, err
				}
			default:
				panic(fmt.Errorf("unknown data type: %T", data))
			}
		}

		if buildExtensions {
			if remainderLen > 0 {
				if trace {
					fmt.Printf("Extension %x\n", curr[remainderStart:remainderStart+remainderLen])
				}
				/* building extensions */
				if remainderStart > 0 {
					// The subtree flag of the node being wrapped into the extension
					// moves up to the extension's parent digit
					if (uint16(1)<<curr[remainderStart+remainderLen-1])&hasTree[remainderStart+remainderLen-1] != 0 {
						hasTree[remainderStart-1] |= uint16(1) << curr[remainderStart-1]
					}
					for i := remainderStart; i < len(hasTree); i++ {
						hasTree[i] = 0
						hasHash[i] = 0
					}
				}
				if err := e.extensionHash(curr[remainderStart : remainderStart+remainderLen]); err != nil {
					return nil, nil, nil, err
				}
			}
		}
		// Check for the optional part
		if precLen <= succLen && len(succ) > 0 {
			return groups, hasTree, hasHash, nil
		}

		var usefulHashes []byte
		// Close the immediately encompassing prefix group, if needed
		if len(succ) > 0 || precExists {
			if maxLen > 0 {
				hasHash[maxLen-1] |= uint16(1) << curr[maxLen-1]
				if hasTree[maxLen] != 0 {
					hasTree[maxLen-1] |= uint16(1) << curr[maxLen-1]
				}
			}
			if h != nil {
				canSendHashes := hasHash[maxLen] != 0
				if canSendHashes {
					usefulHashes = e.topHashes(curr[:maxLen], hasHash[maxLen], groups[maxLen])
					if maxLen != 0 {
						hasTree[maxLen-1] |= uint16(1) << curr[maxLen-1]
						if err := h(curr[:maxLen], groups[maxLen], hasTree[maxLen], hasHash[maxLen], usefulHashes, nil); err != nil {
							return nil, nil, nil, err
						}
					}
				}
			}
			if err := e.branchHash(groups[maxLen]); err != nil {
				return nil, nil, nil, err
			}
			if h != nil && maxLen == 0 {
				// Closes the whole subtrie at the walk cutoff, carrying the
				// subtrie root hash
				if err := h(curr[:maxLen], groups[maxLen], hasTree[maxLen], hasHash[maxLen], usefulHashes, e.topHash()); err != nil {
					return nil, nil, nil, err
				}
			}
			for i := maxLen; i < len(hasTree); i++ {
				hasTree[i] = 0
				hasHash[i] = 0
			}
		}
		groups = groups[:maxLen]
		// Check the end of recursion
		if precLen == 0 {
			return groups, hasTree, hasHash, nil
		}
		// Identify preceding key for the buildExtensions invocation
		curr = curr[:precLen]
		for len(groups) > 0 && groups[len(groups)-1] == 0 {
			groups = groups[:len(groups)-1]
		}
	}
	return nil, nil, nil, nil
}

func prefixLen(a, b []byte) int {
	var i int
	for i = 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			break
		}
	}
	return i
}
