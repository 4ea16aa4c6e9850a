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
	"fmt"

	"github.com/ledgerwatch/erigon-lib/common"
	"github.com/ledgerwatch/erigon-lib/common/length"
)

// GenerateCompositeStorageKey produces the HashedStorage key:
// keccak(address) | keccak(slot).
func GenerateCompositeStorageKey(addrHash, slotHash common.Hash) []byte {
	compositeKey := make([]byte, length.Hash+length.Hash)
	copy(compositeKey, addrHash[:])
	copy(compositeKey[length.Hash:], slotHash[:])
	return compositeKey
}

// ParseCompositeStorageKey splits a HashedStorage key back into its
// account and slot hashes.
func ParseCompositeStorageKey(compositeKey []byte) (common.Hash, common.Hash, error) {
	if len(compositeKey) != 2*length.Hash {
		return common.Hash{}, common.Hash{}, fmt.Errorf("invalid storage key length: %d", len(compositeKey))
	}
	var addrHash, slotHash common.Hash
	copy(addrHash[:], compositeKey[:length.Hash])
	copy(slotHash[:], compositeKey[length.Hash:])
	return addrHash, slotHash, nil
}

// GenerateCompositeTrieKey produces the TrieOfStorage key:
// keccak(address) | nibble path.
func GenerateCompositeTrieKey(addrHash common.Hash, path []byte) []byte {
	compositeKey := make([]byte, 0, length.Hash+len(path))
	compositeKey = append(compositeKey, addrHash[:]...)
	compositeKey = append(compositeKey, path...)
	return compositeKey
}
