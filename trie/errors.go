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
	"errors"
	"fmt"

	"github.com/ledgerwatch/erigon-lib/common"
)

// ErrCorruptedTrieRecord is returned when a cached trie node record cannot
// be decoded or contradicts its bitmasks.
var ErrCorruptedTrieRecord = errors.New("corrupted trie node record")

// StorageRootError wraps a failure of one per-account storage root
// computation with the account it belongs to.
type StorageRootError struct {
	AddrHash common.Hash
	Err      error
}

func (e *StorageRootError) Error() string {
	return fmt.Sprintf("storage root for %x: %v", e.AddrHash, e.Err)
}

func (e *StorageRootError) Unwrap() error { return e.Err }
