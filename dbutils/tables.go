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
	"github.com/ledgerwatch/erigon-lib/kv"
)

const (
	// HashedAccounts is the flat representation of the account state:
	// keccak(address) -> compact account encoding (without storage root).
	HashedAccounts = "HashedAccount"

	// HashedStorage is the flat representation of the storage state:
	// keccak(address) | keccak(slot) -> zero-trimmed big-endian value.
	HashedStorage = "HashedStorage"

	// TrieOfAccounts holds cached branch nodes of the account trie:
	// nibble path -> marshaled branch node.
	TrieOfAccounts = "TrieAccount"

	// TrieOfStorage holds cached branch nodes of per-account storage tries:
	// keccak(address) | nibble path -> marshaled branch node. The empty-path
	// entry additionally carries the storage root.
	TrieOfStorage = "TrieStorage"
)

var Tables = []string{
	HashedAccounts,
	HashedStorage,
	TrieOfAccounts,
	TrieOfStorage,
}

// TablesCfg describes the schema to the mdbx opener. All tables are plain:
// storage keys carry the full 64-byte composite, nothing is dup-sorted.
var TablesCfg = kv.TableCfg{
	HashedAccounts: {},
	HashedStorage:  {},
	TrieOfAccounts: {},
	TrieOfStorage:  {},
}
