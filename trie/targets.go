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
	"github.com/ledgerwatch/erigon-lib/common"
)

// StorageRootTargets maps each account whose storage root must be
// recomputed to the prefix set of its storage trie. Accounts with a dirty
// leaf but untouched storage get an empty set, so their walk is served
// entirely from cached nodes. Destroyed accounts are not targets: their
// leaves disappear from the account trie.
type StorageRootTargets map[common.Hash]*PrefixSet

// NewStorageRootTargets selects targets from the overlay and its derived
// prefix sets. Every account in the storage overlay and every surviving
// account in the accounts overlay appears exactly once.
func NewStorageRootTargets(post *HashedPostState, prefixSets TriePrefixSets) StorageRootTargets {
	targets := make(StorageRootTargets, len(post.Storages)+len(post.Accounts))
	for addrHash, account := range post.Accounts {
		if account == nil {
			continue
		}
		targets[addrHash] = NewPrefixSet()
	}
	for addrHash, ps := range prefixSets.Storage {
		if _, destroyed := prefixSets.DestroyedAccounts[addrHash]; destroyed {
			continue
		}
		targets[addrHash] = ps
	}
	return targets
}
