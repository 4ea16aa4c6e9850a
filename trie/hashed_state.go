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
	"github.com/holiman/uint256"

	"github.com/flatstate/trieroot/accounts"
)

// HashedPostState is an in-memory overlay of state changes, keyed by hashed
// addresses and hashed slots, to be merged over the persistent state during
// root computation.
type HashedPostState struct {
	// Accounts maps hashed address to the new account state. A nil entry
	// means the account was destroyed.
	Accounts map[common.Hash]*accounts.Account
	// Storages maps hashed address to the account's storage overlay.
	Storages map[common.Hash]*HashedStorage
}

// HashedStorage is the storage overlay of a single account.
type HashedStorage struct {
	// Wiped means the whole persistent storage of the account is gone, only
	// the Slots below exist.
	Wiped bool
	// Slots maps hashed slot to its new value. A zero value means the slot
	// was deleted.
	Slots map[common.Hash]uint256.Int
}

func NewHashedPostState() *HashedPostState {
	return &HashedPostState{
		Accounts: make(map[common.Hash]*accounts.Account),
		Storages: make(map[common.Hash]*HashedStorage),
	}
}

func NewHashedStorage(wiped bool) *HashedStorage {
	return &HashedStorage{
		Wiped: wiped,
		Slots: make(map[common.Hash]uint256.Int),
	}
}

// AddAccount records a new account state under its hashed address.
func (s *HashedPostState) AddAccount(addrHash common.Hash, account *accounts.Account) {
	s.Accounts[addrHash] = account
}

// DestroyAccount records the destruction of the account. Its storage is
// implicitly wiped.
func (s *HashedPostState) DestroyAccount(addrHash common.Hash) {
	s.Accounts[addrHash] = nil
	storage, ok := s.Storages[addrHash]
	if !ok {
		storage = NewHashedStorage(true)
		s.Storages[addrHash] = storage
		return
	}
	storage.Wiped = true
	storage.Slots = make(map[common.Hash]uint256.Int)
}

// AddStorage records a storage slot change. A zero value deletes the slot.
func (s *HashedPostState) AddStorage(addrHash, slotHash common.Hash, value uint256.Int) {
	storage, ok := s.Storages[addrHash]
	if !ok {
		storage = NewHashedStorage(false)
		s.Storages[addrHash] = storage
	}
	storage.Slots[slotHash] = value
}

func (s *HashedPostState) IsEmpty() bool {
	return len(s.Accounts) == 0 && len(s.Storages) == 0
}

// TriePrefixSets is the change mask derived from a HashedPostState: which
// parts of the account trie and of each storage trie cannot be served from
// cached node records.
type TriePrefixSets struct {
	Account           *PrefixSet
	Storage           map[common.Hash]*PrefixSet
	DestroyedAccounts map[common.Hash]struct{}
}

// ConstructPrefixSets converts the overlay into prefix sets. Modified keys
// are added with the created marker set, which conservatively treats every
// update as a possible insertion; deletions carry no marker since a deleted
// key cannot be new.
func (s *HashedPostState) ConstructPrefixSets() TriePrefixSets {
	out := TriePrefixSets{
		Account:           NewPrefixSet(),
		Storage:           make(map[common.Hash]*PrefixSet),
		DestroyedAccounts: make(map[common.Hash]struct{}),
	}
	for addrHash, account := range s.Accounts {
		out.Account.AddKeyWithMarker(addrHash.Bytes(), account != nil)
		if account == nil {
			out.DestroyedAccounts[addrHash] = struct{}{}
		}
	}
	for addrHash, storage := range s.Storages {
		if _, ok := s.Accounts[addrHash]; !ok {
			// Storage-only change still dirties the account leaf, since the
			// account's storage root changes with it
			out.Account.AddKey(addrHash.Bytes())
		}
		if storage.Wiped {
			out.Storage[addrHash] = NewPrefixSetAll()
			continue
		}
		ps := NewPrefixSet()
		for slotHash, value := range storage.Slots {
			ps.AddKeyWithMarker(slotHash.Bytes(), !value.IsZero())
		}
		out.Storage[addrHash] = ps
	}
	return out
}
