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
	"github.com/ledgerwatch/erigon-lib/kv"

	"github.com/flatstate/trieroot/dbutils"
	"github.com/flatstate/trieroot/rlphacks"
)

// StreamItem is the kind of element produced by the trie walks.
type StreamItem uint8

const (
	// StorageStreamItem is a storage leaf: slot path plus value
	StorageStreamItem StreamItem = iota
	// SHashStreamItem is a cached storage subtrie: path plus hash
	SHashStreamItem
	// AccountStreamItem is an account leaf: address path plus encoded account
	AccountStreamItem
	// AHashStreamItem is a cached account subtrie: path plus hash
	AHashStreamItem
	// CutoffStreamItem finalizes the walk
	CutoffStreamItem
)

// StorageRoot computes the storage root of one account: the persistent
// hashed storage merged with the account's overlay, reusing cached trie
// records outside the prefix set. When retainUpdates is set it also
// produces the node diff of the walk.
func StorageRoot(tx kv.Tx, addrHash common.Hash, storage *HashedStorage, prefixSet *PrefixSet, retainUpdates bool, quit <-chan struct{}) (common.Hash, *StorageTrieUpdates, error) {
	if prefixSet == nil {
		prefixSet = NewPrefixSet()
	}
	wiped := storage != nil && storage.Wiped

	var updates *StorageTrieUpdates
	var shc StorageHashCollector
	if retainUpdates {
		updates = NewStorageTrieUpdates()
		updates.Wiped = wiped
		shc = func(_ []byte, keyHex []byte, hasState, hasTree, hasHash uint16, hashes, rootHash []byte) error {
			if hasState == 0 && hasTree == 0 && hasHash == 0 && len(hashes) == 0 && len(rootHash) == 0 {
				updates.Nodes[string(keyHex)] = nil // tombstone
				return nil
			}
			v := MarshalTrieNode(hasState, hasTree, hasHash, hashes, rootHash, make([]byte, 6+len(hashes)+len(rootHash)))
			updates.Nodes[string(common.Copy(keyHex))] = v
			return nil
		}
	}

	trieC, err := tx.Cursor(dbutils.TrieOfStorage)
	if err != nil {
		return EmptyRoot, nil, err
	}
	defer trieC.Close()
	stateC, err := tx.Cursor(dbutils.HashedStorage)
	if err != nil {
		return EmptyRoot, nil, err
	}
	defer stateC.Close()

	canUse := func(prefix []byte) (bool, []byte) {
		if wiped {
			return false, nil
		}
		retain, nextCreated := prefixSet.RetainWithMarker(prefix)
		return !retain, nextCreated
	}
	addrHashBytes := addrHash.Bytes()
	var hc HashCollector
	if shc != nil {
		hc = func(keyHex []byte, hasState, hasTree, hasHash uint16, hashes, rootHash []byte) error {
			return shc(addrHashBytes, keyHex, hasState, hasTree, hasHash, hashes, rootHash)
		}
	}
	st := StorageTrie(canUse, shc, trieC, quit)
	ss := NewPostStateStorageCursor(stateC, addrHash, storage, quit)
	r := NewRootHashAggregator(hc, false)

	var kHexS []byte
	for ihK, ihV, hasTree, err := st.SeekToAccount(addrHashBytes); ; ihK, ihV, hasTree, err = st.Next() {
		if err != nil {
			return EmptyRoot, nil, err
		}
		if ihK != nil && len(ihK) == 0 {
			// The account's cached storage root survived the overlay
			return common.BytesToHash(ihV), updates, nil
		}
		if st.skipState {
			goto SkipStorage
		}

		{
			firstPrefix, done := st.FirstNotCoveredPrefix()
			if done {
				goto SkipStorage
			}
			for k, v, err1 := ss.Seek(firstPrefix); k != nil; k, v, err1 = ss.Next() {
				if err1 != nil {
					return EmptyRoot, nil, err1
				}
				DecompressNibbles(k, &kHexS)
				if keyIsBefore(ihK, kHexS) { // read until the next cached record
					break
				}
				if err = r.Receive(StorageStreamItem, kHexS, rlphacks.RlpSerializableBytes(common.Copy(v)), nil, false); err != nil {
					return EmptyRoot, nil, err
				}
			}
		}

	SkipStorage:
		if ihK == nil { // Loop termination
			break
		}
		if err = r.Receive(SHashStreamItem, ihK, nil, ihV, hasTree); err != nil {
			return EmptyRoot, nil, err
		}
	}

	if err := r.Receive(CutoffStreamItem, nil, nil, nil, false); err != nil {
		return EmptyRoot, nil, err
	}
	return r.Root(), updates, nil
}
