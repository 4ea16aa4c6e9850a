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

	"github.com/ledgerwatch/erigon-lib/common"
	"github.com/ledgerwatch/erigon-lib/kv"

	"github.com/flatstate/trieroot/dbutils"
)

// TrieUpdates is the node-level diff produced by a root computation:
// marshaled node records to write and paths to tombstone, for the account
// trie and for each touched storage trie. Map keys are nibble paths.
type TrieUpdates struct {
	// AccountNodes maps nibble path to a marshaled node record. A nil value
	// is a tombstone: the record at that path must be deleted.
	AccountNodes map[string][]byte
	Storage      map[common.Hash]*StorageTrieUpdates
}

// StorageTrieUpdates is the diff of one account's storage trie. The
// empty-path record carries the storage root.
type StorageTrieUpdates struct {
	// Wiped requests deletion of every existing record of the account
	// before applying Nodes.
	Wiped bool
	Nodes map[string][]byte
}

func NewTrieUpdates() *TrieUpdates {
	return &TrieUpdates{
		AccountNodes: make(map[string][]byte),
		Storage:      make(map[common.Hash]*StorageTrieUpdates),
	}
}

func NewStorageTrieUpdates() *StorageTrieUpdates {
	return &StorageTrieUpdates{Nodes: make(map[string][]byte)}
}

func (t *StorageTrieUpdates) IsEmpty() bool {
	return t == nil || (!t.Wiped && len(t.Nodes) == 0)
}

// ExtendStorage merges one account's storage diff in.
func (t *TrieUpdates) ExtendStorage(addrHash common.Hash, diff *StorageTrieUpdates) {
	if diff.IsEmpty() {
		return
	}
	existing, ok := t.Storage[addrHash]
	if !ok {
		t.Storage[addrHash] = diff
		return
	}
	if diff.Wiped {
		existing.Wiped = true
		existing.Nodes = make(map[string][]byte)
	}
	for path, v := range diff.Nodes {
		existing.Nodes[path] = v
	}
}

// Extend merges another diff in, the other taking precedence.
func (t *TrieUpdates) Extend(other *TrieUpdates) {
	for path, v := range other.AccountNodes {
		t.AccountNodes[path] = v
	}
	for addrHash, diff := range other.Storage {
		t.ExtendStorage(addrHash, diff)
	}
}

func (t *TrieUpdates) IsEmpty() bool {
	return len(t.AccountNodes) == 0 && len(t.Storage) == 0
}

// WriteToTx applies the diff to the trie tables. Writes go in sorted key
// order, which mdbx prefers.
func (t *TrieUpdates) WriteToTx(tx kv.RwTx) error {
	accPaths := make([]string, 0, len(t.AccountNodes))
	for path := range t.AccountNodes {
		accPaths = append(accPaths, path)
	}
	sort.Strings(accPaths)
	for _, path := range accPaths {
		if v := t.AccountNodes[path]; v == nil {
			if err := tx.Delete(dbutils.TrieOfAccounts, []byte(path)); err != nil {
				return err
			}
		} else {
			if err := tx.Put(dbutils.TrieOfAccounts, []byte(path), v); err != nil {
				return err
			}
		}
	}

	addrHashes := make([]common.Hash, 0, len(t.Storage))
	for addrHash := range t.Storage {
		addrHashes = append(addrHashes, addrHash)
	}
	sort.Slice(addrHashes, func(i, j int) bool {
		return bytes.Compare(addrHashes[i][:], addrHashes[j][:]) < 0
	})
	for _, addrHash := range addrHashes {
		diff := t.Storage[addrHash]
		if diff.Wiped {
			if err := deleteByPrefix(tx, dbutils.TrieOfStorage, addrHash[:]); err != nil {
				return err
			}
		}
		paths := make([]string, 0, len(diff.Nodes))
		for path := range diff.Nodes {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			k := dbutils.GenerateCompositeTrieKey(addrHash, []byte(path))
			if v := diff.Nodes[path]; v == nil {
				if err := tx.Delete(dbutils.TrieOfStorage, k); err != nil {
					return err
				}
			} else {
				if err := tx.Put(dbutils.TrieOfStorage, k, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func deleteByPrefix(tx kv.RwTx, table string, prefix []byte) error {
	c, err := tx.RwCursor(table)
	if err != nil {
		return err
	}
	defer c.Close()
	for k, _, err := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _, err = c.Next() {
		if err != nil {
			return err
		}
		if err = c.DeleteCurrent(); err != nil {
			return err
		}
	}
	return nil
}
