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
	"github.com/ledgerwatch/erigon-lib/etl"
	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/ledgerwatch/log/v3"

	"github.com/flatstate/trieroot/dbutils"
)

// RegenerateTrie drops the cached trie tables and rebuilds them from the
// hashed state, returning the state root. The full-state walk happens with
// no overlay and an empty prefix set, so every branch node it builds gets
// recorded; the records then go through etl collectors into the tables in
// sorted order.
func RegenerateTrie(logPrefix string, tx kv.RwTx, tmpDir string, logger log.Logger, quit <-chan struct{}) (common.Hash, error) {
	if err := tx.ClearBucket(dbutils.TrieOfAccounts); err != nil {
		return EmptyRoot, err
	}
	if err := tx.ClearBucket(dbutils.TrieOfStorage); err != nil {
		return EmptyRoot, err
	}

	post := NewHashedPostState()
	loader := NewFlatDBTrieLoader(logPrefix, post, post.ConstructPrefixSets(), nil, true, false)
	root, err := loader.CalcTrieRoot(tx, quit)
	if err != nil {
		return EmptyRoot, err
	}

	accCollector := etl.NewCollector(logPrefix+" gen trie acc", tmpDir, etl.NewSortableBuffer(etl.BufferOptimalSize), logger)
	defer accCollector.Close()
	accCollector.LogLvl(log.LvlDebug)
	stCollector := etl.NewCollector(logPrefix+" gen trie storage", tmpDir, etl.NewSortableBuffer(etl.BufferOptimalSize), logger)
	defer stCollector.Close()
	stCollector.LogLvl(log.LvlDebug)

	updates := loader.Updates()
	for path, v := range updates.AccountNodes {
		if v == nil { // no tombstones on a cleared table
			continue
		}
		if err := accCollector.Collect([]byte(path), v); err != nil {
			return EmptyRoot, err
		}
	}
	for addrHash, diff := range updates.Storage {
		for path, v := range diff.Nodes {
			if v == nil {
				continue
			}
			if err := stCollector.Collect(dbutils.GenerateCompositeTrieKey(addrHash, []byte(path)), v); err != nil {
				return EmptyRoot, err
			}
		}
	}

	if err := accCollector.Load(tx, dbutils.TrieOfAccounts, etl.IdentityLoadFunc, etl.TransformArgs{Quit: quit}); err != nil {
		return EmptyRoot, fmt.Errorf("load account trie records: %w", err)
	}
	if err := stCollector.Load(tx, dbutils.TrieOfStorage, etl.IdentityLoadFunc, etl.TransformArgs{Quit: quit}); err != nil {
		return EmptyRoot, fmt.Errorf("load storage trie records: %w", err)
	}
	return root, nil
}
