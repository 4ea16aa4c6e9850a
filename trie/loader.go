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
	"fmt"
	"time"

	"github.com/ledgerwatch/erigon-lib/common"
	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/ledgerwatch/log/v3"

	"github.com/flatstate/trieroot/accounts"
	"github.com/flatstate/trieroot/dbutils"
	"github.com/flatstate/trieroot/rlphacks"
)

// RootHashAggregator folds a stream of trie elements, arriving in strictly
// increasing key order, into a root hash. It keeps the previous key (curr)
// and the incoming key (succ); the structural step between them drives the
// hash builder. The same aggregator serves the account walk and the
// per-account storage walks, the difference being only the value encoding
// of leaves and the collector the records go to.
type RootHashAggregator struct {
	trace    bool
	wasIH    bool
	hadTree  bool
	root     common.Hash
	hc       HashCollector
	curr     bytes.Buffer
	succ     bytes.Buffer
	value    rlphacks.RlpSerializable
	hashVal  common.Hash
	groups   []uint16
	hasTree  []uint16
	hasHash  []uint16
	hb       *HashBuilder
	hashData GenStructStepHashData
	leafData GenStructStepLeafData
}

func NewRootHashAggregator(hc HashCollector, trace bool) *RootHashAggregator {
	return &RootHashAggregator{
		hb:    NewHashBuilder(trace),
		hc:    hc,
		trace: trace,
	}
}

// Receive accepts the next stream element. Leaf items carry the value,
// hash items carry the cached subtrie hash, the cutoff item finalizes the
// walk and makes Root() available.
func (r *RootHashAggregator) Receive(itemType StreamItem, keyHex []byte, value rlphacks.RlpSerializable, hash []byte, hasTree bool) error {
	switch itemType {
	case StorageStreamItem, AccountStreamItem:
		r.advanceKeys(keyHex, true /* terminator */)
		if r.curr.Len() > 0 {
			if err := r.genStruct(); err != nil {
				return err
			}
		}
		r.saveValue(false, hasTree, value, hash)
	case SHashStreamItem, AHashStreamItem:
		r.advanceKeys(keyHex, false /* terminator */)
		if r.curr.Len() > 0 {
			if err := r.genStruct(); err != nil {
				return err
			}
		}
		r.saveValue(true, hasTree, value, hash)
	case CutoffStreamItem:
		r.advanceKeys(nil, false)
		if r.curr.Len() > 0 {
			if err := r.genStruct(); err != nil {
				return err
			}
		}
		if r.hb.hasRoot() {
			r.root = r.hb.rootHash()
		} else {
			r.root = EmptyRoot
		}
	default:
		return fmt.Errorf("unexpected stream item: %d", itemType)
	}
	return nil
}

func (r *RootHashAggregator) Root() common.Hash { return r.root }

func (r *RootHashAggregator) advanceKeys(k []byte, terminator bool) {
	r.curr.Reset()
	r.curr.Write(r.succ.Bytes())
	r.succ.Reset()
	r.succ.Write(k)
	if terminator {
		r.succ.WriteByte(16)
	}
}

func (r *RootHashAggregator) genStruct() error {
	var err error
	var data GenStructStepData
	if r.wasIH {
		r.hashData.Hash = r.hashVal
		r.hashData.HasTree = r.hadTree
		data = &r.hashData
	} else {
		r.leafData.Value = r.value
		data = &r.leafData
	}
	r.groups, r.hasTree, r.hasHash, err = GenStructStep(r.curr.Bytes(), r.succ.Bytes(), r.hb, r.hc, data, r.groups, r.hasTree, r.hasHash, r.trace)
	return err
}

func (r *RootHashAggregator) saveValue(isIH, hasTree bool, v rlphacks.RlpSerializable, h []byte) {
	r.wasIH = isIH
	r.value = nil
	if isIH {
		r.hashVal.SetBytes(h)
		r.hadTree = hasTree
		return
	}
	r.value = v
}

// FlatDBTrieLoader walks hashed accounts merged with the overlay together
// with the cached account-trie records, in the order of a preorder trie
// traversal, and streams the result into a RootHashAggregator. Storage
// roots of the visited account leaves come from the precomputed results
// map; leaves missing there fall back to an inline computation.
type FlatDBTrieLoader struct {
	logPrefix     string
	trace         bool
	post          *HashedPostState
	prefixSets    TriePrefixSets
	storageRoots  StorageRootMap
	retainUpdates bool
	updates       *TrieUpdates
	missed        uint64

	// Account item buffer
	accountValue accounts.Account

	receiver *RootHashAggregator
}

// StorageRootMap gives the loader access to the results of the parallel
// storage-root phase. LoadAndDelete semantics let leftover (never consumed)
// results be detected after the walk.
type StorageRootMap interface {
	LoadAndDelete(key common.Hash) (StorageRootResult, bool)
}

// StorageRootResult is the outcome of one per-account storage computation.
type StorageRootResult struct {
	Root    common.Hash
	Updates *StorageTrieUpdates
}

func NewFlatDBTrieLoader(logPrefix string, post *HashedPostState, prefixSets TriePrefixSets, storageRoots StorageRootMap, retainUpdates bool, trace bool) *FlatDBTrieLoader {
	l := &FlatDBTrieLoader{
		logPrefix:     logPrefix,
		trace:         trace,
		post:          post,
		prefixSets:    prefixSets,
		storageRoots:  storageRoots,
		retainUpdates: retainUpdates,
	}
	if retainUpdates {
		l.updates = NewTrieUpdates()
	}
	l.receiver = NewRootHashAggregator(l.accountCollector(), trace)
	return l
}

// Updates returns the node diff accumulated by the walk, nil unless the
// loader was created with retainUpdates.
func (l *FlatDBTrieLoader) Updates() *TrieUpdates { return l.updates }

// MissedLeaves reports how many account leaves had to compute their storage
// root inline because no precomputed result was available.
func (l *FlatDBTrieLoader) MissedLeaves() uint64 { return l.missed }

// CalcTrieRoot algo:
//
//	for iterateCachedAccTrieRecords {
//		if canSkipState
//			goto SkipAccounts
//
//		for iterateAccounts from prevTrieRecord to currentTrieRecord {
//			storageRoot = precomputed || computeInline
//			use(account, storageRoot)
//		}
//	SkipAccounts:
//		use(cachedRecord)
//	}
func (l *FlatDBTrieLoader) CalcTrieRoot(tx kv.Tx, quit <-chan struct{}) (common.Hash, error) {
	accC, err := tx.Cursor(dbutils.HashedAccounts)
	if err != nil {
		return EmptyRoot, err
	}
	defer accC.Close()
	accs := NewPostStateAccountCursor(accC, l.post, quit)
	trieAccC, err := tx.Cursor(dbutils.TrieOfAccounts)
	if err != nil {
		return EmptyRoot, err
	}
	defer trieAccC.Close()

	canUse := func(prefix []byte) (bool, []byte) {
		retain, nextCreated := l.prefixSets.Account.RetainWithMarker(prefix)
		return !retain, nextCreated
	}
	accTrie := AccTrie(canUse, l.accountCollector(), trieAccC, quit)

	logEvery := time.NewTicker(30 * time.Second)
	defer logEvery.Stop()
	for ihK, ihV, hasTree, err := accTrie.AtPrefix(nil); ; ihK, ihV, hasTree, err = accTrie.Next() { // no loop termination is at the end of loop
		if err != nil {
			return EmptyRoot, err
		}
		if accTrie.SkipState {
			goto SkipAccounts
		}

		{
			firstPrefix, done := accTrie.FirstNotCoveredPrefix()
			if done {
				goto SkipAccounts
			}

			for k, kHex, v, err1 := accs.Seek(firstPrefix); k != nil; k, kHex, v, err1 = accs.Next() {
				if err1 != nil {
					return EmptyRoot, err1
				}
				if keyIsBefore(ihK, kHex) {
					break
				}
				if err = l.accountValue.DecodeForStorage(v); err != nil {
					return EmptyRoot, fmt.Errorf("fail DecodeForStorage: %w", err)
				}
				addrHash := common.BytesToHash(k)
				storageRoot, err2 := l.storageRootFor(tx, addrHash, quit)
				if err2 != nil {
					return EmptyRoot, err2
				}
				l.accountValue.Root = storageRoot
				// The aggregator holds the value until the next stream item,
				// so the encoding buffer cannot be reused
				accRLP := make([]byte, l.accountValue.EncodingLengthForHashing())
				l.accountValue.EncodeForHashing(accRLP)
				if err = l.receiver.Receive(AccountStreamItem, kHex, rlphacks.RlpEncodedBytes(accRLP), nil, false); err != nil {
					return EmptyRoot, err
				}

				select {
				default:
				case <-logEvery.C:
					l.logProgress(k, ihK)
				}
			}
		}

	SkipAccounts:
		if ihK == nil { // Loop termination
			break
		}

		if err = l.receiver.Receive(AHashStreamItem, ihK, nil, ihV, hasTree); err != nil {
			return EmptyRoot, err
		}
	}

	if err := l.receiver.Receive(CutoffStreamItem, nil, nil, nil, false); err != nil {
		return EmptyRoot, err
	}
	return l.receiver.Root(), nil
}

func (l *FlatDBTrieLoader) accountCollector() HashCollector {
	if !l.retainUpdates {
		return nil
	}
	return func(keyHex []byte, hasState, hasTree, hasHash uint16, hashes, rootHash []byte) error {
		if len(keyHex) == 0 {
			return nil
		}
		if hasState == 0 && hasTree == 0 && hasHash == 0 && len(hashes) == 0 && len(rootHash) == 0 {
			l.updates.AccountNodes[string(keyHex)] = nil
			return nil
		}
		v := MarshalTrieNode(hasState, hasTree, hasHash, hashes, rootHash, make([]byte, 6+len(hashes)+len(rootHash)))
		l.updates.AccountNodes[string(common.Copy(keyHex))] = v
		return nil
	}
}

// storageRootFor resolves the storage root of the account being folded:
// consume the precomputed result if the parallel phase produced one, fall
// back to an inline computation otherwise (the "missed leaf" path).
func (l *FlatDBTrieLoader) storageRootFor(tx kv.Tx, addrHash common.Hash, quit <-chan struct{}) (common.Hash, error) {
	if l.storageRoots != nil {
		if res, ok := l.storageRoots.LoadAndDelete(addrHash); ok {
			if l.retainUpdates && !res.Updates.IsEmpty() {
				l.updates.ExtendStorage(addrHash, res.Updates)
			}
			return res.Root, nil
		}
	}
	missedStorageRoots.Inc()
	l.missed++
	root, diff, err := StorageRoot(tx, addrHash, l.post.Storages[addrHash], l.prefixSets.Storage[addrHash], l.retainUpdates, quit)
	if err != nil {
		return EmptyRoot, &StorageRootError{AddrHash: addrHash, Err: err}
	}
	if l.retainUpdates && !diff.IsEmpty() {
		l.updates.ExtendStorage(addrHash, diff)
	}
	return root, nil
}

func (l *FlatDBTrieLoader) logProgress(accountKey, ihK []byte) {
	var k string
	if accountKey != nil {
		k = makeCurrentKeyStr(accountKey)
	} else if ihK != nil {
		k = makeCurrentKeyStr(ihK)
	}
	log.Info(fmt.Sprintf("[%s] Calculating Merkle root", l.logPrefix), "current key", k)
}
