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
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/ledgerwatch/erigon-lib/common"
	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/ledgerwatch/log/v3"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

// ParallelStateRoot computes the state root after applying a HashedPostState
// overlay on top of the flat state in db. Storage roots of changed accounts
// are computed first, in parallel, each worker on its own read transaction;
// the account walk then runs sequentially and consumes the precomputed
// roots as it folds account leaves.
//
// The database must not be written between the parallel phase and the
// account walk: every worker opens its own snapshot, and a write in between
// would let them diverge.
type ParallelStateRoot struct {
	logPrefix     string
	db            kv.RoDB
	post          *HashedPostState
	workers       int
	retainUpdates bool
	trace         bool

	stats ParallelTrieStats
}

func NewParallelStateRoot(logPrefix string, db kv.RoDB, post *HashedPostState) *ParallelStateRoot {
	return &ParallelStateRoot{
		logPrefix: logPrefix,
		db:        db,
		post:      post,
		workers:   runtime.NumCPU(),
	}
}

// WithWorkers bounds the number of concurrent storage-root computations.
func (p *ParallelStateRoot) WithWorkers(workers int) *ParallelStateRoot {
	if workers > 0 {
		p.workers = workers
	}
	return p
}

// WithRetainUpdates makes the computation collect the trie node diff, to be
// retrieved alongside the root from ComputeWithUpdates.
func (p *ParallelStateRoot) WithRetainUpdates() *ParallelStateRoot {
	p.retainUpdates = true
	return p
}

func (p *ParallelStateRoot) WithTrace() *ParallelStateRoot {
	p.trace = true
	return p
}

// Stats is valid after Compute or ComputeWithUpdates returns.
func (p *ParallelStateRoot) Stats() ParallelTrieStats { return p.stats }

func (p *ParallelStateRoot) Compute(ctx context.Context) (common.Hash, error) {
	root, _, err := p.ComputeWithUpdates(ctx)
	return root, err
}

func (p *ParallelStateRoot) ComputeWithUpdates(ctx context.Context) (common.Hash, *TrieUpdates, error) {
	start := time.Now()
	defer rootCalcDuration.UpdateDuration(start)

	prefixSets := p.post.ConstructPrefixSets()
	targets := NewStorageRootTargets(p.post, prefixSets)
	p.stats = ParallelTrieStats{Targets: len(targets)}

	storageRoots := xsync.NewMapOf[common.Hash, StorageRootResult]()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for addrHash, prefixSet := range targets {
		addrHash, prefixSet := addrHash, prefixSet
		g.Go(func() error {
			tx, err := p.db.BeginRo(gctx)
			if err != nil {
				return err
			}
			defer tx.Rollback()
			root, diff, err := StorageRoot(tx, addrHash, p.post.Storages[addrHash], prefixSet, p.retainUpdates, gctx.Done())
			if err != nil {
				return &StorageRootError{AddrHash: addrHash, Err: err}
			}
			parallelStorageRoots.Inc()
			storageRoots.Store(addrHash, StorageRootResult{Root: root, Updates: diff})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return EmptyRoot, nil, err
	}

	tx, err := p.db.BeginRo(ctx)
	if err != nil {
		return EmptyRoot, nil, err
	}
	defer tx.Rollback()

	loader := NewFlatDBTrieLoader(p.logPrefix, p.post, prefixSets, storageRoots, p.retainUpdates, p.trace)
	root, err := loader.CalcTrieRoot(tx, ctx.Done())
	if err != nil {
		return EmptyRoot, nil, err
	}

	updates := loader.Updates()
	if p.retainUpdates {
		// Results the account walk did not consume still carry node diffs
		// worth persisting (the account exists and its subtrie changed, but
		// its leaf was folded from a cached branch record).
		storageRoots.Range(func(addrHash common.Hash, res StorageRootResult) bool {
			p.stats.LeftoverRoots++
			if !res.Updates.IsEmpty() {
				updates.ExtendStorage(addrHash, res.Updates)
			}
			return true
		})
		// Cached storage records of destroyed accounts must go.
		for addrHash := range prefixSets.DestroyedAccounts {
			if _, ok := updates.Storage[addrHash]; !ok {
				updates.Storage[addrHash] = &StorageTrieUpdates{Wiped: true}
			} else {
				updates.Storage[addrHash].Wiped = true
			}
		}
	} else {
		storageRoots.Range(func(common.Hash, StorageRootResult) bool {
			p.stats.LeftoverRoots++
			return true
		})
	}

	p.stats.MissedLeaves = loader.MissedLeaves()
	p.stats.Duration = time.Since(start)
	log.Debug(fmt.Sprintf("[%s] Computed state root", p.logPrefix),
		"root", root,
		"targets", p.stats.Targets,
		"missed", p.stats.MissedLeaves,
		"leftover", p.stats.LeftoverRoots,
		"in", p.stats.Duration)
	return root, updates, nil
}

// CalcTrieRoot computes the state root of the flat state in tx with no
// overlay, sequentially. Cached trie records are used wherever present.
func CalcTrieRoot(logPrefix string, tx kv.Tx, quit <-chan struct{}) (common.Hash, error) {
	post := NewHashedPostState()
	loader := NewFlatDBTrieLoader(logPrefix, post, post.ConstructPrefixSets(), nil, false, false)
	return loader.CalcTrieRoot(tx, quit)
}
