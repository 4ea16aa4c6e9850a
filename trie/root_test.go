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

package trie_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"sort"
	"testing"

	"github.com/ledgerwatch/erigon-lib/common"
	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/ledgerwatch/log/v3"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	"github.com/flatstate/trieroot/accounts"
	"github.com/flatstate/trieroot/dbutils"
	"github.com/flatstate/trieroot/memdb"
	"github.com/flatstate/trieroot/trie"
)

// The naive reference implementation below builds the trie recursively from
// all leaves at once, the textbook way. The flat-db computation must agree
// with it on every state.

func keccak(b []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return h.Sum(nil)
}

func rlpString(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	if len(b) < 56 {
		return append([]byte{0x80 + byte(len(b))}, b...)
	}
	var lenBuf []byte
	for l := len(b); l > 0; l >>= 8 {
		lenBuf = append([]byte{byte(l)}, lenBuf...)
	}
	out := append([]byte{0xb7 + byte(len(lenBuf))}, lenBuf...)
	return append(out, b...)
}

func rlpList(payload []byte) []byte {
	if len(payload) < 56 {
		return append([]byte{0xc0 + byte(len(payload))}, payload...)
	}
	var lenBuf []byte
	for l := len(payload); l > 0; l >>= 8 {
		lenBuf = append([]byte{byte(l)}, lenBuf...)
	}
	out := append([]byte{0xf7 + byte(len(lenBuf))}, lenBuf...)
	return append(out, payload...)
}

func toNibbles(k []byte) []byte {
	out := make([]byte, 2*len(k))
	for i, b := range k {
		out[2*i] = b / 16
		out[2*i+1] = b % 16
	}
	return out
}

func hexPrefix(nibbles []byte, leaf bool) []byte {
	var flag byte
	if leaf {
		flag = 2
	}
	if len(nibbles)%2 == 1 {
		out := make([]byte, 1+len(nibbles)/2)
		out[0] = (flag|1)<<4 | nibbles[0]
		for i := 0; i < len(nibbles)/2; i++ {
			out[1+i] = nibbles[1+2*i]<<4 | nibbles[2+2*i]
		}
		return out
	}
	out := make([]byte, 1+len(nibbles)/2)
	out[0] = flag << 4
	for i := 0; i < len(nibbles)/2; i++ {
		out[1+i] = nibbles[2*i]<<4 | nibbles[1+2*i]
	}
	return out
}

type naiveLeaf struct {
	key   []byte // nibbles, no terminator
	value []byte // value blob as stored in the leaf
}

func naiveRef(nodeRLP []byte) []byte {
	if len(nodeRLP) < 32 {
		return nodeRLP
	}
	return rlpString(keccak(nodeRLP))
}

func naiveBuild(leaves []naiveLeaf, depth int) []byte {
	if len(leaves) == 1 {
		l := leaves[0]
		payload := append(rlpString(hexPrefix(l.key[depth:], true)), rlpString(l.value)...)
		return rlpList(payload)
	}
	// leaves are sorted, so the common prefix of all of them is the common
	// prefix of the first and the last
	first, last := leaves[0].key, leaves[len(leaves)-1].key
	cpl := 0
	for depth+cpl < len(first) && first[depth+cpl] == last[depth+cpl] {
		cpl++
	}
	if cpl > 0 {
		child := naiveBuild(leaves, depth+cpl)
		payload := append(rlpString(hexPrefix(first[depth:depth+cpl], false)), naiveRef(child)...)
		return rlpList(payload)
	}
	var payload []byte
	i := 0
	for nibble := byte(0); nibble < 16; nibble++ {
		j := i
		for j < len(leaves) && leaves[j].key[depth] == nibble {
			j++
		}
		if j == i {
			payload = append(payload, 0x80)
			continue
		}
		payload = append(payload, naiveRef(naiveBuild(leaves[i:j], depth+1))...)
		i = j
	}
	payload = append(payload, 0x80) // value slot
	return rlpList(payload)
}

func naiveRoot(leaves []naiveLeaf) common.Hash {
	if len(leaves) == 0 {
		return trie.EmptyRoot
	}
	sort.Slice(leaves, func(i, j int) bool { return bytes.Compare(leaves[i].key, leaves[j].key) < 0 })
	return common.BytesToHash(keccak(naiveBuild(leaves, 0)))
}

// naiveStateRoot recomputes the root of everything in the hashed state
// tables from scratch.
func naiveStateRoot(t *testing.T, tx kv.Tx) common.Hash {
	t.Helper()
	ac, err := tx.Cursor(dbutils.HashedAccounts)
	require.NoError(t, err)
	defer ac.Close()
	sc, err := tx.Cursor(dbutils.HashedStorage)
	require.NoError(t, err)
	defer sc.Close()

	var accLeaves []naiveLeaf
	for k, v, err := ac.First(); k != nil; k, v, err = ac.Next() {
		require.NoError(t, err)
		var acc accounts.Account
		require.NoError(t, acc.DecodeForStorage(v))

		var storageLeaves []naiveLeaf
		for sk, sv, serr := sc.Seek(k); sk != nil; sk, sv, serr = sc.Next() {
			require.NoError(t, serr)
			if !bytes.HasPrefix(sk, k) {
				break
			}
			storageLeaves = append(storageLeaves, naiveLeaf{
				key:   toNibbles(sk[32:]),
				value: rlpString(common.Copy(sv)),
			})
		}
		acc.Root = naiveRoot(storageLeaves)

		accRLP := make([]byte, acc.EncodingLengthForHashing())
		acc.EncodeForHashing(accRLP)
		accLeaves = append(accLeaves, naiveLeaf{key: toNibbles(k), value: accRLP})
	}
	return naiveRoot(accLeaves)
}

func hashFromHex(t testing.TB, fragment string) common.Hash {
	t.Helper()
	b, err := hex.DecodeString(fragment)
	require.NoError(t, err)
	var h common.Hash
	copy(h[:], b)
	return h
}

func writeAccount(t *testing.T, tx kv.RwTx, addrHash common.Hash, acc *accounts.Account) {
	t.Helper()
	buf := make([]byte, acc.EncodingLengthForStorage())
	acc.EncodeForStorage(buf)
	require.NoError(t, tx.Put(dbutils.HashedAccounts, addrHash[:], buf))
}

func writeStorage(t *testing.T, tx kv.RwTx, addrHash, slotHash common.Hash, v uint256.Int) {
	t.Helper()
	require.NoError(t, tx.Put(dbutils.HashedStorage, dbutils.GenerateCompositeStorageKey(addrHash, slotHash), v.Bytes()))
}

func regenerate(t *testing.T, db kv.RwDB) common.Hash {
	t.Helper()
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	root, err := trie.RegenerateTrie("test", tx, t.TempDir(), log.New(), nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return root
}

// applyPost commits the overlay to the hashed state tables, so that the
// naive implementation can recompute the post state from the database alone.
func applyPost(t *testing.T, db kv.RwDB, post *trie.HashedPostState) {
	t.Helper()
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	for addrHash, acc := range post.Accounts {
		if acc == nil {
			require.NoError(t, tx.Delete(dbutils.HashedAccounts, addrHash[:]))
			continue
		}
		writeAccount(t, tx, addrHash, acc)
	}
	for addrHash, storage := range post.Storages {
		if storage.Wiped {
			deleteStoragePrefix(t, tx, addrHash)
		}
		for slotHash, v := range storage.Slots {
			key := dbutils.GenerateCompositeStorageKey(addrHash, slotHash)
			if v.IsZero() {
				require.NoError(t, tx.Delete(dbutils.HashedStorage, key))
				continue
			}
			require.NoError(t, tx.Put(dbutils.HashedStorage, key, v.Bytes()))
		}
	}
	require.NoError(t, tx.Commit())
}

func deleteStoragePrefix(t *testing.T, tx kv.RwTx, addrHash common.Hash) {
	t.Helper()
	c, err := tx.RwCursor(dbutils.HashedStorage)
	require.NoError(t, err)
	defer c.Close()
	for k, _, err := c.Seek(addrHash[:]); k != nil; k, _, err = c.Next() {
		require.NoError(t, err)
		if !bytes.HasPrefix(k, addrHash[:]) {
			break
		}
		require.NoError(t, c.DeleteCurrent())
	}
}

func sequentialRoot(t *testing.T, db kv.RoDB) common.Hash {
	t.Helper()
	tx, err := db.BeginRo(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	root, err := trie.CalcTrieRoot("test", tx, nil)
	require.NoError(t, err)
	return root
}

func TestEmptyStateRoot(t *testing.T) {
	db := memdb.NewTestDB(t)
	require.Equal(t, common.HexToHash("0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421"), sequentialRoot(t, db))
}

// Root of a state holding exactly one account (nonce 0, balance 1, no code,
// no storage) at hashed address 0x01...00, generated once from a reference
// Merkle-Patricia implementation.
func TestSingleAccountGoldenRoot(t *testing.T) {
	addrHash := hashFromHex(t, "01")
	db := memdb.NewTestDB(t)
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	writeAccount(t, tx, addrHash, &accounts.Account{Initialised: true, Balance: *uint256.NewInt(1)})
	require.NoError(t, tx.Commit())

	golden := common.HexToHash("0x8b30eaf173f4e205ebac32fbbec1feb5578ada8fac511b7f1dcd8b53e60c278d")
	require.Equal(t, golden, regenerate(t, db))

	roTx, err := db.BeginRo(context.Background())
	require.NoError(t, err)
	require.Equal(t, golden, naiveStateRoot(t, roTx))
	roTx.Rollback()
}

// These key sets exercise structural corner cases of the walk: branches
// closing at several levels at once, extensions above branches, and cached
// records covering dense key ranges.
var trieSeeds = [][]string{
	{"0a00", "0bc0", "0bd0"},
	{"ff00", "fff0", "ffff"},
	{"a000", "aa00", "aaa0", "b000", "cc00", "ccc0", "cdd0"},
	{"a000", "aa00", "bb00", "bbb0", "bbbb"},
	{"a00000", "aaa000", "aaaa00", "aaaaa0", "b00000", "ccc000", "ccc0c0", "cccc00"},
	{"a000", "b000", "b0b0", "bbb0"},
	{"a00000", "bbbb00", "bbbb0b", "bbbbb0", "c00000", "cc0000", "ccc000"},
}

func TestRegenerateMatchesNaive(t *testing.T) {
	for _, seeds := range trieSeeds {
		db := memdb.NewTestDB(t)
		tx, err := db.BeginRw(context.Background())
		require.NoError(t, err)
		for i, fragment := range seeds {
			writeAccount(t, tx, hashFromHex(t, fragment), &accounts.Account{Initialised: true, Nonce: uint64(i + 1)})
		}
		require.NoError(t, tx.Commit())

		root := regenerate(t, db)

		roTx, err := db.BeginRo(context.Background())
		require.NoError(t, err)
		require.Equal(t, naiveStateRoot(t, roTx), root, "seeds %v", seeds)
		roTx.Rollback()

		// second computation goes through the cached records
		require.Equal(t, root, sequentialRoot(t, db), "seeds %v", seeds)
	}
}

func TestStorageRootMatchesNaive(t *testing.T) {
	contract := hashFromHex(t, "01")
	for _, seeds := range trieSeeds {
		db := memdb.NewTestDB(t)
		tx, err := db.BeginRw(context.Background())
		require.NoError(t, err)
		writeAccount(t, tx, contract, &accounts.Account{Initialised: true, Nonce: 1, CodeHash: common.Hash{9}})
		for i, fragment := range seeds {
			writeStorage(t, tx, contract, hashFromHex(t, fragment), *uint256.NewInt(uint64(i + 2)))
		}
		require.NoError(t, tx.Commit())

		root := regenerate(t, db)

		roTx, err := db.BeginRo(context.Background())
		require.NoError(t, err)
		require.Equal(t, naiveStateRoot(t, roTx), root, "seeds %v", seeds)
		roTx.Rollback()

		require.Equal(t, root, sequentialRoot(t, db), "seeds %v", seeds)
	}
}

func TestIncrementalAccounts(t *testing.T) {
	db := memdb.NewTestDB(t)
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	for _, fragment := range []string{"a000", "aa00", "bb00", "bbb0", "bbbb", "cc00"} {
		writeAccount(t, tx, hashFromHex(t, fragment), &accounts.Account{Initialised: true, Nonce: 1})
	}
	require.NoError(t, tx.Commit())
	regenerate(t, db)

	post := trie.NewHashedPostState()
	post.AddAccount(hashFromHex(t, "aa00"), &accounts.Account{Initialised: true, Nonce: 2})          // modified
	post.AddAccount(hashFromHex(t, "ab00"), &accounts.Account{Initialised: true, Nonce: 1})          // created
	post.AddAccount(hashFromHex(t, "cc00"), nil)                                                     // deleted
	post.AddAccount(hashFromHex(t, "dd00"), &accounts.Account{Initialised: true, Balance: *uint256.NewInt(7)}) // created

	root, updates, err := trie.NewParallelStateRoot("test", db, post).
		WithRetainUpdates().
		WithWorkers(4).
		ComputeWithUpdates(context.Background())
	require.NoError(t, err)

	applyPost(t, db, post)
	roTx, err := db.BeginRo(context.Background())
	require.NoError(t, err)
	require.Equal(t, naiveStateRoot(t, roTx), root)
	roTx.Rollback()

	// persist the node diff and recompute through the refreshed cache
	rwTx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	require.NoError(t, updates.WriteToTx(rwTx))
	require.NoError(t, rwTx.Commit())
	require.Equal(t, root, sequentialRoot(t, db))
}

func TestIncrementalStorage(t *testing.T) {
	contract := hashFromHex(t, "02")
	db := memdb.NewTestDB(t)
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	writeAccount(t, tx, contract, &accounts.Account{Initialised: true, Nonce: 1, CodeHash: common.Hash{9}})
	writeAccount(t, tx, hashFromHex(t, "f000"), &accounts.Account{Initialised: true, Nonce: 1})
	for _, fragment := range []string{"a000", "aa00", "bb00", "bbb0"} {
		writeStorage(t, tx, contract, hashFromHex(t, fragment), *uint256.NewInt(3))
	}
	require.NoError(t, tx.Commit())
	regenerate(t, db)

	post := trie.NewHashedPostState()
	post.AddStorage(contract, hashFromHex(t, "aa00"), *uint256.NewInt(5)) // modified
	post.AddStorage(contract, hashFromHex(t, "ac00"), *uint256.NewInt(6)) // created
	post.AddStorage(contract, hashFromHex(t, "bbb0"), uint256.Int{})      // deleted

	root, updates, err := trie.NewParallelStateRoot("test", db, post).
		WithRetainUpdates().
		ComputeWithUpdates(context.Background())
	require.NoError(t, err)

	applyPost(t, db, post)
	roTx, err := db.BeginRo(context.Background())
	require.NoError(t, err)
	require.Equal(t, naiveStateRoot(t, roTx), root)
	roTx.Rollback()

	rwTx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	require.NoError(t, updates.WriteToTx(rwTx))
	require.NoError(t, rwTx.Commit())
	require.Equal(t, root, sequentialRoot(t, db))
}

func TestDestroyedContract(t *testing.T) {
	contract := hashFromHex(t, "03")
	db := memdb.NewTestDB(t)
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	writeAccount(t, tx, contract, &accounts.Account{Initialised: true, Nonce: 1, CodeHash: common.Hash{9}})
	writeAccount(t, tx, hashFromHex(t, "f000"), &accounts.Account{Initialised: true, Nonce: 1})
	for _, fragment := range []string{"a000", "aa00", "bb00", "bbb0", "cc00"} {
		writeStorage(t, tx, contract, hashFromHex(t, fragment), *uint256.NewInt(4))
	}
	require.NoError(t, tx.Commit())
	regenerate(t, db)

	post := trie.NewHashedPostState()
	post.DestroyAccount(contract)

	root, updates, err := trie.NewParallelStateRoot("test", db, post).
		WithRetainUpdates().
		ComputeWithUpdates(context.Background())
	require.NoError(t, err)
	require.True(t, updates.Storage[contract].Wiped)

	applyPost(t, db, post)
	roTx, err := db.BeginRo(context.Background())
	require.NoError(t, err)
	require.Equal(t, naiveStateRoot(t, roTx), root)
	roTx.Rollback()

	rwTx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	require.NoError(t, updates.WriteToTx(rwTx))
	require.NoError(t, rwTx.Commit())

	// the wipe must have removed the contract's cached trie records
	roTx, err = db.BeginRo(context.Background())
	require.NoError(t, err)
	c, err := roTx.Cursor(dbutils.TrieOfStorage)
	require.NoError(t, err)
	k, _, err := c.Seek(contract[:])
	require.NoError(t, err)
	require.False(t, bytes.HasPrefix(k, contract[:]))
	c.Close()
	roTx.Rollback()

	require.Equal(t, root, sequentialRoot(t, db))
}

func TestWipedStorageRecreated(t *testing.T) {
	contract := hashFromHex(t, "04")
	db := memdb.NewTestDB(t)
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	writeAccount(t, tx, contract, &accounts.Account{Initialised: true, Nonce: 1, CodeHash: common.Hash{9}})
	writeAccount(t, tx, hashFromHex(t, "f000"), &accounts.Account{Initialised: true, Nonce: 1})
	for _, fragment := range []string{"a000", "aa00", "bb00", "bbb0"} {
		writeStorage(t, tx, contract, hashFromHex(t, fragment), *uint256.NewInt(4))
	}
	require.NoError(t, tx.Commit())
	regenerate(t, db)

	// the contract survives, but its storage is torn down and rebuilt,
	// reusing one old slot key with a new value
	post := trie.NewHashedPostState()
	post.AddAccount(contract, &accounts.Account{Initialised: true, Nonce: 2, CodeHash: common.Hash{9}})
	post.Storages[contract] = trie.NewHashedStorage(true)
	post.AddStorage(contract, hashFromHex(t, "aa00"), *uint256.NewInt(8))
	post.AddStorage(contract, hashFromHex(t, "dd00"), *uint256.NewInt(7))

	root, updates, err := trie.NewParallelStateRoot("test", db, post).
		WithRetainUpdates().
		ComputeWithUpdates(context.Background())
	require.NoError(t, err)
	require.True(t, updates.Storage[contract].Wiped)

	// the pre-wipe slots must have no influence: the root equals that of a
	// database which never held them
	applyPost(t, db, post)
	roTx, err := db.BeginRo(context.Background())
	require.NoError(t, err)
	require.Equal(t, naiveStateRoot(t, roTx), root)
	roTx.Rollback()

	rwTx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	require.NoError(t, updates.WriteToTx(rwTx))
	require.NoError(t, rwTx.Commit())
	require.Equal(t, root, sequentialRoot(t, db))
}

func TestMissedLeafFallback(t *testing.T) {
	contract := hashFromHex(t, "04")
	db := memdb.NewTestDB(t)
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	writeAccount(t, tx, contract, &accounts.Account{Initialised: true, Nonce: 1, CodeHash: common.Hash{9}})
	for _, fragment := range []string{"a000", "bb00", "cc00"} {
		writeStorage(t, tx, contract, hashFromHex(t, fragment), *uint256.NewInt(8))
	}
	require.NoError(t, tx.Commit())
	regenerate(t, db)

	post := trie.NewHashedPostState()
	post.AddStorage(contract, hashFromHex(t, "bb00"), *uint256.NewInt(9))

	parallelRoot, err := trie.NewParallelStateRoot("test", db, post).Compute(context.Background())
	require.NoError(t, err)

	// no precomputed results at all: every changed account goes through the
	// inline path
	roTx, err := db.BeginRo(context.Background())
	require.NoError(t, err)
	defer roTx.Rollback()
	loader := trie.NewFlatDBTrieLoader("test", post, post.ConstructPrefixSets(), nil, false, false)
	inlineRoot, err := loader.CalcTrieRoot(roTx, nil)
	require.NoError(t, err)
	require.Equal(t, parallelRoot, inlineRoot)
	require.Greater(t, loader.MissedLeaves(), uint64(0))
}

func TestParallelWorkerCountIrrelevant(t *testing.T) {
	db := memdb.NewTestDB(t)
	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	for i, fragment := range []string{"05", "06", "07"} {
		contract := hashFromHex(t, fragment)
		writeAccount(t, tx, contract, &accounts.Account{Initialised: true, Nonce: uint64(i + 1), CodeHash: common.Hash{9}})
		for _, slot := range []string{"a000", "aa00", "bb00"} {
			writeStorage(t, tx, contract, hashFromHex(t, slot), *uint256.NewInt(uint64(i + 10)))
		}
	}
	require.NoError(t, tx.Commit())
	regenerate(t, db)

	post := trie.NewHashedPostState()
	for _, fragment := range []string{"05", "06", "07"} {
		post.AddStorage(hashFromHex(t, fragment), hashFromHex(t, "aa00"), *uint256.NewInt(42))
	}

	root1, err := trie.NewParallelStateRoot("test", db, post).WithWorkers(1).Compute(context.Background())
	require.NoError(t, err)
	root4, err := trie.NewParallelStateRoot("test", db, post).WithWorkers(4).Compute(context.Background())
	require.NoError(t, err)
	require.Equal(t, root1, root4)

	applyPost(t, db, post)
	roTx, err := db.BeginRo(context.Background())
	require.NoError(t, err)
	defer roTx.Rollback()
	require.Equal(t, naiveStateRoot(t, roTx), root1)
}
