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
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"

	"github.com/ledgerwatch/erigon-lib/common"
	"github.com/ledgerwatch/erigon-lib/common/length"

	"github.com/flatstate/trieroot/dbutils"
)

// CompressNibbles packs a sequence of nibbles (one per byte, values 0..15)
// back into compact bytes. len(nibbles) must be even.
func CompressNibbles(nibbles []byte, out *[]byte) {
	tmp := (*out)[:0]
	for i := 0; i < len(nibbles); i += 2 {
		tmp = append(tmp, nibbles[i]<<4|nibbles[i+1])
	}
	*out = tmp
}

// DecompressNibbles unpacks compact bytes into nibbles, one per byte.
func DecompressNibbles(in []byte, out *[]byte) {
	tmp := (*out)[:0]
	for _, b := range in {
		tmp = append(tmp, b>>4, b&0x0f)
	}
	*out = tmp
}

// keyIsBefore - kind of bytes.Compare, but nil is the last key
func keyIsBefore(k1, k2 []byte) bool {
	if k1 == nil {
		return false
	}
	if k2 == nil {
		return true
	}
	return bytes.Compare(k1, k2) < 0
}

// firstNotCoveredPrefix returns the compact-encoded seek key for the part of
// the state not covered by the trie record just consumed. The bool result is
// true when nothing remains (prev was the last possible subtree).
func firstNotCoveredPrefix(prev, prefix, buf []byte) ([]byte, bool) {
	if len(prev) > 0 {
		if !dbutils.NextNibblesSubtree(prev, &buf) {
			return buf, true
		}
	} else {
		buf = append(buf[:0], prefix...)
	}
	if len(buf)%2 == 1 {
		buf = append(buf, 0)
	}
	CompressNibbles(buf, &buf)
	return buf, false
}

// ValidateTrieRecord checks a cached branch record against its bitmasks
// before it is trusted by a cursor.
func ValidateTrieRecord(k, v []byte) error {
	if len(v) < 6 || (len(v)-6)%length.Hash != 0 {
		return fmt.Errorf("%w: key %x, value length %d", ErrCorruptedTrieRecord, k, len(v))
	}
	hasState, hasTree, hasHash := binary.BigEndian.Uint16(v), binary.BigEndian.Uint16(v[2:]), binary.BigEndian.Uint16(v[4:])
	if hasTree&^hasState != 0 || hasHash&^hasState != 0 {
		return fmt.Errorf("%w: key %x, tree %b / hash %b not subsets of state %b", ErrCorruptedTrieRecord, k, hasTree, hasHash, hasState)
	}
	if n := (len(v) - 6) / length.Hash; n != bits.OnesCount16(hasHash) && n != bits.OnesCount16(hasHash)+1 {
		return fmt.Errorf("%w: key %x, %d hashes for mask %b", ErrCorruptedTrieRecord, k, n, hasHash)
	}
	return nil
}

// Trie node records are serialized as: 3 bitmasks (hasState, hasTree,
// hasHash), then optionally the subtrie root hash, then the child hashes of
// the digits flagged in hasHash. The root hash presence is detected from the
// count: hashes hold exactly OnesCount(hasHash) entries, one extra means the
// root is stored in front.
func UnmarshalTrieNode(v []byte) (hasState, hasTree, hasHash uint16, hashes, rootHash []byte) {
	hasState, hasTree, hasHash, hashes = binary.BigEndian.Uint16(v), binary.BigEndian.Uint16(v[2:]), binary.BigEndian.Uint16(v[4:]), v[6:]
	if bits.OnesCount16(hasHash)+1 == len(hashes)/length.Hash {
		rootHash = hashes[:length.Hash]
		hashes = hashes[length.Hash:]
	}
	return
}

func UnmarshalTrieNodeTyped(v []byte) (hasState, hasTree, hasHash uint16, hashes []common.Hash, rootHash common.Hash) {
	hasState, hasTree, hasHash, v = binary.BigEndian.Uint16(v), binary.BigEndian.Uint16(v[2:]), binary.BigEndian.Uint16(v[4:]), v[6:]
	if bits.OnesCount16(hasHash)+1 == len(v)/length.Hash {
		rootHash.SetBytes(common.Copy(v[:length.Hash]))
		v = v[length.Hash:]
	}
	hashes = make([]common.Hash, len(v)/length.Hash)
	for i := 0; i < len(hashes); i++ {
		hashes[i].SetBytes(common.Copy(v[i*length.Hash : (i+1)*length.Hash]))
	}
	return
}

func MarshalTrieNode(hasState, hasTree, hasHash uint16, hashes, rootHash []byte, buf []byte) []byte {
	buf = buf[:len(hashes)+len(rootHash)+6]
	meta, hashesList := buf[:6], buf[6:]
	binary.BigEndian.PutUint16(meta, hasState)
	binary.BigEndian.PutUint16(meta[2:], hasTree)
	binary.BigEndian.PutUint16(meta[4:], hasHash)
	if len(rootHash) == 0 {
		copy(hashesList, hashes)
	} else {
		copy(hashesList, rootHash)
		copy(hashesList[length.Hash:], hashes)
	}
	return buf
}

func MarshalTrieNodeTyped(hasState, hasTree, hasHash uint16, h []common.Hash, buf []byte) []byte {
	buf = buf[:6+len(h)*length.Hash]
	meta, hashes := buf[:6], buf[6:]
	binary.BigEndian.PutUint16(meta, hasState)
	binary.BigEndian.PutUint16(meta[2:], hasTree)
	binary.BigEndian.PutUint16(meta[4:], hasHash)
	for i := 0; i < len(h); i++ {
		copy(hashes[i*length.Hash:(i+1)*length.Hash], h[i].Bytes())
	}
	return buf
}

func CastTrieNodeValue(hashes, rootHash []byte) []common.Hash {
	to := make([]common.Hash, len(hashes)/length.Hash+len(rootHash)/length.Hash)
	i := 0
	if len(rootHash) > 0 {
		to[0].SetBytes(common.Copy(rootHash))
		i++
	}
	for j := 0; j < len(hashes)/length.Hash; j++ {
		to[i].SetBytes(common.Copy(hashes[j*length.Hash : (j+1)*length.Hash]))
		i++
	}
	return to
}

func makeCurrentKeyStr(k []byte) string {
	var currentKeyStr string
	if k == nil {
		currentKeyStr = "final"
	} else if len(k) < 4 {
		currentKeyStr = hex.EncodeToString(k)
	} else {
		currentKeyStr = hex.EncodeToString(k[:4])
	}
	return currentKeyStr
}
