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
	"hash"
	"io"
	"math/bits"

	"github.com/ledgerwatch/erigon-lib/common"
	"github.com/ledgerwatch/erigon-lib/common/length"
	"golang.org/x/crypto/sha3"

	"github.com/flatstate/trieroot/rlphacks"
)

const hashStackStride = length.Hash + 1 // + 1 byte for RLP encoding

var EmptyRoot = common.HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

type keccakState interface {
	hash.Hash
	Read([]byte) (int, error)
}

// hasTerm reports whether a hex key ends with the terminator nibble.
func hasTerm(s []byte) bool {
	return len(s) > 0 && s[len(s)-1] == 16
}

// ByteArrayWriter is an io.Writer writing into a pre-allocated byte slice,
// used to capture RLP of embedded nodes without extra allocations.
type ByteArrayWriter struct {
	dest []byte
	pos  int
}

func (w *ByteArrayWriter) Setup(dest []byte, pos int) {
	w.dest = dest
	w.pos = pos
}

func (w *ByteArrayWriter) Write(data []byte) (int, error) {
	copy(w.dest[w.pos:], data)
	w.pos += len(data)
	return len(data), nil
}

// HashBuilder builds root hashes from a stream of structural fold
// instructions. Unlike a full trie builder it never materialises nodes,
// it only maintains a stack of hashes (or short embedded RLP) for the
// subtries whose parents have not been closed yet.
type HashBuilder struct {
	byteArrayWriter *ByteArrayWriter

	hashStack     []byte                // Stack of sub-slices, 33 bytes each, containing RLP encodings of node hashes (or of nodes themselves, if shorter than 32 bytes)
	topHashesCopy []byte
	sha           keccakState           // Keccak primitive that can absorb data (Write), and get squeezed to the hash out (Read)
	hashBuf       [hashStackStride]byte // RLP representation of hash (or un-hashed value)
	keyPrefix     [1]byte
	lenPrefix     [4]byte
	b             [1]byte // Buffer for single byte
	prefixBuf     [8]byte
	trace         bool // Set to true when HashBuilder is required to print trace information for diagnostics
}

// NewHashBuilder creates a new HashBuilder
func NewHashBuilder(trace bool) *HashBuilder {
	return &HashBuilder{
		sha:             sha3.NewLegacyKeccak256().(keccakState),
		byteArrayWriter: &ByteArrayWriter{},
		trace:           trace,
	}
}

// Reset makes the HashBuilder suitable for reuse
func (hb *HashBuilder) Reset() {
	hb.hashStack = hb.hashStack[:0]
	hb.topHashesCopy = hb.topHashesCopy[:0]
}

func (hb *HashBuilder) leafHash(keyLength int, keyHex []byte, val rlphacks.RlpSerializable) error {
	if hb.trace {
		fmt.Printf("LEAFHASH %d\n", keyLength)
	}
	if keyLength < 0 {
		return fmt.Errorf("negative key length %d", keyLength)
	}
	key := keyHex[len(keyHex)-keyLength:]
	return hb.leafHashWithKeyVal(key, val)
}

// To be called internally
func (hb *HashBuilder) leafHashWithKeyVal(key []byte, val rlphacks.RlpSerializable) error {
	// Compute the total length of binary representation
	var kp, kl int
	// Write key
	var compactLen int
	var ni int
	var compact0 byte
	compactLen = (len(key)-1)/2 + 1
	if len(key)&1 == 0 {
		compact0 = 0x30 + key[0] // Odd: (3<<4) + first nibble
		ni = 1
	} else {
		compact0 = 0x20
	}
	if compactLen > 1 {
		hb.keyPrefix[0] = 0x80 + byte(compactLen)
		kp = 1
		kl = compactLen
	} else {
		kl = 1
	}

	err := hb.completeLeafHash(kp, kl, compactLen, key, compact0, ni, val)
	if err != nil {
		return err
	}

	hb.hashStack = append(hb.hashStack, hb.hashBuf[:]...)
	return nil
}

func (hb *HashBuilder) completeLeafHash(kp, kl, compactLen int, key []byte, compact0 byte, ni int, val rlphacks.RlpSerializable) error {
	totalLen := kp + kl + val.DoubleRLPLen()
	pt := rlphacks.GenerateStructLen(hb.lenPrefix[:], totalLen)

	var writer io.Writer
	var reader io.Reader

	if totalLen+pt < length.Hash {
		// Embedded node
		hb.byteArrayWriter.Setup(hb.hashBuf[:], 0)
		writer = hb.byteArrayWriter
	} else {
		hb.sha.Reset()
		writer = hb.sha
		reader = hb.sha
	}

	if _, err := writer.Write(hb.lenPrefix[:pt]); err != nil {
		return err
	}
	if _, err := writer.Write(hb.keyPrefix[:kp]); err != nil {
		return err
	}
	hb.b[0] = compact0
	if _, err := writer.Write(hb.b[:]); err != nil {
		return err
	}
	for i := 1; i < compactLen; i++ {
		hb.b[0] = key[ni]*16 + key[ni+1]
		if _, err := writer.Write(hb.b[:]); err != nil {
			return err
		}
		ni += 2
	}

	if err := val.ToDoubleRLP(writer, hb.prefixBuf[:]); err != nil {
		return err
	}

	if reader != nil {
		hb.hashBuf[0] = 0x80 + length.Hash
		if _, err := reader.Read(hb.hashBuf[1:]); err != nil {
			return err
		}
	}
	return nil
}

func (hb *HashBuilder) extensionHash(key []byte) error {
	if hb.trace {
		fmt.Printf("EXTENSIONHASH %x\n", key)
	}
	branchHash := hb.hashStack[len(hb.hashStack)-hashStackStride:]
	// Compute the total length of binary representation
	var kp, kl int
	// Write key
	var compactLen int
	var ni int
	var compact0 byte
	if hasTerm(key) {
		compactLen = (len(key)-1)/2 + 1
		if len(key)&1 == 0 {
			compact0 = 0x30 + key[0] // Odd: (3<<4) + first nibble
			ni = 1
		} else {
			compact0 = 0x20
		}
	} else {
		compactLen = len(key)/2 + 1
		if len(key)&1 == 1 {
			compact0 = 0x10 + key[0] // Odd: (1<<4) + first nibble
			ni = 1
		}
	}
	if compactLen > 1 {
		hb.keyPrefix[0] = 0x80 + byte(compactLen)
		kp = 1
		kl = compactLen
	} else {
		kl = 1
	}
	totalLen := kp + kl + 33
	pt := rlphacks.GenerateStructLen(hb.lenPrefix[:], totalLen)
	hb.sha.Reset()
	if _, err := hb.sha.Write(hb.lenPrefix[:pt]); err != nil {
		return err
	}
	if _, err := hb.sha.Write(hb.keyPrefix[:kp]); err != nil {
		return err
	}
	hb.b[0] = compact0
	if _, err := hb.sha.Write(hb.b[:]); err != nil {
		return err
	}
	for i := 1; i < compactLen; i++ {
		hb.b[0] = key[ni]*16 + key[ni+1]
		if _, err := hb.sha.Write(hb.b[:]); err != nil {
			return err
		}
		ni += 2
	}
	if _, err := hb.sha.Write(branchHash[:length.Hash+1]); err != nil {
		return err
	}
	// Replace the hash of the branch node on the top of the stack
	hb.hashStack[len(hb.hashStack)-hashStackStride] = 0x80 + length.Hash
	if _, err := hb.sha.Read(hb.hashStack[len(hb.hashStack)-length.Hash:]); err != nil {
		return err
	}
	if hb.trace {
		fmt.Printf("EXTENSIONHASH -> %x\n", hb.hashStack[len(hb.hashStack)-length.Hash:])
	}
	return nil
}

func (hb *HashBuilder) branchHash(set uint16) error {
	if hb.trace {
		fmt.Printf("BRANCHHASH %b\n", set)
	}
	digits := bits.OnesCount16(set)
	if len(hb.hashStack) < hashStackStride*digits {
		return fmt.Errorf("len(hb.hashStack) %d < hashStackStride*digits %d", len(hb.hashStack), hashStackStride*digits)
	}
	hashes := hb.hashStack[len(hb.hashStack)-hashStackStride*digits:]
	// Calculate the size of the resulting RLP
	totalSize := 17 // These are 17 length prefixes
	var i int
	for digit := uint(0); digit < 16; digit++ {
		if ((uint16(1) << digit) & set) != 0 {
			if hashes[hashStackStride*i] == 0x80+length.Hash {
				totalSize += length.Hash
			} else {
				// Embedded node
				totalSize += int(hashes[hashStackStride*i] - rlphacks.EmptyListCode)
			}
			i++
		}
	}
	hb.sha.Reset()
	pt := rlphacks.GenerateStructLen(hb.lenPrefix[:], totalSize)
	if _, err := hb.sha.Write(hb.lenPrefix[:pt]); err != nil {
		return err
	}
	// Output hasState hashes or embedded RLPs
	i = 0
	hb.b[0] = rlphacks.EmptyStringCode
	for digit := uint(0); digit < 17; digit++ {
		if ((uint16(1) << digit) & set) != 0 {
			if hashes[hashStackStride*i] == byte(0x80+length.Hash) {
				if _, err := hb.sha.Write(hashes[hashStackStride*i : hashStackStride*(i+1)]); err != nil {
					return err
				}
			} else {
				// Embedded node
				size := int(hashes[hashStackStride*i]) - rlphacks.EmptyListCode
				if _, err := hb.sha.Write(hashes[hashStackStride*i : hashStackStride*i+size+1]); err != nil {
					return err
				}
			}
			i++
		} else {
			if _, err := hb.sha.Write(hb.b[:]); err != nil {
				return err
			}
		}
	}
	hb.hashStack = hb.hashStack[:len(hb.hashStack)-hashStackStride*digits+hashStackStride]
	hb.hashStack[len(hb.hashStack)-hashStackStride] = 0x80 + length.Hash
	if _, err := hb.sha.Read(hb.hashStack[len(hb.hashStack)-length.Hash:]); err != nil {
		return err
	}

	if hb.trace {
		fmt.Printf("BRANCHHASH -> %x\n", hb.hashStack[len(hb.hashStack)-length.Hash:])
	}
	return nil
}

func (hb *HashBuilder) hash(hash []byte) error {
	if hb.trace {
		fmt.Printf("HASH %x\n", hash)
	}
	hb.hashStack = append(hb.hashStack, 0x80+length.Hash)
	hb.hashStack = append(hb.hashStack, hash...)
	return nil
}

func (hb *HashBuilder) emptyRoot() {
	if hb.trace {
		fmt.Printf("EMPTYROOT\n")
	}
	hb.hashStack = append(hb.hashStack, 0x80+length.Hash)
	hb.hashStack = append(hb.hashStack, EmptyRoot.Bytes()...)
}

func (hb *HashBuilder) hasRoot() bool {
	return len(hb.hashStack) > 0
}

func (hb *HashBuilder) rootHash() common.Hash {
	var hash common.Hash
	top := hb.topHash()
	if len(top) == length.Hash {
		copy(hash[:], top)
	} else {
		// Embedded node, hash it to arrive at the root
		hb.sha.Reset()
		hb.sha.Write(top) //nolint:errcheck
		hb.sha.Read(hash[:]) //nolint:errcheck
	}
	return hash
}

func (hb *HashBuilder) topHash() []byte {
	pos := len(hb.hashStack) - hashStackStride
	if hb.hashStack[pos] == 0x80+length.Hash {
		return hb.hashStack[pos+1:]
	}
	// Embedded node
	return hb.hashStack[pos : pos+1+int(hb.hashStack[pos]-rlphacks.EmptyListCode)]
}

// topHashes returns the hashes of the children of the currently closing
// branch node, in ascending digit order, as one contiguous slice. Only
// children flagged in hasHash carry a hash of their own; the rest are
// either embedded or absent.
func (hb *HashBuilder) topHashes(prefix []byte, hasHash, hasState uint16) []byte {
	digits := bits.OnesCount16(hasState)
	hashes := hb.hashStack[len(hb.hashStack)-hashStackStride*digits:]
	hb.topHashesCopy = hb.topHashesCopy[:0]
	for i := 0; hasHash > 0; hasState, hasHash = hasState>>1, hasHash>>1 {
		if 1&hasState == 0 {
			continue
		}

		if 1&hasHash != 0 {
			hb.topHashesCopy = append(hb.topHashesCopy, hashes[hashStackStride*i+1:hashStackStride*(i+1)]...)
		}
		i++
	}
	return hb.topHashesCopy
}
