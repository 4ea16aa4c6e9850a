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

// Package accounts holds the account representation of the hashed state
// and its two encodings: the compact storage form kept in the
// HashedAccount table and the canonical RLP form fed to the trie.
package accounts

import (
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"

	"github.com/ledgerwatch/erigon-lib/common"
	"github.com/ledgerwatch/erigon-lib/common/hexutility"
)

// EmptyRoot is the root of an empty trie.
var EmptyRoot = common.BytesToHash(hexutility.MustDecodeHex("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421"))

// EmptyCodeHash is keccak256 of nil.
var EmptyCodeHash = common.BytesToHash(hexutility.MustDecodeHex("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"))

// Account is the unified representation of an account in the hashed
// state. Root is never stored: storage roots are derived from the
// storage trie.
type Account struct {
	Initialised bool
	Nonce       uint64
	Balance     uint256.Int
	Root        common.Hash
	CodeHash    common.Hash
}

const (
	fieldSetNonce    = 1
	fieldSetBalance  = 2
	fieldSetCodeHash = 4
)

func NewAccount() Account {
	return Account{
		Initialised: true,
		Root:        EmptyRoot,
		CodeHash:    EmptyCodeHash,
	}
}

func (a *Account) IsEmptyCodeHash() bool {
	return a.CodeHash == EmptyCodeHash || a.CodeHash == (common.Hash{})
}

func (a *Account) IsEmptyRoot() bool {
	return a.Root == EmptyRoot || a.Root == (common.Hash{})
}

func (a *Account) Reset() {
	a.Initialised = true
	a.Nonce = 0
	a.Balance.Clear()
	a.Root = EmptyRoot
	a.CodeHash = EmptyCodeHash
}

func (a *Account) SelfCopy() *Account {
	newAcc := NewAccount()
	newAcc.Copy(a)
	return &newAcc
}

func (a *Account) Copy(image *Account) {
	a.Initialised = image.Initialised
	a.Nonce = image.Nonce
	a.Balance.Set(&image.Balance)
	copy(a.Root[:], image.Root[:])
	copy(a.CodeHash[:], image.CodeHash[:])
}

func (a *Account) Equals(acc *Account) bool {
	return a.Nonce == acc.Nonce &&
		a.CodeHash == acc.CodeHash &&
		a.Balance.Cmp(&acc.Balance) == 0
}

// EncodingLengthForStorage returns the size of the compact encoding.
func (a *Account) EncodingLengthForStorage() uint {
	var structLength uint = 1 // fieldset byte

	if !a.Balance.IsZero() {
		structLength += uint(a.Balance.ByteLen()) + 1
	}

	if a.Nonce > 0 {
		structLength += uint((bits.Len64(a.Nonce)+7)/8) + 1
	}

	if !a.IsEmptyCodeHash() {
		structLength += 33 // 32-byte array + 1 byte for length
	}

	return structLength
}

// EncodeForStorage writes the compact encoding into buffer, which must
// be at least EncodingLengthForStorage bytes long. The layout is a
// fieldset byte followed by length-prefixed fields in a fixed order.
func (a *Account) EncodeForStorage(buffer []byte) {
	var fieldSet = 0
	var pos = 1
	if a.Nonce > 0 {
		fieldSet = fieldSetNonce
		nonceBytes := (bits.Len64(a.Nonce) + 7) / 8
		buffer[pos] = byte(nonceBytes)
		var nonce = a.Nonce
		for i := nonceBytes; i > 0; i-- {
			buffer[pos+i] = byte(nonce)
			nonce >>= 8
		}
		pos += nonceBytes + 1
	}

	if !a.Balance.IsZero() {
		fieldSet |= fieldSetBalance
		balanceBytes := a.Balance.ByteLen()
		buffer[pos] = byte(balanceBytes)
		pos++
		a.Balance.WriteToSlice(buffer[pos : pos+balanceBytes])
		pos += balanceBytes
	}

	if !a.IsEmptyCodeHash() {
		fieldSet |= fieldSetCodeHash
		buffer[pos] = 32
		copy(buffer[pos+1:], a.CodeHash[:])
	}

	buffer[0] = byte(fieldSet)
}

// DecodeForStorage is the inverse of EncodeForStorage. Root is always
// restored as EmptyRoot.
func (a *Account) DecodeForStorage(enc []byte) error {
	a.Reset()
	if len(enc) == 0 {
		return nil
	}

	var fieldSet = enc[0]
	var pos = 1

	if fieldSet&fieldSetNonce > 0 {
		decodeLength := int(enc[pos])

		if len(enc) < pos+decodeLength+1 {
			return fmt.Errorf(
				"malformed account encoding when decoding nonce: %s, length %d",
				enc, decodeLength)
		}

		var nonce uint64
		for _, b := range enc[pos+1 : pos+decodeLength+1] {
			nonce = (nonce << 8) + uint64(b)
		}
		a.Nonce = nonce
		pos += decodeLength + 1
	}

	if fieldSet&fieldSetBalance > 0 {
		decodeLength := int(enc[pos])

		if len(enc) < pos+decodeLength+1 {
			return fmt.Errorf(
				"malformed account encoding when decoding balance: %s, length %d",
				enc, decodeLength)
		}

		a.Balance.SetBytes(enc[pos+1 : pos+decodeLength+1])
		pos += decodeLength + 1
	}

	if fieldSet&fieldSetCodeHash > 0 {
		decodeLength := int(enc[pos])

		if decodeLength != 32 {
			return fmt.Errorf(
				"codehash must be 32 bytes long, got %d", decodeLength)
		}

		if len(enc) < pos+decodeLength+1 {
			return fmt.Errorf(
				"malformed account encoding when decoding codehash: %s, length %d",
				enc, decodeLength)
		}

		a.CodeHash.SetBytes(enc[pos+1 : pos+decodeLength+1])
	}

	return nil
}

// EncodingLengthForHashing returns the size of the canonical RLP
// encoding [nonce, balance, storageRoot, codeHash].
func (a *Account) EncodingLengthForHashing() uint {
	var structLength uint

	balanceBytes := 0
	if a.Balance.BitLen() >= 8 {
		balanceBytes = a.Balance.ByteLen()
	}

	var nonceBytes int
	if a.Nonce < 128 && a.Nonce != 0 {
		nonceBytes = 0
	} else {
		nonceBytes = (bits.Len64(a.Nonce) + 7) / 8
	}

	structLength += uint(balanceBytes + nonceBytes + 2)
	structLength += 66 // two 32-byte arrays + 2 prefixes

	if structLength < 56 {
		return 1 + structLength
	}

	lengthBytes := (bits.Len(structLength) + 7) / 8

	return uint(1+lengthBytes) + structLength
}

// EncodeForHashing writes the canonical RLP encoding into buffer, which
// must be at least EncodingLengthForHashing bytes long.
func (a *Account) EncodeForHashing(buffer []byte) {
	balanceBytes := 0
	if a.Balance.BitLen() >= 8 {
		balanceBytes = a.Balance.ByteLen()
	}

	var nonceBytes int
	if a.Nonce < 128 && a.Nonce != 0 {
		nonceBytes = 0
	} else {
		nonceBytes = (bits.Len64(a.Nonce) + 7) / 8
	}

	var structLength = uint(balanceBytes + nonceBytes + 2)
	structLength += 66 // two 32-byte arrays + 2 prefixes

	var pos int
	if structLength < 56 {
		buffer[0] = byte(192 + structLength)
		pos = 1
	} else {
		lengthBytes := (bits.Len(structLength) + 7) / 8
		buffer[0] = byte(247 + lengthBytes)

		for i := lengthBytes; i > 0; i-- {
			buffer[i] = byte(structLength)
			structLength >>= 8
		}

		pos = lengthBytes + 1
	}

	// nonce
	if a.Nonce < 128 && a.Nonce != 0 {
		buffer[pos] = byte(a.Nonce)
	} else {
		buffer[pos] = byte(128 + nonceBytes)
		var nonce = a.Nonce
		for i := nonceBytes; i > 0; i-- {
			buffer[pos+i] = byte(nonce)
			nonce >>= 8
		}
	}
	pos += 1 + nonceBytes

	// balance
	if a.Balance.LtUint64(128) && !a.Balance.IsZero() {
		buffer[pos] = byte(a.Balance.Uint64())
		pos++
	} else {
		buffer[pos] = byte(128 + balanceBytes)
		pos++
		a.Balance.WriteToSlice(buffer[pos : pos+balanceBytes])
		pos += balanceBytes
	}

	// storage root
	buffer[pos] = 128 + 32
	pos++
	copy(buffer[pos:], a.Root[:])
	pos += 32

	// code hash
	buffer[pos] = 128 + 32
	pos++
	copy(buffer[pos:], a.CodeHash[:])
}
