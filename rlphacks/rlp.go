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

// Package rlphacks contains hand-rolled RLP helpers for the hot path of
// the hash builder. They write length prefixes directly into caller
// buffers instead of going through a generic encoder.
package rlphacks

import "io"

const (
	// EmptyStringCode is the RLP code of an empty byte string.
	EmptyStringCode = 0x80
	// EmptyListCode is the RLP code of an empty list.
	EmptyListCode = 0xC0
)

// RlpSerializable is a value that can be double-RLP-encoded without
// going to a full RLP representation in memory. Storage values are RLP
// strings nested inside the leaf string, account leaves arrive already
// RLP-encoded and only need the outer wrapping.
type RlpSerializable interface {
	ToDoubleRLP(w io.Writer, prefixBuf []byte) error
	DoubleRLPLen() int
	RawBytes() []byte
}
