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
	"github.com/ledgerwatch/erigon-lib/common/length"
	"github.com/ledgerwatch/erigon-lib/kv"
)

// overlayEntry is one overlay key in serialized form, sorted into a slice so
// a moving index can be merged with a DB cursor.
type overlayEntry struct {
	k       common.Hash
	v       []byte
	deleted bool
}

func sortOverlay(entries []overlayEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].k[:], entries[j].k[:]) < 0
	})
}

func accountOverlayEntries(post *HashedPostState) []overlayEntry {
	entries := make([]overlayEntry, 0, len(post.Accounts))
	for addrHash, account := range post.Accounts {
		e := overlayEntry{k: addrHash}
		if account == nil {
			e.deleted = true
		} else {
			e.v = make([]byte, account.EncodingLengthForStorage())
			account.EncodeForStorage(e.v)
		}
		entries = append(entries, e)
	}
	sortOverlay(entries)
	return entries
}

func storageOverlayEntries(storage *HashedStorage) []overlayEntry {
	if storage == nil {
		return nil
	}
	entries := make([]overlayEntry, 0, len(storage.Slots))
	for slotHash, value := range storage.Slots {
		e := overlayEntry{k: slotHash}
		if value.IsZero() {
			e.deleted = true
		} else {
			e.v = value.Bytes()
		}
		entries = append(entries, e)
	}
	sortOverlay(entries)
	return entries
}

// PostStateAccountCursor iterates the hashed accounts table merged with the
// overlay: overlay values shadow disk values, deletions hide disk keys.
// Returns keys in both compact and nibble form.
type PostStateAccountCursor struct {
	c       kv.Cursor
	quit    <-chan struct{}
	entries []overlayEntry
	i       int

	diskK, diskV []byte
	advMem       bool
	advDisk      bool
	kHex         []byte
}

func NewPostStateAccountCursor(c kv.Cursor, post *HashedPostState, quit <-chan struct{}) *PostStateAccountCursor {
	return &PostStateAccountCursor{c: c, entries: accountOverlayEntries(post), quit: quit}
}

func (c *PostStateAccountCursor) Seek(seek []byte) ([]byte, []byte, []byte, error) {
	var err error
	c.diskK, c.diskV, err = c.c.Seek(seek)
	if err != nil {
		return []byte{}, nil, nil, err
	}
	c.i = sort.Search(len(c.entries), func(i int) bool {
		return bytes.Compare(c.entries[i].k[:], seek) >= 0
	})
	c.advMem, c.advDisk = false, false
	return c.choose()
}

func (c *PostStateAccountCursor) Next() ([]byte, []byte, []byte, error) {
	if err := common.Stopped(c.quit); err != nil {
		return []byte{}, nil, nil, err
	}
	return c.choose()
}

func (c *PostStateAccountCursor) choose() ([]byte, []byte, []byte, error) {
	var err error
	for {
		if c.advMem {
			c.i++
			c.advMem = false
		}
		if c.advDisk {
			c.diskK, c.diskV, err = c.c.Next()
			if err != nil {
				return []byte{}, nil, nil, err
			}
			c.advDisk = false
		}
		memOK := c.i < len(c.entries)
		if c.diskK == nil && !memOK {
			return nil, nil, nil, nil
		}
		if memOK && (c.diskK == nil || bytes.Compare(c.entries[c.i].k[:], c.diskK) <= 0) {
			e := &c.entries[c.i]
			c.advMem = true
			c.advDisk = c.diskK != nil && bytes.Equal(e.k[:], c.diskK)
			if e.deleted {
				continue
			}
			DecompressNibbles(e.k[:], &c.kHex)
			return e.k[:], c.kHex, e.v, nil
		}
		c.advDisk = true
		DecompressNibbles(c.diskK, &c.kHex)
		return c.diskK, c.kHex, c.diskV, nil
	}
}

// PostStateStorageCursor iterates one account's slots from the hashed
// storage table (composite keys: addrHash + slotHash) merged with the
// account's overlay. Returned keys are bare 32-byte slot hashes.
type PostStateStorageCursor struct {
	c        kv.Cursor
	quit     <-chan struct{}
	addrHash []byte
	entries  []overlayEntry
	i        int
	wiped    bool

	diskK, diskV []byte
	advMem       bool
	advDisk      bool
	seekBuf      []byte
}

func NewPostStateStorageCursor(c kv.Cursor, addrHash common.Hash, storage *HashedStorage, quit <-chan struct{}) *PostStateStorageCursor {
	ps := &PostStateStorageCursor{
		c:        c,
		addrHash: addrHash.Bytes(),
		quit:     quit,
		seekBuf:  make([]byte, 0, 2*length.Hash),
	}
	if storage != nil {
		ps.entries = storageOverlayEntries(storage)
		ps.wiped = storage.Wiped
	}
	return ps
}

// Seek positions at the first slot >= prefix. The prefix is over the slot
// hash only, the addrHash is prepended internally.
func (c *PostStateStorageCursor) Seek(prefix []byte) ([]byte, []byte, error) {
	var err error
	if c.wiped {
		c.diskK, c.diskV = nil, nil
	} else {
		c.seekBuf = append(append(c.seekBuf[:0], c.addrHash...), prefix...)
		c.diskK, c.diskV, err = c.c.Seek(c.seekBuf)
		if err != nil {
			return nil, nil, err
		}
		c.checkDiskPrefix()
	}
	c.i = sort.Search(len(c.entries), func(i int) bool {
		return bytes.Compare(c.entries[i].k[:], prefix) >= 0
	})
	c.advMem, c.advDisk = false, false
	return c.choose()
}

func (c *PostStateStorageCursor) Next() ([]byte, []byte, error) {
	if err := common.Stopped(c.quit); err != nil {
		return nil, nil, err
	}
	return c.choose()
}

func (c *PostStateStorageCursor) checkDiskPrefix() {
	if c.diskK != nil && !bytes.HasPrefix(c.diskK, c.addrHash) {
		c.diskK, c.diskV = nil, nil
	}
}

func (c *PostStateStorageCursor) choose() ([]byte, []byte, error) {
	var err error
	for {
		if c.advMem {
			c.i++
			c.advMem = false
		}
		if c.advDisk {
			c.diskK, c.diskV, err = c.c.Next()
			if err != nil {
				return nil, nil, err
			}
			c.checkDiskPrefix()
			c.advDisk = false
		}
		var diskSlot []byte
		if c.diskK != nil {
			diskSlot = c.diskK[length.Hash:]
		}
		memOK := c.i < len(c.entries)
		if diskSlot == nil && !memOK {
			return nil, nil, nil
		}
		if memOK && (diskSlot == nil || bytes.Compare(c.entries[c.i].k[:], diskSlot) <= 0) {
			e := &c.entries[c.i]
			c.advMem = true
			c.advDisk = diskSlot != nil && bytes.Equal(e.k[:], diskSlot)
			if e.deleted {
				continue
			}
			return e.k[:], e.v, nil
		}
		c.advDisk = true
		return diskSlot, c.diskV, nil
	}
}
