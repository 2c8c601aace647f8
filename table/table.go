// Copyright 2019 Michael J. Fromberger. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package table implements the chained hash table that both workers and the
// driver use to accumulate word counts (spec §3, §4.1). Every record's
// slot is a pure function of its key, computed with the bit-identical hash
// in Hash: that is what lets the driver's slot-watermark protocol (see
// package driver) reason about which slots a worker can no longer touch.
package table

import (
	"encoding/binary"

	"github.com/go-dwc/dwc/arena"
)

// Record is one key's accumulated count. Records are never mutated except
// for Count and the chain Next pointer (on a hit, the matched record is
// spliced to the head of its chain — the move-to-front discipline of
// spec §3).
type Record struct {
	Hash  uint64
	Count uint32
	Word  []byte
	Next  *Record
}

// Table is a fixed-size array of chain heads. There is no rehashing: the
// slot count is fixed for the lifetime of the table, because it is a
// protocol constant shared with the remote peer (see package variant).
type Table struct {
	slots []*Record
	alloc arena.Allocator
}

// New constructs an empty table with the given slot count, allocating
// records through alloc.
func New(slots int, alloc arena.Allocator) *Table {
	return &Table{slots: make([]*Record, slots), alloc: alloc}
}

// NumSlots returns the table's fixed slot count.
func (t *Table) NumSlots() int { return len(t.slots) }

// Hash computes the bit-identical 64-bit hash used to place a key in its
// slot (spec §4.1). It must produce the same result in every process that
// shares this table's slot count, since it determines which worker
// contributes to which slot and therefore when that slot is sealed.
//
// The key is treated as a stream of 64-bit little-endian words followed by
// whatever trailing bytes don't fill a full lane.
func Hash(word []byte) uint64 {
	var h uint64
	n := len(word)
	lanes := n - n%8
	for i := 0; i < lanes; i += 8 {
		h = binary.LittleEndian.Uint64(word[i:i+8]) + h*524287
	}
	for i := lanes; i < n; i++ {
		h = uint64(word[i]) + h*127
	}
	return h
}

// Slot returns the slot index a key with the given hash occupies in this
// table.
func (t *Table) Slot(hash uint64) int {
	return int(hash % uint64(len(t.slots)))
}

// Add increments the counter for word by add, inserting a new record if
// word is not already present, and returns the slot index the record lives
// in. On a hit, the record is moved to the front of its chain.
func (t *Table) Add(word []byte, add uint32) int {
	h := Hash(word)
	slot := t.Slot(h)

	var prev *Record
	for r := t.slots[slot]; r != nil; r = r.Next {
		if r.Hash == h && string(r.Word) == string(word) {
			r.Count += add
			if prev != nil {
				prev.Next = r.Next
				r.Next = t.slots[slot]
				t.slots[slot] = r
			}
			return slot
		}
		prev = r
	}

	buf := t.alloc.Alloc(len(word))
	copy(buf, word)
	rec := &Record{Hash: h, Count: add, Word: buf, Next: t.slots[slot]}
	t.slots[slot] = rec
	return slot
}

// Head returns the chain head for slot i, or nil if it is empty.
func (t *Table) Head(i int) *Record { return t.slots[i] }

// Clear drops the chain head for slot i (used by the driver's incremental
// compaction once every worker has sealed the slot).
func (t *Table) Clear(i int) { t.slots[i] = nil }

// Each walks every occupied slot in ascending order, calling fn once per
// record. Ascending slot order is required wherever this is used to stream
// a table across the wire (spec §4.2 step 5, §5): the slot-watermark
// protocol depends on it.
func (t *Table) Each(fn func(slot int, r *Record)) {
	for i, r := range t.slots {
		for ; r != nil; r = r.Next {
			fn(i, r)
		}
	}
}

// EachInRange walks slots in [lo, hi) in ascending order.
func (t *Table) EachInRange(lo, hi int, fn func(slot int, r *Record)) {
	if lo < 0 {
		lo = 0
	}
	if hi > len(t.slots) {
		hi = len(t.slots)
	}
	for i := lo; i < hi; i++ {
		for r := t.slots[i]; r != nil; r = r.Next {
			fn(i, r)
		}
	}
}
