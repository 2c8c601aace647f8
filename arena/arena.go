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

// Package arena implements the two allocation modes the hash table
// (package table) needs: a bump allocator that never frees individual
// objects, and a thin wrapper over the ordinary Go heap for callers that do
// need to drop individual records early.
package arena

// regionSize is the size of each backing region a Bump allocator acquires,
// matching the 2 MiB arena regions of the original source.
const regionSize = 2 << 20

// align8 rounds n up to the next multiple of 8.
func align8(n int) int { return (n + 7) &^ 7 }

// An Allocator hands out zeroed byte slices. Alloc(n) must return a slice of
// length exactly n; package table uses it for a single record's word bytes.
type Allocator interface {
	Alloc(n int) []byte
}

// Bump is a bump-pointer allocator: Alloc never returns memory to the
// caller's control, and the regions it has acquired stay mapped for the
// process lifetime even after every record in them is unreachable. Workers
// use Bump because they never need to free anything before exit.
type Bump struct {
	regions [][]byte
	cur     []byte
	used    int
}

// NewBump constructs an empty Bump allocator.
func NewBump() *Bump { return &Bump{} }

// Alloc returns a freshly zeroed slice of length n, 8-byte aligned within
// its backing region. A request that would overflow the current region
// starts a fresh one; the old region's memory stays mapped (never freed),
// which is the whole point of a bump allocator.
func (b *Bump) Alloc(n int) []byte {
	want := align8(n)
	if b.cur == nil || b.used+want > len(b.cur) {
		size := regionSize
		if want > size {
			size = want
		}
		b.cur = make([]byte, size)
		b.regions = append(b.regions, b.cur)
		b.used = 0
	}
	out := b.cur[b.used : b.used+n : b.used+want]
	b.used += want
	return out
}

// Heap allocates each request directly from the Go heap, so individual
// records can become unreachable (and be collected) the moment the table
// unlinks them. The driver's GC variant uses Heap so that the incremental
// flush in package driver can actually reduce live memory.
type Heap struct{}

// NewHeap constructs a Heap allocator.
func NewHeap() Heap { return Heap{} }

// Alloc implements Allocator.
func (Heap) Alloc(n int) []byte { return make([]byte, n) }
