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

package driver

// boundaries holds the two fragments flanking every split point of the
// file (spec §4.3): worker i's suffix and worker i+1's prefix together
// spell out the one word an internal split cut in half. Worker 0's prefix
// and the last worker's suffix are spliced against an implicit empty
// string instead of a neighbor — they are the file's first and last words,
// whole already — grounded on driver.c's process_split_string("", ...) /
// process_split_string(..., "", ...) calls for is_first_worker /
// is_last_worker.
type boundaries struct {
	n        int
	rangeLen []int64
	prefix   [][]byte
	suffix   [][]byte
	havePfx  []bool
	haveSfx  []bool
	spliced  []bool
}

// BackwardsStep records a worker's watermark moving backwards: a table
// entry whose slot lies below the slot of that worker's previous entry.
// The driver places an entry with the same Hash and slot count the worker
// used, so two words sharing a slot arrive with equal slots and are not
// recorded here. It is collected as a diagnostic (spec §9) and the run
// continues: the watermark is never moved back.
type BackwardsStep struct {
	Worker int
	Slot   int
	Prev   int
}

func newBoundaries(n int, rangeLen []int64) *boundaries {
	return &boundaries{
		n:        n,
		rangeLen: rangeLen,
		prefix:   make([][]byte, n),
		suffix:   make([][]byte, n),
		havePfx:  make([]bool, n),
		haveSfx:  make([]bool, n),
		spliced:  make([]bool, n),
	}
}

// spliceWord returns the word formed by joining worker i's suffix to
// worker i+1's prefix, once both halves of boundary i are known, firing
// exactly once per boundary (spec §4.3: "every worker-originated insert
// lands exactly once").
func (b *boundaries) spliceWord(i int) ([]byte, bool) {
	if i < 0 || i >= b.n-1 || b.spliced[i] {
		return nil, false
	}
	if !b.haveSfx[i] || !b.havePfx[i+1] {
		return nil, false
	}
	b.spliced[i] = true
	return append(append([]byte{}, b.suffix[i]...), b.prefix[i+1]...), true
}

// setPrefix records worker i's prefix fragment and reports the word to
// insert for it, plus whether one fires. Worker 0 has no earlier worker to
// splice against, so its prefix is reported immediately as the file's
// first word — unless the prefix spans the worker's entire chunk, meaning
// the chunk held no whitespace at all (spec §9's no-whitespace edge case);
// in that case the fragment is already fully accounted for by the
// boundary splice that uses this same worker's suffix, so an empty string
// is inserted instead (REDESIGN FLAGS: "emit only one side"). That
// suppression only applies when there is in fact a neighboring boundary
// splice to cover the content — with a single worker (b.n == 1), worker 0
// is both the first and the last worker, spliceWord never fires for it
// (it requires i < b.n-1), and suppressing here would drop the chunk's
// only word entirely. So single-worker runs never suppress the prefix;
// setSuffix below is the side that yields for them instead.
func (b *boundaries) setPrefix(i int, p []byte) ([]byte, bool) {
	b.prefix[i] = p
	b.havePfx[i] = true
	if i != 0 {
		return b.spliceWord(i - 1)
	}
	if b.n > 1 && int64(len(p)) == b.rangeLen[0] {
		return nil, true
	}
	return p, true
}

// setSuffix is setPrefix's mirror image for the last worker's suffix. Its
// no-whitespace suppression is unconditional on b.n, unlike setPrefix's:
// when b.n > 1 it defers to the boundary splice that covers the same
// content from the other side, and when b.n == 1 the worker's prefix and
// suffix are byte-identical (tokenize.Run returns the whole chunk as both
// when it finds no separator at all) and setPrefix has already inserted it
// unconditionally above, so this side must yield or the word is counted
// twice.
func (b *boundaries) setSuffix(i int, s []byte) ([]byte, bool) {
	b.suffix[i] = s
	b.haveSfx[i] = true
	if i != b.n-1 {
		return b.spliceWord(i)
	}
	if int64(len(s)) == b.rangeLen[i] {
		return nil, true
	}
	return s, true
}

// pending reports boundaries that never became spliceable — spec §9's
// "boundary screw ups": a worker closed without ever sending one half,
// almost always because the driver gave up on it early (e.g. an offline
// dump file that was truncated). These are reported, not retried.
func (b *boundaries) pending() []int {
	var out []int
	for i := 0; i < b.n-1; i++ {
		if !b.spliced[i] {
			out = append(out, i)
		}
	}
	return out
}
