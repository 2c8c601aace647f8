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

import (
	"log"
	"runtime"

	"github.com/creachadair/mds/mapset"
	"github.com/go-dwc/dwc/table"
)

// Heap memory targets for the GC variant's incremental compaction (spec
// §4.3 component H, §4.6), matching driver.c's TARGET_MAX_HEAP_SIZE and
// THROTTLE_HEAP_SIZE. driver.c's main loop guards its call to
// compact_heap on live usage exceeding TARGET_MAX_HEAP_SIZE
// ("if (mi.uordblks > TARGET_MAX_HEAP_SIZE) compact_heap(...)"); Compact
// below reproduces that gate rather than running unconditionally.
const (
	targetMaxHeapSize = 512 << 20
	throttleHeapSize  = 256 << 20
	throttleBarrier   = 100 // slots past earliestFinished before re-throttling
)

// heapManager implements the GC variant's incremental table compaction: it
// periodically frees every slot every worker has sealed, and throttles
// workers that have outrun the slowest one by too wide a margin to bound
// live memory.
type heapManager struct {
	t            *table.Table
	gates        []*gate
	finished     []int // per-worker watermark, monotone non-decreasing
	havePrefix   mapset.Set[int]
	haveSuffix   mapset.Set[int]
	emittedUpTo  int // slots [0, emittedUpTo) already freed
	backwards    []BackwardsStep
	emit         func(slot int, r *table.Record)
	memInUse     func() uint64 // overridable for tests
}

func newHeapManager(t *table.Table, n int, emit func(slot int, r *table.Record)) *heapManager {
	gates := make([]*gate, n)
	finished := make([]int, n)
	for i := range gates {
		gates[i] = newGate()
		finished[i] = -1 // no slot is sealed before the worker sends anything
	}
	return &heapManager{
		t:          t,
		gates:      gates,
		finished:   finished,
		havePrefix: mapset.New[int](),
		haveSuffix: mapset.New[int](),
		emit:       emit,
		memInUse:   liveHeapBytes,
	}
}

func liveHeapBytes() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

// Gate returns the throttle gate a worker's receive loop waits on before
// decoding its next entry.
func (h *heapManager) Gate(worker int) *gate { return h.gates[worker] }

// NotePrefix and NoteSuffix record that a worker's boundary fragment has
// arrived; compaction cannot begin until every worker has reported both
// (driver.c's "some_worker_unready" check).
func (h *heapManager) NotePrefix(worker int) { h.havePrefix.Add(worker) }
func (h *heapManager) NoteSuffix(worker int) { h.haveSuffix.Add(worker) }

// Advance records that worker has moved its local table cursor past slot,
// re-hashed into the driver's global table, collecting a BackwardsStep
// diagnostic instead of asserting if the watermark would otherwise move
// backwards (spec §9; see splice.go's BackwardsStep doc).
func (h *heapManager) Advance(worker, slot int) {
	if slot < h.finished[worker] {
		h.backwards = append(h.backwards, BackwardsStep{Worker: worker, Slot: slot, Prev: h.finished[worker]})
		return
	}
	h.finished[worker] = slot
}

// Compact runs one pass of driver.c's compact_heap: if every worker has
// reported its boundary strings, it frees every slot sealed by all
// workers and re-evaluates each worker's throttle gate against current
// heap usage. The pass itself only runs when live heap usage exceeds
// targetMaxHeapSize, mirroring the source's gate around compact_heap;
// force bypasses that gate for the mandatory final pass after every
// worker has finished, when every remaining slot must be flushed
// regardless of current heap pressure.
func (h *heapManager) Compact(n int, force bool) {
	if !force && h.memInUse() <= targetMaxHeapSize {
		return
	}
	if h.havePrefix.Len() < n || h.haveSuffix.Len() < n {
		for i := 0; i < n; i++ {
			if h.havePrefix.Has(i) && h.haveSuffix.Has(i) {
				h.gates[i].Close()
			}
		}
		return
	}

	earliest := h.finished[0]
	for _, f := range h.finished[1:] {
		if f < earliest {
			earliest = f
		}
	}

	for slot := h.emittedUpTo; slot <= earliest && slot < h.t.NumSlots(); slot++ {
		for r := h.t.Head(slot); r != nil; r = r.Next {
			h.emit(slot, r)
		}
		h.t.Clear(slot)
	}
	if earliest+1 > h.emittedUpTo {
		h.emittedUpTo = earliest + 1
	}

	inUse := h.memInUse()
	barrier := h.t.NumSlots()
	if inUse >= throttleHeapSize {
		barrier = earliest + throttleBarrier
		log.Printf("[driver] heap at %d bytes, throttling past slot %d", inUse, barrier)
	}
	for i := 0; i < n; i++ {
		if h.finished[i] >= barrier {
			h.gates[i].Close()
		} else {
			h.gates[i].Open()
		}
	}
}

// Backwards returns every backwards-step diagnostic observed so far.
func (h *heapManager) Backwards() []BackwardsStep { return h.backwards }
