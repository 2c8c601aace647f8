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
	"context"
	"testing"
	"time"

	"github.com/go-dwc/dwc/arena"
	"github.com/go-dwc/dwc/table"
)

// TestHeapManagerWithholdsUntilAllBoundariesKnown checks driver.c's
// "some_worker_unready" rule: Compact must not free anything until every
// worker has reported both its prefix and suffix (it throttles the workers
// that have reported both instead).
func TestHeapManagerWithholdsUntilAllBoundariesKnown(t *testing.T) {
	tab := table.New(64, arena.NewHeap())
	var emitted []string
	hm := newHeapManager(tab, 2, func(_ int, r *table.Record) { emitted = append(emitted, string(r.Word)) })

	tab.Add([]byte("alpha"), 1)
	hm.Advance(0, tab.Slot(table.Hash([]byte("alpha"))))
	hm.NotePrefix(0)
	hm.NoteSuffix(0)
	// Worker 1 has not yet reported either boundary string. force=true
	// bypasses the heap-pressure gate so the withhold logic itself is
	// exercised regardless of this test process's actual live heap size.
	hm.Compact(2, true)

	if len(emitted) != 0 {
		t.Fatalf("Compact emitted %v before every worker was ready", emitted)
	}
}

// TestHeapManagerFreesSealedSlots checks that once every worker has
// reported both boundary strings, Compact frees and emits every slot up to
// the lowest per-worker watermark, and clears those chains from the table.
func TestHeapManagerFreesSealedSlots(t *testing.T) {
	tab := table.New(64, arena.NewHeap())
	var emitted []string
	hm := newHeapManager(tab, 2, func(_ int, r *table.Record) { emitted = append(emitted, string(r.Word)) })

	slotA := tab.Add([]byte("alpha"), 3)
	tab.Add([]byte("beta"), 1)

	for i := 0; i < 2; i++ {
		hm.NotePrefix(i)
		hm.NoteSuffix(i)
		hm.Advance(i, slotA)
	}
	// force=true: this test exercises the free-sealed-slots logic, not
	// the outer heap-pressure gate.
	hm.Compact(2, true)

	if len(emitted) == 0 {
		t.Fatalf("Compact emitted nothing once every worker was ready")
	}
	found := false
	for _, w := range emitted {
		if w == "alpha" {
			found = true
		}
	}
	if !found {
		t.Errorf("emitted = %v, want alpha among them", emitted)
	}
	if r := tab.Head(slotA); r != nil {
		t.Errorf("slot %d not cleared after compaction", slotA)
	}
}

// TestHeapManagerThrottlesFastWorker simulates live memory pressure to
// confirm Compact closes the gate of a worker that is at least
// throttleBarrier slots ahead of the slowest one and leaves the slowest
// worker's gate open (driver.c's compact_heap re-throttle/re-enable loop).
func TestHeapManagerThrottlesFastWorker(t *testing.T) {
	tab := table.New(64, arena.NewHeap())
	hm := newHeapManager(tab, 2, func(_ int, r *table.Record) {})
	hm.memInUse = func() uint64 { return throttleHeapSize + 1 } // force throttling

	for i := 0; i < 2; i++ {
		hm.NotePrefix(i)
		hm.NoteSuffix(i)
	}
	hm.Advance(0, 0)                   // laggard stays at slot 0
	hm.Advance(1, throttleBarrier+50) // fast worker way ahead
	// force=true bypasses the outer targetMaxHeapSize gate (the override
	// above is only above throttleHeapSize, not targetMaxHeapSize); the
	// inner throttle-barrier decision below still keys off memInUse().
	hm.Compact(2, true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := hm.Gate(1).Wait(ctx); err == nil {
		t.Errorf("fast worker's gate was not closed under throttling")
	}
	if err := hm.Gate(0).Wait(context.Background()); err != nil {
		t.Errorf("laggard worker's gate should stay open, got %v", err)
	}
}
