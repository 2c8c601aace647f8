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
	"fmt"
	"io"
	"log"
	"time"

	"github.com/creachadair/taskgroup"

	"github.com/go-dwc/dwc/arena"
	"github.com/go-dwc/dwc/table"
	"github.com/go-dwc/dwc/variant"
	"github.com/go-dwc/dwc/wire"
)

// startTime anchors DebugLog's elapsed-time prefix, matching driver.c's
// now()/DBG() wall-clock-since-start diagnostic.
var startTime = time.Now()

// Conn is one worker's pair of connections: To carries the raw chunk bytes
// out to the worker (unframed, spec §4.4), From carries the worker's wire
// stream back. Closing To signals end of chunk; closing From (from the
// worker's side) signals end of stream.
type Conn struct {
	To   io.WriteCloser
	From io.Reader
}

// Result holds the diagnostics collected during one run. The merged table
// itself is not part of it: Run delivers that through its emit callback.
type Result struct {
	Backwards []BackwardsStep
	Pending   []int // boundary indices never spliced (spec §9 "boundary screw ups")
}

// Driver orchestrates one pipeline run: partitioning a file across workers
// (component F), receiving and merging their tables with boundary splicing
// (component G), and — for the GC variant — incremental compaction
// (component H). Only the mutator goroutine started by Run ever touches
// the table, preserving the lock-free discipline of spec §5.
type Driver struct {
	v     variant.Variant
	table *table.Table
}

// New constructs a Driver for the given variant. The GC variant allocates
// records on the Go heap so that Compact can actually reclaim memory; the
// simple variant bump-allocates, matching the source's "never frees"
// driver-side behavior for that mode (spec §4.1).
func New(v variant.Variant) *Driver {
	var alloc arena.Allocator
	if v.GC {
		alloc = arena.NewHeap()
	} else {
		alloc = arena.NewBump()
	}
	return &Driver{v: v, table: table.New(v.Slots, alloc)}
}

type event struct {
	worker int
	kind   eventKind
	str    []byte
	entry  wire.Entry
}

type eventKind int

const (
	evPrefix eventKind = iota
	evSuffix
	evEntry
	evDone
)

// Run sends file[ranges[i]] to conns[i].To for every worker i, merges the
// results that arrive on conns[i].From, and calls emit once per final
// (count, word) pair in ascending global-slot order once it is sealed.
// Run blocks until every worker's stream has ended (or ctx is cancelled)
// and returns the accumulated diagnostics.
func (d *Driver) Run(ctx context.Context, file io.ReaderAt, ranges []Range, conns []Conn, emit func(count uint32, word []byte)) (Result, error) {
	return d.run(ctx, file, ranges, conns, emit, true)
}

// RunPrepopulated implements the --prepopulate driver mode (spec §6): every
// worker receives its entire chunk, synchronously and in full, before the
// driver begins reading any results back. This matches the source's
// rationale for the mode — each worker spools its input to disk first (see
// package worker's Spool) rather than streaming and tokenizing concurrently,
// so the driver must not race ahead with reads that would otherwise
// interleave with sends on the same socket pair.
func (d *Driver) RunPrepopulated(ctx context.Context, file io.ReaderAt, ranges []Range, conns []Conn, emit func(count uint32, word []byte)) (Result, error) {
	for i, c := range conns {
		rng := ranges[i]
		sr := io.NewSectionReader(file, rng.Start, rng.Len())
		if _, err := io.Copy(c.To, sr); err != nil {
			c.To.Close()
			return Result{}, fmt.Errorf("driver: sending chunk to worker %d: %w", i, err)
		}
		if err := c.To.Close(); err != nil {
			return Result{}, fmt.Errorf("driver: closing send side to worker %d: %w", i, err)
		}
	}
	return d.run(ctx, file, ranges, conns, emit, false)
}

func (d *Driver) run(ctx context.Context, file io.ReaderAt, ranges []Range, conns []Conn, emit func(count uint32, word []byte), sendConcurrently bool) (Result, error) {
	n := len(conns)
	if len(ranges) != n {
		return Result{}, fmt.Errorf("driver: %d ranges for %d workers", len(ranges), n)
	}

	rangeLen := make([]int64, n)
	for i, r := range ranges {
		rangeLen[i] = r.Len()
	}
	b := newBoundaries(n, rangeLen)
	var hm *heapManager
	if d.v.GC {
		hm = newHeapManager(d.table, n, func(_ int, r *table.Record) { emit(r.Count, r.Word) })
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan event, 4*n)
	woken := newNotifier()

	g, run := taskgroup.New(nil).Limit(2*n + 1)
	for i, c := range conns {
		i, c, rng := i, c, ranges[i]
		if sendConcurrently {
			run(func() error {
				defer c.To.Close()
				sr := io.NewSectionReader(file, rng.Start, rng.Len())
				_, err := io.Copy(c.To, sr)
				if err != nil {
					return fmt.Errorf("driver: sending chunk to worker %d: %w", i, err)
				}
				return nil
			})
		}
		run(func() error {
			return d.receiveFrom(cctx, i, c.From, hm, events)
		})
	}

	if hm != nil {
		run(func() error {
			return d.runCompactor(cctx, n, hm, woken)
		})
	}

	done := 0
	var runErr error
loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			switch ev.kind {
			case evPrefix:
				if word, ok := b.setPrefix(ev.worker, ev.str); ok {
					d.table.Add(word, 1)
				}
				if hm != nil {
					hm.NotePrefix(ev.worker)
					woken.Notify()
				}
			case evSuffix:
				if word, ok := b.setSuffix(ev.worker, ev.str); ok {
					d.table.Add(word, 1)
				}
				if hm != nil {
					hm.NoteSuffix(ev.worker)
					woken.Notify()
				}
			case evEntry:
				slot := d.table.Add(ev.entry.Word, ev.entry.Count)
				if hm != nil {
					// The worker may still send more entries for this same
					// slot, so it has only moved past the slot before it.
					hm.Advance(ev.worker, slot-1)
				}
			case evDone:
				done++
				if done == n {
					close(events)
				}
			}
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		}
	}

	cancel() // release the compactor goroutine, which otherwise runs until ctx ends
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return Result{}, runErr
	}

	// Emit whatever the GC variant has not already streamed incrementally;
	// the simple variant streams its entire table here for the first time.
	if hm != nil {
		hm.Compact(n, true) // final pass, now that every worker is done; always flush
		d.table.EachInRange(hm.emittedUpTo, d.table.NumSlots(), func(_ int, r *table.Record) {
			emit(r.Count, r.Word)
		})
	} else {
		d.table.Each(func(_ int, r *table.Record) { emit(r.Count, r.Word) })
	}

	return Result{Backwards: backwardsOf(hm), Pending: b.pending()}, nil
}

func backwardsOf(hm *heapManager) []BackwardsStep {
	if hm == nil {
		return nil
	}
	return hm.Backwards()
}

// receiveFrom decodes one worker's wire stream to completion, gating each
// entry read on the heap manager's throttle (if present) and forwarding
// every message to events for the mutator goroutine to apply.
func (d *Driver) receiveFrom(ctx context.Context, worker int, r io.Reader, hm *heapManager, events chan<- event) error {
	dec := wire.NewDecoder(r)
	prefix, err := dec.ReadString()
	if err != nil {
		return fmt.Errorf("driver: reading prefix from worker %d: %w", worker, err)
	}
	events <- event{worker: worker, kind: evPrefix, str: prefix}

	suffix, err := dec.ReadString()
	if err != nil {
		return fmt.Errorf("driver: reading suffix from worker %d: %w", worker, err)
	}
	events <- event{worker: worker, kind: evSuffix, str: suffix}

	for {
		if hm != nil {
			if err := hm.Gate(worker).Wait(ctx); err != nil {
				return err
			}
		}
		ent, err := dec.ReadEntry()
		if err == io.EOF {
			events <- event{worker: worker, kind: evDone}
			return nil
		}
		if err != nil {
			return fmt.Errorf("driver: reading entry from worker %d: %w", worker, err)
		}
		events <- event{worker: worker, kind: evEntry, entry: ent}
	}
}

// runCompactor wakes whenever new boundary data arrives and runs one
// compaction pass, matching driver.c's poll-loop invocation of
// compact_heap on every iteration that changed worker state. Each pass is
// unforced: Compact itself decides, from current heap usage, whether
// there is anything to do.
func (d *Driver) runCompactor(ctx context.Context, n int, hm *heapManager, woken *notifier) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-woken.C():
			hm.Compact(n, false)
		}
	}
}

// DebugLog mirrors the source's DBG() macro: a single-line diagnostic
// prefixed with wall-clock time since process start, gated behind -debug
// (spec §6).
func DebugLog(enabled bool, format string, args ...any) {
	if enabled {
		log.Printf("[driver +%s] "+format, append([]any{time.Since(startTime).Round(time.Millisecond)}, args...)...)
	}
}
