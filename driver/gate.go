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
	"sync"
)

// gate is a re-armable open/closed barrier: a worker's receive goroutine
// calls Wait before decoding its next table entry, and blocks there while
// the gate is closed. This is how the GC variant's heap manager throttles
// a fast worker that has outrun the slowest one (spec §4.3 component H,
// grounded on driver.c's clearing of POLLIN on a worker's socket).
//
// No library in the retrieved pack exposes a re-closable level trigger —
// msync.Flag is a one-shot wakeup that a consumer cannot reset for re-use
// against the same object, and msync/trigger.Cond is never imported here
// either (see notify.go's notifier, which has the same gap for a
// different signal shape) — so this is a small local primitive built on
// sync.Mutex and a replaced channel. It guards only scheduling state,
// never the hash table itself, so it does not reintroduce the locking
// the table's single-mutator design avoids.
type gate struct {
	mu   sync.Mutex
	open bool
	ch   chan struct{}
}

func newGate() *gate {
	ch := make(chan struct{})
	close(ch)
	return &gate{open: true, ch: ch}
}

// Wait blocks until the gate is open or ctx ends.
func (g *gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch, open := g.ch, g.open
	g.mu.Unlock()
	if open {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close throttles the gate; any goroutine already blocked in Wait, or that
// calls Wait before the next Open, stays blocked.
func (g *gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		g.open = false
		g.ch = make(chan struct{})
	}
}

// Open unthrottles the gate, releasing every blocked Wait.
func (g *gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		g.open = true
		close(g.ch)
	}
}
