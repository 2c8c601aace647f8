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

// Package worker implements the worker half of the pipeline (spec §4.2,
// component D, and the worker side of component E): it tokenises one
// connection's worth of input, counts locally, and streams the result back
// over the wire protocol of package wire.
package worker

import (
	"fmt"
	"io"

	"github.com/go-dwc/dwc/arena"
	"github.com/go-dwc/dwc/table"
	"github.com/go-dwc/dwc/tokenize"
	"github.com/go-dwc/dwc/variant"
	"github.com/go-dwc/dwc/wire"
)

// Engine owns a worker's local table. It is never touched by more than one
// goroutine, matching the single-threaded, lock-free table access the spec
// requires of every process (spec §5).
type Engine struct {
	v     variant.Variant
	table *table.Table
}

// New constructs an Engine for the given variant. Workers always use a
// bump allocator (spec §4.1: "bump (used by workers — never frees)"); there
// is no need to free individual records before the process exits.
func New(v variant.Variant) *Engine {
	return &Engine{v: v, table: table.New(v.Slots, arena.NewBump())}
}

// Run tokenises everything available from rx, then writes the prefix,
// suffix, and the local table (in ascending slot order) to tx, flushing
// before returning. It implements the worker state machine of spec §4.7:
// StreamingIn runs to completion before StreamingOut begins.
func (e *Engine) Run(rx io.Reader, tx io.Writer) error {
	s := tokenize.New(rx, e.v.IsWordByte, e.v.Lowercase)
	prefix, suffix, err := s.Run(func(word []byte) {
		e.table.Add(word, 1)
	})
	if err != nil {
		return fmt.Errorf("worker: tokenising input: %w", err)
	}

	enc := wire.NewEncoder(tx, 1<<20)
	if err := enc.WriteString(prefix); err != nil {
		return fmt.Errorf("worker: sending prefix: %w", err)
	}
	if err := enc.WriteString(suffix); err != nil {
		return fmt.Errorf("worker: sending suffix: %w", err)
	}

	var emitErr error
	e.table.Each(func(_ int, r *table.Record) {
		if emitErr != nil {
			return
		}
		emitErr = enc.WriteEntry(r.Count, r.Word)
	})
	if emitErr != nil {
		return fmt.Errorf("worker: sending table entry: %w", emitErr)
	}
	if err := enc.Flush(); err != nil {
		return fmt.Errorf("worker: flushing output: %w", err)
	}
	return nil
}
