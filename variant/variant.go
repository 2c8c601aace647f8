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

// Package variant holds the protocol constants that the driver and every
// worker in a single run must agree on. The hash table slot count and the
// definition of a "word" byte both influence where a record lands in the
// table, which in turn drives the slot-watermark protocol between driver and
// workers (see the table and driver packages) — so these are not tunable
// independently per process.
package variant

// A Variant fixes the protocol constants shared by driver and worker.
type Variant struct {
	// Name identifies the variant on the command line.
	Name string

	// Slots is the fixed hash table slot count (spec §3).
	Slots int

	// IsWordByte reports whether b is part of a word (true) or a separator
	// (false).
	IsWordByte func(b byte) bool

	// Lowercase reports whether ASCII letters are folded to lower case
	// in-place before counting.
	Lowercase bool

	// GC reports whether the driver performs incremental heap
	// compaction (component H) instead of accumulating the whole table
	// in memory before emitting it.
	GC bool
}

func isSimpleSeparator(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	default:
		return false
	}
}

func isAlnum(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Simple is the whitespace-delimited, case-sensitive, non-GC variant.
// NR_HASH_TABLE_SLOTS == 131072 in the original source.
var Simple = Variant{
	Name:       "simple",
	Slots:      131072,
	IsWordByte: func(b byte) bool { return !isSimpleSeparator(b) },
	Lowercase:  false,
	GC:         false,
}

// GC is the alphanumeric, case-folding, incrementally-compacting variant.
// 262143 is prime, unlike Simple's power-of-two slot count (spec §9).
var GC = Variant{
	Name:       "gc",
	Slots:      262143,
	IsWordByte: isAlnum,
	Lowercase:  true,
	GC:         true,
}

// ByName resolves a variant flag value, as accepted by every binary's
// -variant flag. Driver and workers must be invoked with the same name.
func ByName(name string) (Variant, bool) {
	switch name {
	case "", "gc":
		return GC, true
	case "simple":
		return Simple, true
	default:
		return Variant{}, false
	}
}
