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
	"encoding/binary"
	"fmt"
	"io"
)

// dumpHeaderSize is the width of the header WriteDumpHeader prepends to a
// --debug-dump file: one little-endian u64 recording the worker's original
// chunk length, ahead of its raw wire stream (package wire's framing).
const dumpHeaderSize = 8

// WriteDumpHeader writes rangeLen as an 8-byte little-endian header to w.
// A --offline dump file needs this because the dump's own size is the
// number of framed wire-protocol bytes, not the original chunk length the
// no-whitespace boundary suppression in package driver keys off (setPrefix
// and setSuffix compare a fragment's length against it) — without it,
// --offline replay of a worker whose chunk had no internal whitespace
// double-counts that chunk's one word.
func WriteDumpHeader(w io.Writer, rangeLen int64) error {
	var hdr [dumpHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(rangeLen))
	_, err := w.Write(hdr[:])
	return err
}

// ReadDumpHeader reads the header WriteDumpHeader wrote, returning the
// original chunk length it recorded. The caller's reader is left
// positioned at the start of the wire stream that follows.
func ReadDumpHeader(r io.Reader) (rangeLen int64, err error) {
	var hdr [dumpHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, fmt.Errorf("driver: reading dump header: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(hdr[:])), nil
}
