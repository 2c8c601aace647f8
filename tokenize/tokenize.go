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

// Package tokenize implements the worker's streaming byte-level lexer
// (spec §4.2): it finds the chunk's prefix fragment, emits complete words,
// and finally the suffix fragment, over a bounded 1 MiB working buffer.
//
// The original source drives this with setjmp/longjmp to unwind out of the
// scan loop on EOF; here each refill attempt instead returns one of three
// explicit outcomes (more data, io.EOF, or errBufferFull), and the caller
// unwinds cooperatively by returning — the replacement the spec's design
// notes call for.
package tokenize

import (
	"errors"
	"io"
)

// bufSize is the working buffer's capacity, matching the source's 1 MiB
// RX_BUFFER_SIZE.
const bufSize = 1 << 20

// minRead is the minimum number of free bytes the buffer is compacted down
// to before issuing another Read, matching MIN_READ_SIZE.
const minRead = 32 << 10

// errBufferFull reports that the working buffer is physically full and no
// separator (or, in the prefix scan, no further progress) was found in it.
// A word that triggers this is split across the boundary — see spec §4.2
// step 2 and §9.
var errBufferFull = errors.New("tokenize: working buffer exhausted without a boundary")

// Scanner implements the worker's lexer state machine
// (AwaitConnections -> StreamingIn -> ReachedEOF -> StreamingOut, spec §4.7,
// restricted to the streaming-in portion).
type Scanner struct {
	r          io.Reader
	buf        []byte
	avail      int
	used       int
	isWordByte func(byte) bool
	lower      bool
}

// New constructs a Scanner reading from r. isWordByte classifies each byte
// as word (true) or separator (false); lower, if set, lower-cases ASCII
// letters in place as they are read (the GC variant, spec §4.2).
func New(r io.Reader, isWordByte func(byte) bool, lower bool) *Scanner {
	return &Scanner{r: r, buf: make([]byte, bufSize), isWordByte: isWordByte, lower: lower}
}

func (s *Scanner) wordByteAt(i int) bool { return s.isWordByte(s.buf[i]) }

// fill compacts the buffer if needed and issues one Read, returning nil on
// success, io.EOF at true end of input, or errBufferFull if the buffer is
// already at capacity.
func (s *Scanner) fill() error {
	if bufSize-s.avail < minRead {
		copy(s.buf, s.buf[s.used:s.avail])
		s.avail -= s.used
		s.used = 0
	}
	if s.avail == bufSize {
		return errBufferFull
	}
	n, err := s.r.Read(s.buf[s.avail:bufSize])
	if n > 0 {
		if s.lower {
			lowerASCII(s.buf[s.avail : s.avail+n])
		}
		s.avail += n
		return nil
	}
	if err == nil {
		err = io.EOF
	}
	return err
}

func lowerASCII(b []byte) {
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
}

// scanWhile advances *pos while the byte at *pos classifies as want under
// isWordByte, refilling as needed. It returns nil once a byte with the
// opposite classification is found (leaving *pos there), io.EOF if the
// input ends while the classification holds for every remaining byte, or
// errBufferFull if the buffer fills before either happens.
func (s *Scanner) scanWhile(pos *int, want bool) error {
	for {
		for *pos < s.avail && s.isWordByte(s.buf[*pos]) == want {
			*pos++
		}
		if *pos < s.avail {
			return nil
		}
		used := s.used
		err := s.fill()
		*pos -= used - s.used // fill may have compacted the buffer down by used bytes
		if err != nil {
			return err
		}
	}
}

func (s *Scanner) takeRange(lo, hi int) []byte {
	out := make([]byte, hi-lo)
	copy(out, s.buf[lo:hi])
	return out
}

// Run scans the entire input, calling onWord once per complete word found
// between the prefix and suffix fragments (in order), and returns those
// fragments. Both may be empty; onWord is never called with an empty word.
//
// Edge cases handled per spec §3/§4.2/§9:
//   - Empty input: prefix and suffix are both empty, onWord is never called.
//   - No whitespace anywhere in the input: prefix and suffix are both the
//     entire input (the unique word spanning the whole chunk); onWord is
//     never called.
//   - A word exceeding the buffer's 1 MiB capacity is split: the portion
//     collected so far is emitted (as the prefix, if this is the very
//     first word, or as a counted word otherwise) and scanning resumes
//     immediately for the remainder, rather than losing data the way the
//     original's spurious-EOF-on-read(...,0) behavior would.
func (s *Scanner) Run(onWord func(word []byte)) (prefix, suffix []byte, err error) {
	if err := s.fill(); err != nil {
		if err == io.EOF {
			return []byte{}, []byte{}, nil
		}
		return nil, nil, err
	}

	i := 0
	switch err := s.scanWhile(&i, true); err {
	case nil:
		// Found a separator; i marks the end of the prefix.
	case io.EOF:
		whole := s.takeRange(s.used, s.avail)
		s.used = s.avail
		return whole, whole, nil
	case errBufferFull:
		i = s.avail
	default:
		return nil, nil, err
	}
	prefix = s.takeRange(s.used, i)
	s.used = i

	for {
		j := s.used
		switch err := s.scanWhile(&j, false); err {
		case nil:
			s.used = j
		case io.EOF:
			return prefix, []byte{}, nil
		case errBufferFull:
			s.used = s.avail
			continue
		default:
			return nil, nil, err
		}

		k := s.used
		switch err := s.scanWhile(&k, true); err {
		case nil:
			word := s.takeRange(s.used, k)
			s.used = k
			onWord(word)
		case io.EOF:
			suffix = s.takeRange(s.used, s.avail)
			s.used = s.avail
			return prefix, suffix, nil
		case errBufferFull:
			word := s.takeRange(s.used, s.avail)
			s.used = s.avail
			onWord(word)
		default:
			return nil, nil, err
		}
	}
}
