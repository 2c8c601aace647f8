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

// Package wire implements the worker-to-driver framing of spec §4.4: a
// prefix string, a suffix string, then a stream of (count, word) entries,
// all little-endian, with connection close marking end of stream. There is
// no corresponding decoder for the driver-to-worker direction because that
// stream carries raw file bytes with no framing at all (spec §4.4, §4.5).
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// RingBuffer is a fixed-size ring used to batch small writes before they
// are flushed to the underlying stream, mirroring the producer/consumer
// cursor discipline of the original source's TX buffer: a write that would
// straddle the physical wrap point is split into two copies instead of
// growing the buffer. Unlike the source, Flush uses an ordinary blocking
// Write on the underlying io.Writer instead of spinning on EAGAIN/POLLOUT.
type RingBuffer struct {
	w    io.Writer
	buf  []byte
	prod int // producer cursor, monotonically increasing
	cons int // consumer cursor, monotonically increasing
}

// NewRingBuffer constructs a RingBuffer of the given capacity writing
// through to w.
func NewRingBuffer(w io.Writer, capacity int) *RingBuffer {
	return &RingBuffer{w: w, buf: make([]byte, capacity)}
}

// Write appends p to the ring, flushing as needed to make room. It never
// returns a short write: either all of p is buffered (and flushed as
// necessary) or an error is returned.
func (r *RingBuffer) Write(p []byte) (int, error) {
	total := len(p)
	cap := len(r.buf)
	for len(p) > 0 {
		for r.prod-r.cons == cap {
			if err := r.flushOnce(); err != nil {
				return 0, err
			}
		}
		free := cap - (r.prod - r.cons)
		n := len(p)
		if n > free {
			n = free
		}
		start := r.prod % cap
		if start+n <= cap {
			copy(r.buf[start:start+n], p[:n])
		} else {
			c1 := cap - start
			copy(r.buf[start:], p[:c1])
			copy(r.buf[:n-c1], p[c1:n])
		}
		r.prod += n
		p = p[n:]
	}
	return total, nil
}

// flushOnce writes the largest contiguous run of buffered bytes to the
// underlying writer.
func (r *RingBuffer) flushOnce() error {
	cap := len(r.buf)
	avail := r.prod - r.cons
	if avail == 0 {
		return nil
	}
	start := r.cons % cap
	n := avail
	if start+n > cap {
		n = cap - start
	}
	written, err := r.w.Write(r.buf[start : start+n])
	r.cons += written
	if err != nil {
		return err
	}
	if written == 0 {
		return io.ErrShortWrite
	}
	return nil
}

// Flush drains every buffered byte to the underlying writer.
func (r *RingBuffer) Flush() error {
	for r.prod != r.cons {
		if err := r.flushOnce(); err != nil {
			return err
		}
	}
	return nil
}

// Encoder writes the worker->driver wire stream (spec §4.4).
type Encoder struct {
	ring *RingBuffer
}

// NewEncoder constructs an Encoder that buffers through a RingBuffer of the
// given capacity before writing to w.
func NewEncoder(w io.Writer, ringSize int) *Encoder {
	return &Encoder{ring: NewRingBuffer(w, ringSize)}
}

// WriteString writes a length-prefixed byte string (used for the prefix
// and suffix messages).
func (e *Encoder) WriteString(b []byte) error {
	if len(b) > 0xffff {
		return fmt.Errorf("wire: string of %d bytes exceeds u16 length", len(b))
	}
	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(len(b)))
	if _, err := e.ring.Write(hdr[:]); err != nil {
		return err
	}
	_, err := e.ring.Write(b)
	return err
}

// WriteEntry writes one (count, word) table entry.
func (e *Encoder) WriteEntry(count uint32, word []byte) error {
	if len(word) > 0xffff {
		return fmt.Errorf("wire: word of %d bytes exceeds u16 length", len(word))
	}
	var hdr [6]byte
	binary.LittleEndian.PutUint32(hdr[0:4], count)
	binary.LittleEndian.PutUint16(hdr[4:6], uint16(len(word)))
	if _, err := e.ring.Write(hdr[:]); err != nil {
		return err
	}
	_, err := e.ring.Write(word)
	return err
}

// Flush drains any buffered bytes to the underlying stream. Callers must
// Flush before closing the connection, or trailing entries are lost.
func (e *Encoder) Flush() error { return e.ring.Flush() }

// Decoder parses the worker->driver wire stream incrementally from a
// buffered reader. Unlike the source's hand-rolled avail/used cursors over
// a fixed array, this uses bufio.Reader sized to the same 1 MiB working set
// (spec §4.3) — no ecosystem library in the retrieved pack implements a
// custom binary frame codec, so bufio is the idiomatic primitive here (see
// DESIGN.md).
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder constructs a Decoder reading from r with a 1 MiB buffer.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 1<<20)}
}

// ReadString reads one length-prefixed string message (a prefix or suffix).
// It returns io.EOF only if the stream ends before any bytes of the length
// header are read; a truncated frame after that point is a protocol
// violation and returns io.ErrUnexpectedEOF.
func (d *Decoder) ReadString() ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint16(hdr[:])
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, unexpected(err)
	}
	return buf, nil
}

// Entry is one decoded (count, word) table entry.
type Entry struct {
	Count uint32
	Word  []byte
}

// ReadEntry reads one table entry. It returns io.EOF exactly when the
// stream has ended cleanly at an entry boundary (the worker closed its
// connection), which callers use to detect the end of a worker's table.
func (d *Decoder) ReadEntry() (Entry, error) {
	var hdr [6]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return Entry{}, err // may be a clean io.EOF
	}
	count := binary.LittleEndian.Uint32(hdr[0:4])
	wlen := binary.LittleEndian.Uint16(hdr[4:6])
	word := make([]byte, wlen)
	if wlen > 0 {
		if _, err := io.ReadFull(d.r, word); err != nil {
			return Entry{}, unexpected(err)
		}
	}
	return Entry{Count: count, Word: word}, nil
}

// unexpected promotes a clean EOF encountered mid-frame to
// io.ErrUnexpectedEOF, since a truncated frame is a protocol violation
// (spec §7), not a normal end of stream.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
