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

package worker

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/creachadair/atomicfile"
	"github.com/golang/snappy"
)

// Spool drains rx completely into a fresh file at path, writing it
// atomically so a reader can never observe a partially-written spool. This
// backs a worker's --prepopulate mode (spec §6): the entire chunk is
// received and stored locally before tokenising begins, decoupling the
// driver's send phase from the worker's (possibly much slower) scan phase.
// When compress is set the spool is snappy-framed on disk, trading a little
// CPU for less space on a dump directory shared by many workers.
func Spool(rx io.Reader, path string, compress bool) error {
	data, err := io.ReadAll(rx)
	if err != nil {
		return fmt.Errorf("worker: reading prepopulate input: %w", err)
	}
	if compress {
		var buf bytes.Buffer
		zw := snappy.NewBufferedWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return fmt.Errorf("worker: compressing spool data: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("worker: compressing spool data: %w", err)
		}
		data = buf.Bytes()
	}
	if err := atomicfile.WriteData(path, data, 0600); err != nil {
		return fmt.Errorf("worker: writing spool file %s: %w", path, err)
	}
	return nil
}

// OpenSpool reopens a file written by Spool for tokenising. compress must
// match the value passed to Spool.
func OpenSpool(path string, compress bool) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("worker: opening spool file %s: %w", path, err)
	}
	if !compress {
		return f, nil
	}
	return snappyReadCloser{r: snappy.NewReader(f), c: f}, nil
}

// snappyReadCloser pairs a snappy.Reader with the underlying file it must
// close, since snappy.Reader itself has no Close method.
type snappyReadCloser struct {
	r *snappy.Reader
	c io.Closer
}

func (s snappyReadCloser) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s snappyReadCloser) Close() error               { return s.c.Close() }
