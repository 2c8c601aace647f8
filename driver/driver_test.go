package driver

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-dwc/dwc/variant"
	"github.com/go-dwc/dwc/worker"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// runWorker tokenises chunk exactly as a real worker process would and
// returns its wire stream, for use as a Conn.From in tests that exercise
// only the driver side of the protocol.
func runWorker(t *testing.T, v variant.Variant, chunk string) []byte {
	t.Helper()
	e := worker.New(v)
	var out bytes.Buffer
	if err := e.Run(strings.NewReader(chunk), &out); err != nil {
		t.Fatalf("worker.Run: %v", err)
	}
	return out.Bytes()
}

func TestDriverMergesAndSplicesBoundaries(t *testing.T) {
	content := "aa bb cc dd ee ff"
	ranges := Split(int64(len(content)), 3)

	v := variant.Simple
	conns := make([]Conn, len(ranges))
	for i, r := range ranges {
		chunk := content[r.Start:r.End]
		conns[i] = Conn{
			To:   nopWriteCloser{io.Discard},
			From: bytes.NewReader(runWorker(t, v, chunk)),
		}
	}

	d := New(v)
	got := map[string]uint32{}
	res, err := d.Run(context.Background(), strings.NewReader(content), ranges, conns, func(count uint32, word []byte) {
		got[string(word)] += count
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Pending) != 0 {
		t.Errorf("Pending = %v, want none", res.Pending)
	}

	want := map[string]uint32{"aa": 1, "bb": 1, "cc": 1, "dd": 1, "ee": 1, "ff": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged counts mismatch (-want +got):\n%s", diff)
	}
}

func TestDriverSingleWorkerNoSplice(t *testing.T) {
	content := "the quick the fox"
	ranges := Split(int64(len(content)), 1)
	v := variant.Simple
	conns := []Conn{{
		To:   nopWriteCloser{io.Discard},
		From: bytes.NewReader(runWorker(t, v, content)),
	}}

	d := New(v)
	got := map[string]uint32{}
	_, err := d.Run(context.Background(), strings.NewReader(content), ranges, conns, func(count uint32, word []byte) {
		got[string(word)] += count
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got["the"] != 2 || got["quick"] != 1 || got["fox"] != 1 {
		t.Errorf("got %v", got)
	}
}

// TestDriverSingleWorkerNoWhitespace exercises the single-worker instance
// of the no-whitespace edge case: with only one worker, that worker's
// prefix and suffix are the same whole-chunk fragment (tokenize.Run finds
// no separator at all), and there is no neighboring boundary splice to
// fall back on. The chunk's one word must still be counted exactly once —
// neither dropped (both sides suppressed, watching for a splice partner
// that can never exist with n == 1) nor double-counted (both sides
// inserted unconditionally).
func TestDriverSingleWorkerNoWhitespace(t *testing.T) {
	content := "abcdefghij"
	ranges := Split(int64(len(content)), 1)
	v := variant.Simple
	conns := []Conn{{
		To:   nopWriteCloser{io.Discard},
		From: bytes.NewReader(runWorker(t, v, content)),
	}}

	d := New(v)
	got := map[string]uint32{}
	res, err := d.Run(context.Background(), strings.NewReader(content), ranges, conns, func(count uint32, word []byte) {
		got[string(word)] += count
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Pending) != 0 {
		t.Errorf("Pending = %v, want none", res.Pending)
	}
	want := map[string]uint32{"abcdefghij": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged counts mismatch (-want +got):\n%s", diff)
	}
}

// TestDriverNoWhitespaceEdgeSuppression exercises spec §8 scenario 3 and
// the REDESIGN FLAGS no-whitespace fix: when a whole chunk has no
// whitespace, its prefix/suffix edge insert is suppressed in favor of the
// boundary splice that already accounts for it, instead of double-counting.
func TestDriverNoWhitespaceEdgeSuppression(t *testing.T) {
	content := "abcdefghij"
	ranges := Split(int64(len(content)), 2)
	v := variant.Simple
	conns := make([]Conn, len(ranges))
	for i, r := range ranges {
		conns[i] = Conn{
			To:   nopWriteCloser{io.Discard},
			From: bytes.NewReader(runWorker(t, v, content[r.Start:r.End])),
		}
	}

	d := New(v)
	got := map[string]uint32{}
	_, err := d.Run(context.Background(), strings.NewReader(content), ranges, conns, func(count uint32, word []byte) {
		got[string(word)] += count
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got["abcdefghij"] != 1 {
		t.Errorf("got[abcdefghij] = %d, want 1", got["abcdefghij"])
	}
	if got["abcde"] != 0 || got["fghij"] != 0 {
		t.Errorf("edge fragments leaked into output uncombined: %v", got)
	}
}

// TestDriverEmptyInputThreeEmptyInserts exercises spec §8 scenario 4 (empty
// input, 2 workers). It resolves Open Question 1 (DESIGN.md): the final
// empty-word count is 3 (one edge insert per worker, plus the one internal
// splice), not the 4 the scenario's prose suggests, because §4.3's "exactly
// once" invariant takes precedence over that illustrative arithmetic.
func TestDriverEmptyInputThreeEmptyInserts(t *testing.T) {
	content := ""
	ranges := Split(int64(len(content)), 2)
	v := variant.Simple
	conns := make([]Conn, len(ranges))
	for i, r := range ranges {
		conns[i] = Conn{
			To:   nopWriteCloser{io.Discard},
			From: bytes.NewReader(runWorker(t, v, content[r.Start:r.End])),
		}
	}

	d := New(v)
	got := map[string]uint32{}
	res, err := d.Run(context.Background(), strings.NewReader(content), ranges, conns, func(count uint32, word []byte) {
		got[string(word)] += count
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Pending) != 0 {
		t.Errorf("Pending = %v, want none", res.Pending)
	}
	want := map[string]uint32{"": 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merged counts mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitAbsorbsRemainder(t *testing.T) {
	ranges := Split(10, 3)
	if len(ranges) != 3 {
		t.Fatalf("len(ranges) = %d, want 3", len(ranges))
	}
	if ranges[len(ranges)-1].End != 10 {
		t.Errorf("last range end = %d, want 10", ranges[len(ranges)-1].End)
	}
	var total int64
	for _, r := range ranges {
		total += r.Len()
	}
	if total != 10 {
		t.Errorf("total = %d, want 10", total)
	}
}
