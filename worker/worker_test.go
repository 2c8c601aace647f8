package worker

import (
	"bytes"
	"testing"

	"github.com/go-dwc/dwc/variant"
	"github.com/go-dwc/dwc/wire"
)

func TestEngineRunRoundTrip(t *testing.T) {
	e := New(variant.Simple)
	rx := bytes.NewBufferString("hello world hello there world world")
	var tx bytes.Buffer

	if err := e.Run(rx, &tx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	dec := wire.NewDecoder(&tx)
	prefix, err := dec.ReadString()
	if err != nil || string(prefix) != "hello" {
		t.Fatalf("prefix = %q, %v, want %q", prefix, err, "hello")
	}
	suffix, err := dec.ReadString()
	if err != nil || string(suffix) != "world" {
		t.Fatalf("suffix = %q, %v, want %q", suffix, err, "world")
	}

	got := map[string]uint32{}
	for {
		ent, err := dec.ReadEntry()
		if err != nil {
			break
		}
		got[string(ent.Word)] = ent.Count
	}
	// The first "hello" and the last "world" are consumed as prefix/suffix
	// fragments, leaving "world", "hello", "there", "world" as the interior
	// words.
	want := map[string]uint32{"world": 2, "hello": 1, "there": 1}
	if len(got) != len(want) {
		t.Fatalf("table = %v, want %v", got, want)
	}
	for word, count := range want {
		if got[word] != count {
			t.Errorf("table[%q] = %d, want %d", word, got[word], count)
		}
	}
}

func TestEngineRunEmptyInput(t *testing.T) {
	e := New(variant.Simple)
	var tx bytes.Buffer
	if err := e.Run(bytes.NewReader(nil), &tx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	dec := wire.NewDecoder(&tx)
	prefix, err := dec.ReadString()
	if err != nil || len(prefix) != 0 {
		t.Fatalf("prefix = %q, %v, want empty", prefix, err)
	}
	suffix, err := dec.ReadString()
	if err != nil || len(suffix) != 0 {
		t.Fatalf("suffix = %q, %v, want empty", suffix, err)
	}
	if _, err := dec.ReadEntry(); err == nil {
		t.Fatalf("ReadEntry on empty table: want error (EOF), got nil")
	}
}
