package codec

import (
	"bytes"
	"reflect"
	"testing"
)

func TestRoundTripNestedPayload(t *testing.T) {
	in := map[string]any{
		"name":   "job-42",
		"count":  uint64(7),
		"offset": int64(-3),
		"ratio":  0.25,
		"live":   true,
		"blob":   []byte{0x00, 0xFF, 0x10},
		"none":   nil,
		"steps": []any{
			"fetch",
			uint64(2),
			map[string]any{"nested": "deep"},
		},
	}

	encoded, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := Unmarshal(encoded, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(out, any(in)) {
		t.Fatalf("round trip mismatch:\n got=%#v\nwant=%#v", out, in)
	}
}

func TestDeterministicEncoding(t *testing.T) {
	payload := map[string]any{"b": "2", "a": "1", "c": []any{"x", "y"}}
	first, err := Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 16; i++ {
		again, err := Marshal(payload)
		if err != nil {
			t.Fatalf("marshal (repeat %d): %v", i, err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("non-deterministic encoding on repeat %d", i)
		}
	}
}

func TestUnmarshalGarbageFails(t *testing.T) {
	var out any
	if err := Unmarshal([]byte{0xFF, 0x00, 0xFF}, &out); err == nil {
		t.Fatalf("expected decode error for garbage bytes")
	}
}
