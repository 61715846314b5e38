package uarr

import (
	"testing"

	"github.com/danshapiro/fxd/internal/graph"
)

func roundTrip(t *testing.T, v graph.Value) graph.Value {
	t.Helper()
	b, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func TestRoundTripScalars(t *testing.T) {
	cases := []graph.Value{
		graph.None(),
		graph.Bool(true),
		graph.Bool(false),
		graph.Int(-12345),
		graph.Float(3.14159),
		graph.String("hello, 世界"),
		graph.Bytes([]byte{0x00, 0x01, 0xFF}),
	}
	for _, v := range cases {
		got := roundTrip(t, v)
		if !got.Equal(v) {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, v)
		}
	}
}

func TestRoundTripArray(t *testing.T) {
	v := graph.Array([]graph.Value{
		graph.Int(1),
		graph.String("two"),
		graph.Bool(true),
		graph.None(),
	})
	got := roundTrip(t, v)
	if !got.Equal(v) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, v)
	}
}

func TestRoundTripObject(t *testing.T) {
	v := graph.Object(map[string]graph.Value{
		"name":   graph.String("alice"),
		"age":    graph.Int(30),
		"active": graph.Bool(true),
	})
	got := roundTrip(t, v)
	if !got.Equal(v) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, v)
	}
}

func TestRoundTripNestedCompound(t *testing.T) {
	v := graph.Object(map[string]graph.Value{
		"tags": graph.Array([]graph.Value{graph.String("a"), graph.String("b")}),
		"meta": graph.Object(map[string]graph.Value{
			"nested": graph.Array([]graph.Value{
				graph.Object(map[string]graph.Value{"x": graph.Int(1)}),
			}),
		}),
	})
	got := roundTrip(t, v)
	if !got.Equal(v) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, v)
	}
}

func TestRoundTripLargeString(t *testing.T) {
	big := make([]byte, 2*1024*1024)
	for i := range big {
		big[i] = byte('a' + i%26)
	}
	v := graph.String(string(big))
	got := roundTrip(t, v)
	if got.Str != v.Str {
		t.Fatalf("large string round trip mismatch (lengths %d vs %d)", len(got.Str), len(v.Str))
	}
}

func TestEncodeRejectsHandle(t *testing.T) {
	if _, err := Encode(graph.Handle(make(chan int))); err == nil {
		t.Fatalf("expected error encoding a handle value")
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	b, _ := Encode(graph.Int(1))
	b[0] = 'X'
	if _, err := Decode(b); err == nil {
		t.Fatalf("expected error for corrupted magic")
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	b, _ := Encode(graph.Object(map[string]graph.Value{"k": graph.String("value")}))
	if _, err := Decode(b[:len(b)-4]); err == nil {
		t.Fatalf("expected error for truncated blob")
	}
}
