package ringbuffer

import (
	"reflect"
	"testing"
)

func appendValue(b *Buffer, dt, v float64) {
	raw := make([]uint16, b.Channels())
	scaled := make([]float64, b.Channels())
	for ch := range scaled {
		raw[ch] = uint16(v)
		scaled[ch] = v
	}
	b.AppendNext(dt, raw, scaled)
}

func TestUnrolledIsChronological(t *testing.T) {
	b, err := New(2, 5)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for i := 1; i <= 7; i++ {
		appendValue(b, 0.5, float64(i))
	}

	got := b.Unrolled(0, 0)
	want := []float64{3, 4, 5, 6, 7}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Unrolled = %v, want %v", got, want)
	}

	times := b.UnrolledTimes(0)
	wantTimes := []float64{1.5, 2, 2.5, 3, 3.5}
	if !reflect.DeepEqual(times, wantTimes) {
		t.Errorf("UnrolledTimes = %v, want %v", times, wantTimes)
	}

	if b.Cursor() != 2 {
		t.Errorf("cursor = %d, want 2", b.Cursor())
	}
	if b.Total() != 7 {
		t.Errorf("total = %d, want 7", b.Total())
	}
}

func TestUnrolledIdempotent(t *testing.T) {
	b, _ := New(1, 8)
	for i := 0; i < 11; i++ {
		appendValue(b, 1, float64(i))
	}
	first := b.Unrolled(0, 0)
	second := b.Unrolled(0, 0)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("two unrolls differ: %v vs %v", first, second)
	}
	if len(first) != 8 {
		t.Fatalf("unroll length = %d, want capacity 8", len(first))
	}
}

func TestUnrolledTail(t *testing.T) {
	b, _ := New(1, 4)
	for i := 1; i <= 6; i++ {
		appendValue(b, 1, float64(i))
	}
	got := b.Unrolled(0, 2)
	if !reflect.DeepEqual(got, []float64{5, 6}) {
		t.Errorf("Unrolled(0, 2) = %v", got)
	}
	if raw := b.UnrolledRaw(0, 3); !reflect.DeepEqual(raw, []uint16{4, 5, 6}) {
		t.Errorf("UnrolledRaw(0, 3) = %v", raw)
	}
}

func TestTakeNewCapsAtCapacity(t *testing.T) {
	b, _ := New(1, 4)
	appendValue(b, 1, 1)
	appendValue(b, 1, 2)
	if n := b.TakeNew(); n != 2 {
		t.Errorf("TakeNew = %d, want 2", n)
	}
	if n := b.TakeNew(); n != 0 {
		t.Errorf("TakeNew after reset = %d, want 0", n)
	}
	for i := 0; i < 10; i++ {
		appendValue(b, 1, float64(i))
	}
	if n := b.PeekNew(); n != 4 {
		t.Errorf("PeekNew = %d, want 4", n)
	}
	if b.Filled() != 4 {
		t.Errorf("Filled = %d, want 4", b.Filled())
	}
}

func TestSeekAlignsCursor(t *testing.T) {
	b, _ := New(1, 10)
	b.Seek(23)
	if b.Cursor() != 3 {
		t.Errorf("cursor after Seek(23) = %d, want 3", b.Cursor())
	}
	b.Append(4.6, []uint16{1}, []float64{1})
	if b.Row(0)[0] != 1 || b.LastTimestamp() != 4.6 {
		t.Errorf("row not written at seek position")
	}
}

func TestNewRejectsBadSize(t *testing.T) {
	if _, err := New(0, 10); err == nil {
		t.Error("expected error for zero channels")
	}
	if _, err := New(3, 0); err == nil {
		t.Error("expected error for zero capacity")
	}
}
