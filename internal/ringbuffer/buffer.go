// Package ringbuffer implements the fixed-capacity multi-channel sample
// window shared by every processing stage.
package ringbuffer

import "fmt"

// Buffer holds raw codes, scaled values and timestamps for a set of
// channels. All channels share one write cursor.
type Buffer struct {
	channels int
	capacity int

	raw    [][]uint16
	values [][]float64
	times  []float64

	cursor int    // next write position
	total  uint64 // rows appended since construction
	fresh  int    // rows appended since the last TakeNew
}

// New creates an empty buffer
func New(channels, capacity int) (*Buffer, error) {
	if channels < 1 || capacity < 1 {
		return nil, fmt.Errorf("invalid ring buffer size: %d channels x %d samples", channels, capacity)
	}
	b := &Buffer{
		channels: channels,
		capacity: capacity,
		raw:      make([][]uint16, channels),
		values:   make([][]float64, channels),
		times:    make([]float64, capacity),
	}
	for ch := 0; ch < channels; ch++ {
		b.raw[ch] = make([]uint16, capacity)
		b.values[ch] = make([]float64, capacity)
	}
	return b, nil
}

func (b *Buffer) Channels() int { return b.channels }
func (b *Buffer) Capacity() int { return b.capacity }

// Cursor returns the shared write position
func (b *Buffer) Cursor() int { return b.cursor }

// Total returns the monotonically increasing count of appended rows
func (b *Buffer) Total() uint64 { return b.total }

// Filled returns how many slots hold data, at most Capacity
func (b *Buffer) Filled() int {
	if b.total >= uint64(b.capacity) {
		return b.capacity
	}
	return int(b.total)
}

// LastTimestamp returns the timestamp of the most recent row
func (b *Buffer) LastTimestamp() float64 {
	return b.times[b.prev()]
}

func (b *Buffer) prev() int {
	return (b.cursor - 1 + b.capacity) % b.capacity
}

// Append writes one row at the cursor. raw and scaled must have at least
// Channels entries.
func (b *Buffer) Append(timestamp float64, raw []uint16, scaled []float64) {
	for ch := 0; ch < b.channels; ch++ {
		b.raw[ch][b.cursor] = raw[ch]
		b.values[ch][b.cursor] = scaled[ch]
	}
	b.times[b.cursor] = timestamp
	b.cursor++
	if b.cursor == b.capacity {
		b.cursor = 0
	}
	b.total++
	b.fresh++
}

// AppendNext writes one row stamped dt after the previous row
func (b *Buffer) AppendNext(dt float64, raw []uint16, scaled []float64) {
	b.Append(b.times[b.prev()]+dt, raw, scaled)
}

// TakeNew reports how many rows arrived since the last call, capped at
// Capacity, and resets the count.
func (b *Buffer) TakeNew() int {
	n := b.fresh
	if n > b.capacity {
		n = b.capacity
	}
	b.fresh = 0
	return n
}

// PeekNew is TakeNew without resetting the count
func (b *Buffer) PeekNew() int {
	if b.fresh > b.capacity {
		return b.capacity
	}
	return b.fresh
}

// Seek moves the write cursor so that absolute sample index maps onto
// the same slot it would occupy had the buffer started at index zero.
func (b *Buffer) Seek(index int) {
	if index < 0 {
		index = 0
	}
	b.cursor = index % b.capacity
}

// Unrolled returns the last n scaled values of a channel in time order.
// n <= 0 or n > Capacity returns the whole window.
func (b *Buffer) Unrolled(ch, n int) []float64 {
	return unroll(b.values[ch], b.cursor, n)
}

// UnrolledRaw is Unrolled for raw codes
func (b *Buffer) UnrolledRaw(ch, n int) []uint16 {
	return unroll(b.raw[ch], b.cursor, n)
}

// UnrolledTimes is Unrolled for timestamps
func (b *Buffer) UnrolledTimes(n int) []float64 {
	return unroll(b.times, b.cursor, n)
}

// Row returns the raw codes at the most recent k-th row (0 is newest)
func (b *Buffer) Row(k int) []uint16 {
	idx := ((b.cursor-1-k)%b.capacity + b.capacity) % b.capacity
	row := make([]uint16, b.channels)
	for ch := range row {
		row[ch] = b.raw[ch][idx]
	}
	return row
}

// unroll concatenates data[cursor:] and data[:cursor], keeping the tail of
// length n.
func unroll[T any](data []T, cursor, n int) []T {
	size := len(data)
	if n <= 0 || n > size {
		n = size
	}
	out := make([]T, 0, size)
	out = append(out, data[cursor:]...)
	out = append(out, data[:cursor]...)
	return out[size-n:]
}
