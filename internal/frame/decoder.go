// Package frame turns serial text chunks and binary recording slices into
// fixed-arity sensor rows.
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"

	"myostack-collector/internal/protocol"
)

const (
	rowSeparator   = "\r\n"
	fieldSeparator = ";"

	// maxPending bounds the carried-over fragment; a stream that never
	// produces a row separator within this many bytes is not protocol data.
	maxPending = 64 * 1024

	// stitchExemptCalls is the number of leading calls whose input is not
	// prefixed with the previous fragment.
	stitchExemptCalls = 2
)

// Row is one time slot of channel samples. Rows that failed to parse keep
// their slot with zero values and Valid=false.
type Row struct {
	Raw   [protocol.MaxChannels]uint16
	Valid bool
}

// DecodeError reports a byte stream that cannot be interpreted at all
type DecodeError struct {
	Reason string
	Bytes  int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %s (%d bytes)", e.Reason, e.Bytes)
}

// Protocol resolves the version a stream is decoded with. A stream of an
// unknown version cannot be interpreted.
func Protocol(name string) (protocol.Params, error) {
	p, err := protocol.Lookup(name)
	if err != nil {
		return protocol.Params{}, &DecodeError{Reason: err.Error()}
	}
	return p, nil
}

// Decoder parses the live serial protocol: ASCII rows separated by CRLF,
// nine unsigned decimal fields separated by ';'. It keeps the trailing
// partial row of each chunk for the next call.
type Decoder struct {
	pending []byte
	calls   int
}

// NewDecoder returns a decoder with no carried-over fragment
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Reset forgets the pending fragment and the call count
func (d *Decoder) Reset() {
	d.pending = nil
	d.calls = 0
}

// Leftover returns a copy of the fragment carried to the next call
func (d *Decoder) Leftover() []byte {
	return append([]byte(nil), d.pending...)
}

// Decode parses one chunk read from the serial link
func (d *Decoder) Decode(chunk []byte) ([]Row, error) {
	d.calls++
	if len(chunk) < 2 {
		// Too short to hold a separator; keep it for the next read.
		if len(chunk) > 0 && d.calls > stitchExemptCalls {
			d.pending = append(d.pending, chunk...)
		}
		return nil, d.checkPending()
	}

	cut := bytes.LastIndexByte(chunk[1:], '\r')
	if cut >= 0 {
		cut++
	}

	var body []byte
	if d.calls <= stitchExemptCalls {
		body = chunk
		if cut >= 0 {
			d.pending = append([]byte(nil), chunk[cut:]...)
		} else {
			d.pending = nil
		}
	} else {
		if cut < 0 {
			d.pending = append(d.pending, chunk...)
			return nil, d.checkPending()
		}
		body = make([]byte, 0, len(d.pending)+cut)
		body = append(body, d.pending...)
		body = append(body, chunk[:cut]...)
		d.pending = append([]byte(nil), chunk[cut:]...)
	}

	return ParseRows(body), nil
}

func (d *Decoder) checkPending() error {
	if len(d.pending) > maxPending {
		n := len(d.pending)
		d.pending = nil
		return &DecodeError{Reason: "no row separator in stream", Bytes: n}
	}
	return nil
}

// ParseRows splits a block of complete text rows. Lines that do not have
// exactly nine fields are not rows and are skipped; rows with nine fields
// where any field is not a non-negative integer decode to all zeros.
func ParseRows(body []byte) []Row {
	lines := bytes.Split(body, []byte(rowSeparator))
	rows := make([]Row, 0, len(lines))
	for _, line := range lines {
		fields := bytes.Split(line, []byte(fieldSeparator))
		if len(fields) != protocol.MaxChannels {
			continue
		}
		rows = append(rows, parseFields(fields))
	}
	return rows
}

func parseFields(fields [][]byte) Row {
	var row Row
	for i, f := range fields {
		if !isDigits(f) {
			return Row{}
		}
		v, err := strconv.ParseUint(string(f), 10, 16)
		if err != nil {
			return Row{}
		}
		row.Raw[i] = uint16(v)
	}
	row.Valid = true
	return row
}

func isDigits(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// FormatRow renders a row in the serial text protocol (including CRLF)
func FormatRow(r Row) []byte {
	var buf bytes.Buffer
	for i, v := range r.Raw {
		if i > 0 {
			buf.WriteString(fieldSeparator)
		}
		buf.WriteString(strconv.FormatUint(uint64(v), 10))
	}
	buf.WriteString(rowSeparator)
	return buf.Bytes()
}

// RecordCount returns the number of binary records in a blob
func RecordCount(blob []byte) (int, error) {
	if len(blob)%protocol.RecordSize != 0 {
		return 0, &DecodeError{
			Reason: fmt.Sprintf("length is not a multiple of %d", protocol.RecordSize),
			Bytes:  len(blob),
		}
	}
	return len(blob) / protocol.RecordSize, nil
}

// RecordAt decodes record i of a binary blob by direct offset
func RecordAt(blob []byte, i int) Row {
	off := i * protocol.RecordSize
	var row Row
	for ch := 0; ch < protocol.MaxChannels; ch++ {
		row.Raw[ch] = binary.LittleEndian.Uint16(blob[off+2*ch:])
	}
	row.Valid = true
	return row
}

// DecodeRecords decodes every record of a binary slice
func DecodeRecords(blob []byte) ([]Row, error) {
	n, err := RecordCount(blob)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = RecordAt(blob, i)
	}
	return rows, nil
}

// AppendRecord encodes a row as a binary record
func AppendRecord(dst []byte, r Row) []byte {
	for _, v := range r.Raw {
		dst = binary.LittleEndian.AppendUint16(dst, v)
	}
	return dst
}
