package frame

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDecodeFullRows(t *testing.T) {
	d := NewDecoder()
	chunk := strings.Repeat("100;100;100;100;100;100;100;100;100\r\n", 50)

	rows, err := d.Decode([]byte(chunk))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(rows) != 50 {
		t.Fatalf("expected 50 rows, got %d", len(rows))
	}
	for i, r := range rows {
		if !r.Valid {
			t.Fatalf("row %d unexpectedly invalid", i)
		}
		for ch, v := range r.Raw {
			if v != 100 {
				t.Fatalf("row %d channel %d = %d, want 100", i, ch, v)
			}
		}
	}
}

func TestDecodeGarbledRowBecomesZeros(t *testing.T) {
	rows := ParseRows([]byte("1;2;3;4;5;6;7;8;9\r\n12;xx;3;4;5;6;7;8;9\r\n9;8;7;6;5;4;3;2;1\r\n"))
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows (garbled row keeps its slot), got %d", len(rows))
	}
	if rows[1].Valid {
		t.Error("garbled row should be marked invalid")
	}
	for ch, v := range rows[1].Raw {
		if v != 0 {
			t.Errorf("garbled row channel %d = %d, want 0", ch, v)
		}
	}
	if !rows[0].Valid || rows[0].Raw[8] != 9 {
		t.Errorf("unexpected first row %+v", rows[0])
	}
}

func TestParseRowsSkipsWrongArity(t *testing.T) {
	rows := ParseRows([]byte("1;2;3\r\n\r\n1;2;3;4;5;6;7;8;9;10\r\n"))
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestParseRowsRejectsNegativeAndOverflow(t *testing.T) {
	rows := ParseRows([]byte("-1;2;3;4;5;6;7;8;9\r\n70000;2;3;4;5;6;7;8;9\r\n"))
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for i, r := range rows {
		if r.Valid {
			t.Errorf("row %d should be invalid", i)
		}
	}
}

func TestDecodeStitchesPartialRows(t *testing.T) {
	d := NewDecoder()
	full := "1;2;3;4;5;6;7;8;9\r\n"

	// The first two calls parse their chunk whole.
	for i := 0; i < 2; i++ {
		rows, err := d.Decode([]byte(full + full))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("call %d: expected 2 rows, got %d", i+1, len(rows))
		}
	}

	// Third call ends mid-row.
	rows, err := d.Decode([]byte(full + "11;12;13;14"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 complete row, got %d", len(rows))
	}
	if !bytes.HasSuffix(d.Leftover(), []byte("11;12;13;14")) {
		t.Fatalf("unexpected leftover %q", d.Leftover())
	}

	// Fourth call completes it.
	rows, err = d.Decode([]byte(";15;16;17;18;19\r\n" + full))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	want := [9]uint16{11, 12, 13, 14, 15, 16, 17, 18, 19}
	if rows[0].Raw != want || !rows[0].Valid {
		t.Errorf("stitched row = %+v, want %v", rows[0], want)
	}
}

func TestDecodeChunkWithoutSeparatorIsCarried(t *testing.T) {
	d := NewDecoder()
	d.Decode([]byte("x\r\n"))
	d.Decode([]byte("x\r\n"))

	rows, err := d.Decode([]byte("1;2;3;4;5"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
	rows, err = d.Decode([]byte(";6;7;8;9\r\n"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(rows) != 1 || !rows[0].Valid {
		t.Fatalf("expected one valid stitched row, got %+v", rows)
	}
}

func TestDecodeGarbageStreamFails(t *testing.T) {
	d := NewDecoder()
	d.Decode([]byte("ab"))
	d.Decode([]byte("ab"))

	garbage := bytes.Repeat([]byte{0x55}, 4096)
	var err error
	for i := 0; i < 20 && err == nil; i++ {
		_, err = d.Decode(garbage)
	}
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if len(d.Leftover()) != 0 {
		t.Error("leftover should be dropped after a decode error")
	}
}

func TestBinaryRecords(t *testing.T) {
	var blob []byte
	for i := 0; i < 10; i++ {
		var r Row
		for ch := range r.Raw {
			r.Raw[ch] = uint16(i*100 + ch)
		}
		blob = AppendRecord(blob, r)
	}
	if len(blob) != 180 {
		t.Fatalf("expected 180 bytes, got %d", len(blob))
	}

	n, err := RecordCount(blob)
	if err != nil || n != 10 {
		t.Fatalf("RecordCount = %d, %v; want 10", n, err)
	}

	r := RecordAt(blob, 7)
	if r.Raw[3] != 703 {
		t.Errorf("RecordAt(7)[3] = %d, want 703", r.Raw[3])
	}

	rows, err := DecodeRecords(blob)
	if err != nil {
		t.Fatalf("DecodeRecords failed: %v", err)
	}
	if rows[9].Raw[8] != 908 {
		t.Errorf("last record channel 9 = %d, want 908", rows[9].Raw[8])
	}

	if _, err := DecodeRecords(blob[:17]); err == nil {
		t.Error("expected DecodeError for truncated record")
	}
}

func TestFormatRowParsesBack(t *testing.T) {
	r := Row{Raw: [9]uint16{1, 22, 333, 4444, 5, 6, 7, 8, 65535}, Valid: true}
	rows := ParseRows(FormatRow(r))
	if len(rows) != 1 || rows[0] != r {
		t.Fatalf("FormatRow output did not parse back: %+v", rows)
	}
}

func TestProtocolUnknownVersion(t *testing.T) {
	if _, err := Protocol("v1.1"); err != nil {
		t.Fatalf("Protocol(v1.1) failed: %v", err)
	}
	_, err := Protocol("v3.0")
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Errorf("Protocol(v3.0) error = %v, want DecodeError", err)
	}
}
