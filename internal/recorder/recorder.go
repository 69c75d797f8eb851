// Package recorder writes live rows to a binary log with a text mirror and
// loads binary logs back for playback.
package recorder

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"myostack-collector/internal/frame"
	"myostack-collector/internal/protocol"
)

const (
	BinaryExt = ".bin"
	TextExt   = ".txt"

	dateLayout = "2006.01.02"
	timeLayout = "15:04:05"
)

// Metadata describes a recording session; it heads the text mirror
type Metadata struct {
	SessionID  uuid.UUID
	Started    time.Time
	Protocol   protocol.Version
	SampleRate float64
}

// Sink is an open recording: a binary log of raw records and a text
// mirror of timestamps and scaled values, opened and closed together.
type Sink struct {
	bin     afero.File
	txt     *bufio.Writer
	txtFile afero.File

	binPath string
	txtPath string
	meta    Metadata
	params  protocol.Params
	rows    uint64
	scratch []byte
}

// Create opens <dir>/<prefix>_<timestamp>_<id>.bin and the matching .txt
func Create(fs afero.Fs, dir, prefix string, params protocol.Params, started time.Time) (*Sink, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	meta := Metadata{
		SessionID:  uuid.New(),
		Started:    started,
		Protocol:   params.Version,
		SampleRate: params.SampleRate,
	}
	base := filepath.Join(dir, fmt.Sprintf("%s_%s_%s", prefix, started.Format("20060102_150405"), meta.SessionID.String()[:8]))

	bin, err := fs.Create(base + BinaryExt)
	if err != nil {
		return nil, fmt.Errorf("failed to create binary log: %w", err)
	}
	txtFile, err := fs.Create(base + TextExt)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to create text mirror: %w", err), bin.Close())
	}

	s := &Sink{
		bin:     bin,
		txt:     bufio.NewWriter(txtFile),
		txtFile: txtFile,
		binPath: base + BinaryExt,
		txtPath: base + TextExt,
		meta:    meta,
		params:  params,
	}
	if err := s.writeHeader(); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to write text header: %w", err), s.Close())
	}
	return s, nil
}

func (s *Sink) writeHeader() error {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", s.meta.Started.Format(dateLayout))
	fmt.Fprintf(&b, "Time: %s\n", s.meta.Started.Format(timeLayout))
	fmt.Fprintf(&b, "Session: %s\n", s.meta.SessionID)
	fmt.Fprintf(&b, "Protocol: %s\n", s.meta.Protocol)
	fmt.Fprintf(&b, "Sample rate: %g Hz\n", s.meta.SampleRate)
	b.WriteString("\ntime")
	for ch := 1; ch <= protocol.MaxChannels; ch++ {
		fmt.Fprintf(&b, " ch%d", ch)
	}
	b.WriteString("\n")
	_, err := s.txt.WriteString(b.String())
	return err
}

// Metadata returns the session description
func (s *Sink) Metadata() Metadata { return s.meta }

// BinaryPath returns the binary log path
func (s *Sink) BinaryPath() string { return s.binPath }

// TextPath returns the text mirror path
func (s *Sink) TextPath() string { return s.txtPath }

// Rows returns the number of rows written
func (s *Sink) Rows() uint64 { return s.rows }

// WriteRows appends rows with their timestamps; gains scale the text
// mirror values per channel (missing entries count as 1).
func (s *Sink) WriteRows(rows []frame.Row, times []float64, gains []float64) error {
	if len(rows) != len(times) {
		return fmt.Errorf("%d rows but %d timestamps", len(rows), len(times))
	}
	if len(rows) == 0 {
		return nil
	}

	s.scratch = s.scratch[:0]
	for _, r := range rows {
		s.scratch = frame.AppendRecord(s.scratch, r)
	}
	if _, err := s.bin.Write(s.scratch); err != nil {
		return fmt.Errorf("failed to write binary log: %w", err)
	}

	for i, r := range rows {
		fmt.Fprintf(s.txt, "%.3f", times[i])
		for ch, raw := range r.Raw {
			v := 0.0
			if r.Valid {
				gain := 1.0
				if ch < len(gains) {
					gain = gains[ch]
				}
				v = s.params.Scale(raw, gain)
			}
			fmt.Fprintf(s.txt, " %g", v)
		}
		if err := s.txt.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write text mirror: %w", err)
		}
	}
	s.rows += uint64(len(rows))
	return nil
}

// Close flushes and closes both files
func (s *Sink) Close() error {
	var err error
	if s.txt != nil {
		err = multierr.Append(err, s.txt.Flush())
		s.txt = nil
	}
	if s.txtFile != nil {
		err = multierr.Append(err, s.txtFile.Close())
		s.txtFile = nil
	}
	if s.bin != nil {
		err = multierr.Append(err, s.bin.Close())
		s.bin = nil
	}
	return err
}

// ReadMetadata parses the header of a text mirror
func ReadMetadata(fs afero.Fs, txtPath string) (*Metadata, error) {
	f, err := fs.Open(txtPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open text mirror: %w", err)
	}
	defer f.Close()

	var meta Metadata
	var date, clock string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch key {
		case "Date":
			date = value
		case "Time":
			clock = value
		case "Session":
			if id, err := uuid.Parse(value); err == nil {
				meta.SessionID = id
			}
		case "Protocol":
			meta.Protocol = protocol.Version(value)
		case "Sample rate":
			fmt.Sscanf(value, "%g Hz", &meta.SampleRate)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if date == "" || clock == "" {
		return nil, &FileFormatError{Path: txtPath, Reason: "missing Date/Time header"}
	}
	started, err := time.ParseInLocation(dateLayout+" "+timeLayout, date+" "+clock, time.Local)
	if err != nil {
		return nil, &FileFormatError{Path: txtPath, Reason: err.Error()}
	}
	meta.Started = started
	return &meta, nil
}

// MirrorPath returns the text mirror path for a binary log path
func MirrorPath(binPath string) string {
	return strings.TrimSuffix(binPath, filepath.Ext(binPath)) + TextExt
}
