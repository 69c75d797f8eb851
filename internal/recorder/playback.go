package recorder

import (
	"fmt"

	"github.com/spf13/afero"

	"myostack-collector/internal/frame"
	"myostack-collector/internal/protocol"
)

// FileFormatError reports a playback file that is not a whole number of
// records
type FileFormatError struct {
	Path   string
	Size   int64
	Reason string
}

func (e *FileFormatError) Error() string {
	return fmt.Sprintf("invalid recording %s (%d bytes): %s", e.Path, e.Size, e.Reason)
}

// Playback is a binary log held in memory
type Playback struct {
	Path    string
	blob    []byte
	records int
}

// LoadPlayback reads a whole binary log. The sample count is the file
// length divided by the record size.
func LoadPlayback(fs afero.Fs, path string) (*Playback, error) {
	blob, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	if len(blob) == 0 {
		return nil, &FileFormatError{Path: path, Reason: "empty file"}
	}
	n, err := frame.RecordCount(blob)
	if err != nil {
		return nil, &FileFormatError{
			Path:   path,
			Size:   int64(len(blob)),
			Reason: fmt.Sprintf("length is not a multiple of %d bytes", protocol.RecordSize),
		}
	}
	return &Playback{Path: path, blob: blob, records: n}, nil
}

// Len returns the number of records (loadDataLen)
func (p *Playback) Len() int { return p.records }

// Row decodes record i
func (p *Playback) Row(i int) frame.Row {
	return frame.RecordAt(p.blob, i)
}

// Rows decodes records [from, to), clamped to the file
func (p *Playback) Rows(from, to int) []frame.Row {
	if from < 0 {
		from = 0
	}
	if to > p.records {
		to = p.records
	}
	if from >= to {
		return nil
	}
	rows := make([]frame.Row, 0, to-from)
	for i := from; i < to; i++ {
		rows = append(rows, frame.RecordAt(p.blob, i))
	}
	return rows
}
