// Package export writes the decoder's callback-delivered frames and events
// out to files: CSV of main/GPS/slow frames, a GPX track, an event journal,
// and a statistics summary.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
)

// FrameCSVWriter writes one CSV file per frame type, one row per
// onFrameReady call, with the active frame definition's field names as the
// header row.
type FrameCSVWriter struct {
	w      *csv.Writer
	closer io.Closer
	row    []string
}

// NewFrameCSVWriter creates outputPath and writes the header row.
func NewFrameCSVWriter(outputPath string, fieldNames []string) (*FrameCSVWriter, error) {
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"valid"}, fieldNames...)); err != nil {
		f.Close()
		return nil, err
	}

	return &FrameCSVWriter{w: w, closer: f, row: make([]string, len(fieldNames)+1)}, nil
}

// WriteFrame appends one decoded frame as a CSV row. values is borrowed only
// for the duration of the call.
func (fw *FrameCSVWriter) WriteFrame(valid bool, values []int64) error {
	if len(fw.row) != len(values)+1 {
		fw.row = make([]string, len(values)+1)
	}
	fw.row[0] = strconv.FormatBool(valid)
	for i, v := range values {
		fw.row[i+1] = strconv.FormatInt(v, 10)
	}
	return fw.w.Write(fw.row)
}

// Close flushes buffered rows and closes the underlying file.
func (fw *FrameCSVWriter) Close() error {
	fw.w.Flush()
	if err := fw.w.Error(); err != nil {
		fw.closer.Close()
		return err
	}
	return fw.closer.Close()
}
