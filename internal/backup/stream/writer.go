// Package stream reads and writes JSONL entity dumps for backup archives.
package stream

import (
	"io"

	"encoding/json/v2"
)

// Writer streams entities as JSONL.
type Writer struct {
	w     io.Writer
	count int
}

// NewWriter creates a JSONL writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes a single entity as a JSON line.
func (w *Writer) Write(entity any) error {
	if err := json.MarshalWrite(w.w, entity); err != nil {
		return err
	}
	// Add newline for JSONL format
	if _, err := w.w.Write([]byte{'\n'}); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns entities written so far.
func (w *Writer) Count() int {
	return w.count
}
