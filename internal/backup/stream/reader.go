package stream

import (
	"bufio"
	"bytes"
	"io"
	"iter"

	"encoding/json/v2"
)

// Reader streams entities from a JSONL dump.
type Reader[T any] struct {
	scanner *bufio.Scanner
}

// NewReader creates a streaming reader for type T.
func NewReader[T any](r io.Reader) *Reader[T] {
	scanner := bufio.NewScanner(r)
	// Chapter bodies can be long lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Reader[T]{scanner: scanner}
}

// All returns an iterator over all entities in the dump.
func (r *Reader[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for r.scanner.Scan() {
			line := r.scanner.Bytes()
			if len(line) == 0 {
				continue // Skip empty lines
			}

			var entity T
			if err := json.UnmarshalRead(bytes.NewReader(line), &entity); err != nil {
				var zero T
				if !yield(zero, err) {
					return
				}
				continue // Try next line on parse error
			}
			if !yield(entity, nil) {
				return
			}
		}

		if err := r.scanner.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}
