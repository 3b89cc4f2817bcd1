// Package wire reads and writes run records as a stream of protobuf Structs,
// one compact JSON object per line.
package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/qkdsim/bb84/bb84"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// A Writer frames records onto an underlying stream. It is not safe for
// concurrent use.
type Writer struct {
	w    io.Writer
	opts protojson.MarshalOptions
	n    int
}

// NewWriter returns a Writer that appends records to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes rec as a single line.
func (w *Writer) Write(rec bb84.Record) error {
	s, err := structpb.NewStruct(rec)
	if err != nil {
		return fmt.Errorf("encoding record %d: %w", w.n, err)
	}
	b, err := w.opts.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding record %d: %w", w.n, err)
	}
	// Compact protojson output never contains a newline.
	b = append(b, '\n')
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	w.n++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.n
}

// A Reader decodes records written by a Writer.
type Reader struct {
	r    *bufio.Reader
	line int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read returns the next record, or io.EOF once the stream is exhausted. Blank
// lines are skipped. Numbers come back as float64.
func (r *Reader) Read() (bb84.Record, error) {
	for {
		b, err := r.r.ReadBytes('\n')
		if len(b) == 0 && err != nil {
			return nil, err
		}
		r.line++
		b = bytes.TrimSpace(b)
		if len(b) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}
		var s structpb.Struct
		if uerr := protojson.Unmarshal(b, &s); uerr != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, uerr)
		}
		return bb84.Record(s.AsMap()), nil
	}
}

// ReadAll reads records until io.EOF.
func (r *Reader) ReadAll() ([]bb84.Record, error) {
	var recs []bb84.Record
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}
