package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"
)

const maxRecordSize = 4 * 1024 * 1024

// Decoder reads records. Lines that are not data lines are skipped.
type Decoder struct {
	sc *bufio.Scanner
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	return &Decoder{sc: sc}
}

// Next returns the next record, or io.EOF when the input ends.
func (d *Decoder) Next() (Record, error) {
	for d.sc.Scan() {
		line := strings.TrimRight(d.sc.Text(), "\r")
		payload, ok := strings.CutPrefix(line, dataPrefix)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return Record{}, fmt.Errorf("decode record: %w", err)
		}
		return rec, nil
	}
	if err := d.sc.Err(); err != nil {
		return Record{}, fmt.Errorf("read records: %w", err)
	}
	return Record{}, io.EOF
}

// Records iterates over the remaining records. It stops after the first
// error; io.EOF is not reported.
func (d *Decoder) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := d.Next()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}
