package failures

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

const byteOrderMark = "\ufeff"

// Reader yields header-keyed records from a CSV stream, in file order.
type Reader struct {
	csv    *csv.Reader
	header []string
	row    int
}

// NewReader consumes the header line of r. A stream without a header is an error.
func NewReader(r io.Reader) (*Reader, error) {
	reader := csv.NewReader(r)
	// Short rows are tolerated, their trailing columns are simply absent.
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("CSV file has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], byteOrderMark)
	}
	return &Reader{csv: reader, header: header}, nil
}

// Header returns the column names in file order.
func (r *Reader) Header() []string {
	return r.header
}

// Row is the 1-based number of the data row most recently returned by Next.
func (r *Reader) Row() int {
	return r.row
}

// Next returns the next record, or io.EOF once the stream is exhausted.
// Cells beyond the header are dropped.
func (r *Reader) Next() (map[string]string, error) {
	record, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read CSV row %d: %w", r.row+1, err)
	}
	r.row++
	fields := make(map[string]string, len(r.header))
	for i, value := range record {
		if i >= len(r.header) {
			break
		}
		fields[r.header[i]] = value
	}
	return fields, nil
}
