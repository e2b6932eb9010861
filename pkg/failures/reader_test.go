package failures

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func readAll(t *testing.T, r *Reader) []map[string]string {
	t.Helper()
	var rows []map[string]string
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		rows = append(rows, row)
	}
}

func TestReader(t *testing.T) {
	testCases := []struct {
		name           string
		input          string
		expectedHeader []string
		expectedRows   []map[string]string
	}{
		{
			name:           "header and rows",
			input:          "Failed test,Arch,Error message\npkg::A,x86_64,boom\npkg::B,arm64,\"multi\nline\"\n",
			expectedHeader: []string{"Failed test", "Arch", "Error message"},
			expectedRows: []map[string]string{
				{"Failed test": "pkg::A", "Arch": "x86_64", "Error message": "boom"},
				{"Failed test": "pkg::B", "Arch": "arm64", "Error message": "multi\nline"},
			},
		},
		{
			name:           "byte order mark is stripped from the first column",
			input:          "\ufeffFailed test,Arch\nx,y\n",
			expectedHeader: []string{"Failed test", "Arch"},
			expectedRows:   []map[string]string{{"Failed test": "x", "Arch": "y"}},
		},
		{
			name:           "short rows leave trailing columns absent",
			input:          "Failed test,Arch,Error message\nonly-test\n",
			expectedHeader: []string{"Failed test", "Arch", "Error message"},
			expectedRows:   []map[string]string{{"Failed test": "only-test"}},
		},
		{
			name:           "long rows drop extra cells",
			input:          "Failed test\na,b,c\n",
			expectedHeader: []string{"Failed test"},
			expectedRows:   []map[string]string{{"Failed test": "a"}},
		},
		{
			name:           "header only",
			input:          "Failed test,Arch\n",
			expectedHeader: []string{"Failed test", "Arch"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := NewReader(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.expectedHeader, r.Header()); diff != "" {
				t.Errorf("unexpected header: %s", diff)
			}
			rows := readAll(t, r)
			if diff := cmp.Diff(tc.expectedRows, rows); diff != "" {
				t.Errorf("unexpected rows: %s", diff)
			}
			if r.Row() != len(tc.expectedRows) {
				t.Errorf("expected row counter %d, got %d", len(tc.expectedRows), r.Row())
			}
		})
	}
}

func TestReaderEmptyInput(t *testing.T) {
	if _, err := NewReader(strings.NewReader("")); err == nil {
		t.Fatal("expected an error for a CSV without header")
	}
}
