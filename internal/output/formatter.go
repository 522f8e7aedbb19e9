// Package output provides formatting utilities for CLI output.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Writer renders command results to a destination.
type Writer struct {
	dest io.Writer
}

// NewWriter creates a Writer; a nil dest means stdout.
func NewWriter(dest io.Writer) *Writer {
	if dest == nil {
		dest = os.Stdout
	}
	return &Writer{dest: dest}
}

// WriteLn writes a line of text.
func (w *Writer) WriteLn(s string) error {
	_, err := fmt.Fprintln(w.dest, s)
	return err
}

// WriteTable writes rows aligned under header. Cells containing tabs or
// newlines are flattened to spaces.
func (w *Writer) WriteTable(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w.dest, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(flatten(header), "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(flatten(row), "\t"))
	}
	return tw.Flush()
}

func flatten(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.Join(strings.Fields(c), " ")
	}
	return out
}

// WriteError writes an error message to stderr.
func WriteError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
