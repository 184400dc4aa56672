package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// OutputFormat selects how a command result is rendered.
type OutputFormat string

const (
	// FormatText is plain text output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is indented JSON output.
	FormatJSON OutputFormat = "json"
	// FormatCSV is CSV output for results with a tabular shape.
	FormatCSV OutputFormat = "csv"
)

// Formatter renders one command result.
type Formatter interface {
	Format(data any) ([]byte, error)
	FormatTo(w io.Writer, data any) error
}

// NewFormatter returns the formatter for format. Unknown formats fall
// back to plain text.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatCSV:
		return &CSVFormatter{}
	default:
		return &TextFormatter{}
	}
}

// TextFormatter renders the result with its native string form. Commands
// with richer text output write their own renderer and bypass it.
type TextFormatter struct{}

func (f *TextFormatter) Format(data any) ([]byte, error) {
	return fmt.Appendf(nil, "%v\n", data), nil
}

func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	_, err := fmt.Fprintf(w, "%v\n", data)
	return err
}

// JSONFormatter renders the result as JSON for scripting.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) Format(data any) ([]byte, error) {
	if f.Indent {
		return json.MarshalIndent(data, "", "  ")
	}
	return json.Marshal(data)
}

func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// CSVMarshaler is implemented by command results that can render as a
// single CSV table.
type CSVMarshaler interface {
	// CSVHeader returns the column names.
	CSVHeader() []string
	// CSVRows returns the data rows, one slice per record.
	CSVRows() [][]string
}

// CSVFormatter renders results that implement CSVMarshaler. Results
// without a natural tabular shape reject the format instead of guessing
// one.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.FormatTo(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *CSVFormatter) FormatTo(w io.Writer, data any) error {
	table, ok := data.(CSVMarshaler)
	if !ok {
		return fmt.Errorf("%T does not support CSV output", data)
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(table.CSVHeader()); err != nil {
		return err
	}
	for _, row := range table.CSVRows() {
		if err := csvWriter.Write(row); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}
