package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
	FormatPlain OutputFormat = "plain"
)

// NullDisplay is how SQL NULL renders in table output.
const NullDisplay = "∅"

// Output handles formatted output
type Output struct {
	format  OutputFormat
	writer  io.Writer
	noColor bool
	quiet   bool
}

// NewOutput creates a new Output instance
func NewOutput(format OutputFormat, noColor, quiet bool) *Output {
	return &Output{
		format:  format,
		writer:  os.Stdout,
		noColor: noColor,
		quiet:   quiet,
	}
}

// SetWriter sets the output writer
func (o *Output) SetWriter(w io.Writer) {
	o.writer = w
}

// Format returns the configured output format
func (o *Output) Format() OutputFormat {
	return o.format
}

// Print prints a message
func (o *Output) Print(msg string) {
	if o.quiet {
		return
	}
	fmt.Fprintln(o.writer, msg)
}

// Printf prints a formatted message
func (o *Output) Printf(format string, args ...interface{}) {
	if o.quiet {
		return
	}
	fmt.Fprintf(o.writer, format+"\n", args...)
}

// Success prints a success message
func (o *Output) Success(msg string) {
	if o.quiet {
		return
	}
	if o.noColor {
		fmt.Fprintf(o.writer, "%s %s\n", IconSuccess, msg)
	} else {
		fmt.Fprintln(o.writer, Success.Render(IconSuccess)+" "+msg)
	}
}

// Error prints an error message
func (o *Output) Error(msg string) {
	if o.noColor {
		fmt.Fprintf(os.Stderr, "%s %s\n", IconError, msg)
	} else {
		fmt.Fprintln(os.Stderr, Error.Render(IconError)+" "+Error.Render(msg))
	}
}

// Warning prints a warning message
func (o *Output) Warning(msg string) {
	if o.quiet {
		return
	}
	if o.noColor {
		fmt.Fprintf(o.writer, "%s %s\n", IconWarning, msg)
	} else {
		fmt.Fprintln(o.writer, Warning.Render(IconWarning)+" "+Warning.Render(msg))
	}
}

// Info prints an info message
func (o *Output) Info(msg string) {
	if o.quiet {
		return
	}
	if o.noColor {
		fmt.Fprintf(o.writer, "%s %s\n", IconInfo, msg)
	} else {
		fmt.Fprintln(o.writer, Info.Render(IconInfo)+" "+msg)
	}
}

// JSON outputs data as JSON
func (o *Output) JSON(data interface{}) error {
	enc := json.NewEncoder(o.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// YAML outputs data as YAML
func (o *Output) YAML(data interface{}) error {
	enc := yaml.NewEncoder(o.writer)
	enc.SetIndent(2)
	return enc.Encode(data)
}

// IsInteractive returns true if the output is to a terminal
func (o *Output) IsInteractive() bool {
	if f, ok := o.writer.(*os.File); ok {
		stat, _ := f.Stat()
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// ResultTable renders a query result set. NULL values display as NullDisplay
// in table format and as nulls in json/yaml.
type ResultTable struct {
	headers []string
	rows    [][]*string
	output  *Output
}

// NewResultTable creates a table for the given column names
func NewResultTable(output *Output, headers ...string) *ResultTable {
	return &ResultTable{
		headers: headers,
		output:  output,
	}
}

// AddRow adds a result row; nil cells are NULL
func (t *ResultTable) AddRow(cols ...*string) {
	t.rows = append(t.rows, cols)
}

// Render renders the table in the configured format
func (t *ResultTable) Render() {
	switch t.output.format {
	case FormatJSON:
		_ = t.output.JSON(t.structured())
		return
	case FormatYAML:
		_ = t.output.YAML(t.structured())
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, col := range row {
			if i < len(widths) && len(t.cell(col)) > widths[i] {
				widths[i] = len(t.cell(col))
			}
		}
	}

	headerCells := make([]string, len(t.headers))
	for i, h := range t.headers {
		if t.output.noColor {
			headerCells[i] = padRight(h, widths[i])
		} else {
			headerCells[i] = HeaderStyle.Width(widths[i]).Render(h)
		}
	}
	fmt.Fprintln(t.output.writer, strings.Join(headerCells, "  "))

	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, col := range row {
			width := widths[0]
			if i < len(widths) {
				width = widths[i]
			}
			cells[i] = padRight(t.cell(col), width)
		}
		fmt.Fprintln(t.output.writer, strings.Join(cells, "  "))
	}
}

func (t *ResultTable) cell(v *string) string {
	if v == nil {
		return NullDisplay
	}
	return *v
}

func (t *ResultTable) structured() []map[string]any {
	data := make([]map[string]any, len(t.rows))
	for i, row := range t.rows {
		m := make(map[string]any)
		for j, col := range row {
			if j >= len(t.headers) {
				continue
			}
			if col == nil {
				m[t.headers[j]] = nil
			} else {
				m[t.headers[j]] = *col
			}
		}
		data[i] = m
	}
	return data
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
