// Package output formats CLI results as tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// Format is an output format name.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format name. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

func (f Format) String() string {
	return string(f)
}

// Printer writes command results to out in one format.
type Printer struct {
	out    io.Writer
	format Format
	ok     *color.Color
	fail   *color.Color
}

// NewPrinter creates a Printer. When useColor is false, status lines are plain.
func NewPrinter(out io.Writer, format Format, useColor bool) *Printer {
	ok := color.New(color.FgGreen)
	fail := color.New(color.FgRed)
	if !useColor {
		ok.DisableColor()
		fail.DisableColor()
	} else {
		ok.EnableColor()
		fail.EnableColor()
	}
	return &Printer{out: out, format: format, ok: ok, fail: fail}
}

// Format returns the printer's format.
func (p *Printer) Format() Format {
	return p.format
}

// Print renders data. Table format needs a TableRenderer and falls back to
// JSON for anything else.
func (p *Printer) Print(data any) error {
	switch p.format {
	case FormatTable:
		if r, ok := data.(TableRenderer); ok {
			return PrintTable(p.out, r)
		}
		return PrintJSON(p.out, data)
	case FormatJSON:
		return PrintJSON(p.out, data)
	case FormatYAML:
		return PrintYAML(p.out, data)
	default:
		return fmt.Errorf("unknown format: %s", p.format)
	}
}

// Success prints a status line in green.
func (p *Printer) Success(format string, args ...any) {
	_, _ = p.ok.Fprintf(p.out, format+"\n", args...)
}

// Error prints a status line in red.
func (p *Printer) Error(format string, args ...any) {
	_, _ = p.fail.Fprintf(p.out, format+"\n", args...)
}

// PrintJSON writes data as indented JSON.
func PrintJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// PrintYAML writes data as YAML.
func PrintYAML(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}
