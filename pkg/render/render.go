// Package render prints archive listings, coverage summaries, deltas and
// trends as terminal tables or JSON/YAML documents.
package render

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sumatoshi-tech/covarchive/pkg/persist"
)

// ErrUnknownFormat is returned by ParseFormat for unknown names.
var ErrUnknownFormat = errors.New("unknown output format")

// Format selects how results are written.
type Format string

// Output formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses "table", "json" or "yaml".
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

const percent = 100

// Renderer writes results to one writer.
type Renderer struct {
	w      io.Writer
	format Format
	color  bool
}

// New creates a renderer. Colour is only used for tables.
func New(w io.Writer, format Format, colored bool) *Renderer {
	if format == "" {
		format = FormatTable
	}

	return &Renderer{w: w, format: format, color: colored}
}

// Format returns the output format.
func (r *Renderer) Format() Format {
	return r.format
}

// encode writes v as a JSON or YAML document.
func (r *Renderer) encode(v any) error {
	var codec persist.Codec = persist.NewJSONCodec()
	if r.format == FormatYAML {
		codec = persist.NewYAMLCodec()
	}

	err := codec.Encode(r.w, v)
	if err != nil {
		return fmt.Errorf("render %s: %w", r.format, err)
	}

	return nil
}

func (r *Renderer) newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(r.w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Format.Header = text.FormatDefault
	tbl.Style().Format.Footer = text.FormatDefault

	return tbl
}

func (r *Renderer) paint(attr color.Attribute, s string) string {
	if !r.color {
		return s
	}

	c := color.New(attr)
	c.EnableColor()

	return c.Sprint(s)
}

// signed colours a value green when positive and red when negative.
func (r *Renderer) signed(v float64, s string) string {
	switch {
	case v > 0:
		return r.paint(color.FgGreen, s)
	case v < 0:
		return r.paint(color.FgRed, s)
	default:
		return s
	}
}

func pct(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*percent)
}

func signedInt(v int) string {
	return fmt.Sprintf("%+d", v)
}

func signedPoints(v float64) string {
	return fmt.Sprintf("%+.2f", v)
}
