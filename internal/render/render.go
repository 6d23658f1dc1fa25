// Package render writes command results as a table, JSON, YAML or TSV.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// Format represents an output format
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTSV   Format = "tsv"
)

// ParseFormat validates a --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML, FormatTSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json, yaml or tsv)", s)
	}
}

// Options for rendering
type Options struct {
	Format Format
	// Color styles table headers and status cells.
	Color bool
}

// Renderer handles output rendering
type Renderer struct {
	writer io.Writer
	opts   Options

	header lipgloss.Style
	muted  lipgloss.Style
	good   lipgloss.Style
	bad    lipgloss.Style
}

// NewRenderer creates a new renderer
func NewRenderer(writer io.Writer, opts Options) *Renderer {
	r := &Renderer{
		writer: writer,
		opts:   opts,
		header: lipgloss.NewStyle(),
		muted:  lipgloss.NewStyle(),
		good:   lipgloss.NewStyle(),
		bad:    lipgloss.NewStyle(),
	}
	if opts.Color {
		r.header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
		r.muted = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		r.good = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
		r.bad = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	}
	return r
}

// Format returns the configured format.
func (r *Renderer) Format() Format {
	if r.opts.Format == "" {
		return FormatTable
	}
	return r.opts.Format
}

// Render writes data in a structured format, or as a table built from
// headers and rows.
func (r *Renderer) Render(data any, headers []string, rows [][]string) error {
	switch r.Format() {
	case FormatJSON:
		return r.RenderJSON(data)
	case FormatYAML:
		return r.RenderYAML(data)
	case FormatTSV:
		return r.RenderTSV(headers, rows)
	default:
		return r.RenderTable(headers, rows)
	}
}

// RenderJSON renders data as JSON
func (r *Renderer) RenderJSON(data interface{}) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// RenderYAML renders data as YAML
func (r *Renderer) RenderYAML(data interface{}) error {
	encoder := yaml.NewEncoder(r.writer)
	defer encoder.Close()
	return encoder.Encode(data)
}

// RenderTSV renders data as tab-separated values
func (r *Renderer) RenderTSV(headers []string, rows [][]string) error {
	if _, err := fmt.Fprintln(r.writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(r.writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return nil
}

// RenderTable renders data as a formatted table
func (r *Renderer) RenderTable(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(r.writer, r.muted.Render("(none)"))
		return err
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	r.renderTableRow(headers, widths, func(int, string) lipgloss.Style { return r.header })
	r.renderTableSeparator(widths)
	for _, row := range rows {
		r.renderTableRow(row, widths, r.cellStyle)
	}
	return nil
}

// cellStyle colors status words.
func (r *Renderer) cellStyle(_ int, cell string) lipgloss.Style {
	switch cell {
	case "completed", "migrated":
		return r.good
	case "failed", "error":
		return r.bad
	case "existing", "skipped", "running":
		return r.muted
	}
	return lipgloss.NewStyle()
}

func (r *Renderer) renderTableRow(cells []string, widths []int, style func(int, string) lipgloss.Style) {
	for i, cell := range cells {
		if i >= len(widths) {
			break
		}
		pad := widths[i] - lipgloss.Width(cell)
		fmt.Fprint(r.writer, style(i, cell).Render(cell))
		if i < len(cells)-1 {
			fmt.Fprint(r.writer, strings.Repeat(" ", pad+2))
		}
	}
	fmt.Fprintln(r.writer)
}

func (r *Renderer) renderTableSeparator(widths []int) {
	for i, width := range widths {
		fmt.Fprint(r.writer, r.muted.Render(strings.Repeat("-", width)))
		if i < len(widths)-1 {
			fmt.Fprint(r.writer, "  ")
		}
	}
	fmt.Fprintln(r.writer)
}
