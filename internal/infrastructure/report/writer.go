// Package report prints the outcome of a coverage run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/felixgeelhaar/dcov/internal/application"
	"github.com/felixgeelhaar/dcov/internal/domain"
)

type Writer struct{}

func (Writer) Write(w io.Writer, result domain.Result, format application.OutputFormat) error {
	switch format {
	case application.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case application.OutputBrief:
		return writeBrief(w, result)
	case application.OutputText, "":
		return writeText(w, result)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func writeText(w io.Writer, result domain.Result) error {
	colorize := colorEnabled(w)

	if result.Summary != nil && len(result.Summary.Files) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(table.Row{"FILE", "HIT", "FOUND", "COVERAGE"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Name: "FILE", WidthMax: 120, WidthMaxEnforcer: text.WrapSoft},
			{Name: "HIT", Align: text.AlignRight},
			{Name: "FOUND", Align: text.AlignRight},
			{Name: "COVERAGE", Align: text.AlignRight},
		})
		for _, f := range result.Summary.Files {
			t.AppendRow(table.Row{f.File, f.Hit, f.Found, fmt.Sprintf("%.1f%%", f.Percent())})
		}
		t.AppendFooter(table.Row{"TOTAL", result.Summary.Hit, result.Summary.Found, fmt.Sprintf("%.1f%%", result.Summary.Percent())})
		t.SetStyle(table.StyleLight)
		t.Render()
	}

	fmt.Fprintf(w, "\nTests: %d unit, %d functional, %d collected, %d skipped\n",
		len(result.UnitTests), len(result.FunctionalTests), len(result.Collected), len(result.Skipped))
	if len(result.Skipped) > 0 {
		fmt.Fprintln(w, "\nSkipped:")
		for _, s := range result.Skipped {
			fmt.Fprintf(w, "  - %s: %s\n", s.Path, s.Reason)
		}
	}

	artifacts := [][2]string{
		{"collection", result.Collection},
		{"lcov", result.LCOV},
		{"html", result.ReportIndex},
	}
	printed := false
	for _, a := range artifacts {
		if a[1] == "" {
			continue
		}
		if !printed {
			fmt.Fprintln(w, "\nArtifacts:")
			printed = true
		}
		fmt.Fprintf(w, "  %-10s %s\n", a[0], a[1])
	}

	passStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#16A34A")).Bold(true)
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626")).Bold(true)
	status := "SUCCESS"
	style := passStyle
	if !result.Successful {
		status = "FAILED"
		style = failStyle
	}
	if colorize {
		status = style.Render(status)
	}
	line := "\n" + status
	if result.Error != "" {
		line += ": " + result.Error
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

// writeBrief prints a single summary line.
// Format: STATUS | XX.X% lines | N/M tests collected [| skipped: a, b] [| error]
func writeBrief(w io.Writer, result domain.Result) error {
	status := "SUCCESS"
	if !result.Successful {
		status = "FAILED"
	}
	overall := 0.0
	if result.Summary != nil {
		overall = result.Summary.Percent()
	}
	total := len(result.UnitTests) + len(result.FunctionalTests)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s | %.1f%% lines | %d/%d tests collected", status, overall, len(result.Collected), total)
	if len(result.Skipped) > 0 {
		names := make([]string, 0, len(result.Skipped))
		for _, s := range result.Skipped {
			names = append(names, s.Path)
		}
		sb.WriteString(" | skipped: " + strings.Join(names, ", "))
	}
	if result.Error != "" {
		sb.WriteString(" | " + result.Error)
	}
	_, err := fmt.Fprintln(w, sb.String())
	return err
}
