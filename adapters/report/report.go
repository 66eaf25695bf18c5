// Package report renders a sweep outcome as markdown, or as a standalone HTML
// page converted from that markdown.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"episweep/domain/core"
	"episweep/domain/series"
	"episweep/domain/sweep"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// SweepSummary is everything a report shows about one sweep invocation.
type SweepSummary struct {
	SweepID    core.ID
	GridName   string
	Records    []sweep.CellRecord
	NotStarted []sweep.GridPoint
	Runtime    time.Duration
	Curves     []*series.Curve
}

func (s SweepSummary) byStatus(status sweep.CellStatus) []sweep.CellRecord {
	var out []sweep.CellRecord
	for _, r := range s.Records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Markdown renders the summary. Failed cells come first with their error
// kind and reason; executed and skipped cells are listed after.
func Markdown(s SweepSummary) []byte {
	var b bytes.Buffer
	title := "Sweep report"
	if s.GridName != "" {
		title += ": " + s.GridName
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	executed := s.byStatus(sweep.CellExecuted)
	skipped := s.byStatus(sweep.CellSkipped)
	failed := s.byStatus(sweep.CellFailed)

	if s.SweepID != "" || len(s.Records) > 0 {
		fmt.Fprintf(&b, "- Sweep: `%s`\n", s.SweepID)
		fmt.Fprintf(&b, "- Cells: %d\n", len(s.Records)+len(s.NotStarted))
		fmt.Fprintf(&b, "- Executed: %d\n", len(executed))
		fmt.Fprintf(&b, "- Skipped (already complete): %d\n", len(skipped))
		fmt.Fprintf(&b, "- Failed: %d\n", len(failed))
		if len(s.NotStarted) > 0 {
			fmt.Fprintf(&b, "- Not started: %d\n", len(s.NotStarted))
		}
		if s.Runtime > 0 {
			fmt.Fprintf(&b, "- Runtime: %s\n", s.Runtime.Round(time.Millisecond))
		}
		b.WriteString("\n")
	}

	if len(failed) > 0 {
		b.WriteString("## Failed cells\n\n")
		b.WriteString("| Cell | Kind | Reason |\n|---|---|---|\n")
		for _, r := range failed {
			fmt.Fprintf(&b, "| `%s` | %s | %s |\n", r.Key(), r.ErrorKind, escapeCell(r.Error))
		}
		b.WriteString("\n")
	}

	writeCellTable(&b, "Executed cells", executed)
	writeCellTable(&b, "Skipped cells", skipped)

	if len(s.NotStarted) > 0 {
		b.WriteString("## Not started\n\n")
		for _, p := range s.NotStarted {
			fmt.Fprintf(&b, "- `%s`\n", p.Key())
		}
		b.WriteString("\n")
	}

	for _, c := range s.Curves {
		fmt.Fprintf(&b, "## Final infected: %s\n\n", c.Name())
		b.WriteString("| R | mean % | median % |\n|---|---|---|\n")
		for _, p := range c.Points {
			fmt.Fprintf(&b, "| %.1f | %.3f | %.3f |\n", p.R, p.MeanPct, p.MedianPct)
		}
		b.WriteString("\n")
	}
	return b.Bytes()
}

func writeCellTable(b *bytes.Buffer, heading string, records []sweep.CellRecord) {
	if len(records) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	b.WriteString("| Cell | Arm | Adoption % | R | Seed | Duration |\n|---|---|---|---|---|---|\n")
	for _, r := range records {
		p := r.Point
		fmt.Fprintf(b, "| `%s` | %s | %d | %.1f | %d | %s |\n",
			r.Key(), p.Arm, p.AdoptionPct, p.InfectiousRate(), p.Seed, r.Duration.Round(time.Millisecond))
	}
	b.WriteString("\n")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

// HTML converts the markdown report into a complete HTML page.
func HTML(s SweepSummary) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: "episweep report",
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML(Markdown(s), p, renderer)
}

// WriteFile writes the report as HTML when path ends in .html or .htm and as
// markdown otherwise.
func WriteFile(path string, s SweepSummary) error {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		data = HTML(s)
	default:
		data = Markdown(s)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
