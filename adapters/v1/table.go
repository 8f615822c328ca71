package v1

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/internal/tools"
)

const maxTagsWidth = 40

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	deleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e01e5a")).Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

// RenderPlan writes one row per plan entry
func RenderPlan(w io.Writer, plan domain.Plan) error {
	rows := make([][]string, 0, len(plan.Entries))
	for _, e := range plan.Entries {
		rows = append(rows, entryRow(e))
	}
	t := newTable("REPOSITORY", "DIGEST", "TAGS", "PUSHED", "DECISION", "REASON", "FILTER").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 4 && row >= 0 && row < len(rows) && rows[row][4] == domain.Delete.String():
				return deleteStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// RenderResults writes one row per plan entry with its apply outcome
func RenderResults(w io.Writer, plan domain.Plan, results []domain.DeletionResult) error {
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		if i >= len(plan.Entries) || r.Outcome == domain.OutcomeSkipped {
			continue
		}
		outcome := r.Outcome.String()
		if r.AlreadyAbsent {
			outcome += " (already absent)"
		}
		rows = append(rows, []string{
			r.ID.Repository,
			tools.ShortDigest(r.ID.Digest),
			tools.JoinTruncated(plan.Entries[i].Image.Tags, ",", maxTagsWidth),
			outcome,
			r.Reason,
		})
	}
	t := newTable("REPOSITORY", "DIGEST", "TAGS", "OUTCOME", "REASON").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// RenderSummary writes the counts, per repository figures, failures and warnings of a run
func RenderSummary(w io.Writer, s domain.Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", s.Title, s.Registry)
	fmt.Fprintf(&b, "images: %d, keep: %d, delete: %d\n", s.Entries, s.ByDecision[domain.Keep], s.ByDecision[domain.Delete])
	for _, r := range domain.Reasons {
		if n := s.ByReason[r]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", r, n)
		}
	}
	if s.Applied {
		fmt.Fprintf(&b, "deleted: %d, failed: %d, skipped: %d\n", s.Deleted, s.Failed, s.Skipped)
	}
	if len(s.Repositories) > 0 {
		rows := make([][]string, 0, len(s.Repositories))
		tags, images := 0, 0
		for _, r := range s.Repositories {
			rows = append(rows, []string{r.Repository, fmt.Sprint(r.Tags), fmt.Sprint(r.Images)})
			tags += r.Tags
			images += r.Images
		}
		rows = append(rows, []string{"Total", fmt.Sprint(tags), fmt.Sprint(images)})
		t := newTable("REPO", "TAGS", "TOTAL").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		b.WriteString(t.String())
		b.WriteString("\n")
	}
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "failed: %s: %s\n", f.ID, f.Reason)
	}
	for _, warn := range s.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", formatWarning(warn))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WritePlanJSON writes the plan as indented JSON. The output holds no run specific data.
func WritePlanJSON(w io.Writer, plan domain.Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

func entryRow(e domain.PlanEntry) []string {
	filter := ""
	if f, ok := e.Verdict.Filter(); ok {
		filter = fmt.Sprintf("#%d %s", f.Index, f.Pattern)
	}
	tags := make([]string, len(e.Image.Tags))
	copy(tags, e.Image.Tags)
	sort.Strings(tags)
	pushed := ""
	if !e.Image.PushedAt.IsZero() {
		pushed = e.Image.PushedAt.UTC().Format("2006-01-02")
	}
	return []string{
		e.Image.ID.Repository,
		tools.ShortDigest(e.Image.ID.Digest),
		tools.JoinTruncated(tags, ",", maxTagsWidth),
		pushed,
		e.Decision().String(),
		e.Verdict.Reason().String(),
		filter,
	}
}

func formatWarning(w domain.Warning) string {
	if w.Source != "" {
		return fmt.Sprintf("[%s/%s] %s", w.Target, w.Source, w.Message)
	}
	return fmt.Sprintf("[%s] %s", w.Target, w.Message)
}
