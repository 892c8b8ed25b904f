// package formatter renders tasks, users and analysis reports as terminal tables, plain text or Markdown
package formatter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/repositories"
	"github.com/desertthunder/vqa/internal/shared"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// Format selects how a [Table] is rendered.
type Format int

const (
	FormatTable Format = iota
	FormatPlain
	FormatMarkdown
)

// ParseFormat converts a flag value into a [Format].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table":
		return FormatTable, nil
	case "plain", "tsv", "text":
		return FormatPlain, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return FormatTable, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// DetectFormat picks bordered tables for terminals and tab-separated output for pipes and files.
func DetectFormat(w io.Writer) Format {
	if IsTerminal(w) {
		return FormatTable
	}
	return FormatPlain
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Table is a titled grid of cells. Columns listed in RightAligned are numeric.
type Table struct {
	Title        string
	Headers      []string
	Rows         [][]string
	RightAligned []int
}

// Render draws t in format f.
func (t Table) Render(f Format) string {
	columns := len(t.Headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range t.Headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range t.Rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		for _, n := range t.RightAligned {
			if n == i {
				align = text.AlignRight
			}
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	switch f {
	case FormatPlain:
		return tw.RenderTSV()
	case FormatMarkdown:
		out := tw.RenderMarkdown()
		if t.Title != "" {
			out = fmt.Sprintf("## %s\n\n%s", t.Title, out)
		}
		return out
	default:
		if t.Title != "" {
			tw.SetTitle("%s", t.Title)
		}
		return tw.Render()
	}
}

// Write renders each table to w separated by blank lines.
func Write(w io.Writer, f Format, tables ...Table) error {
	parts := make([]string, 0, len(tables))
	for _, t := range tables {
		if s := t.Render(f); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, "\n\n"))
	return err
}

// Score formats an optional quality score.
func Score(s *float64) string {
	if s == nil {
		return "-"
	}
	return strconv.FormatFloat(*s, 'f', 1, 64)
}

// Age formats how long ago t was relative to now.
func Age(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// TasksTable lists tracked tasks. Failed tasks show their error message.
func TasksTable(list []models.Task, now time.Time) Table {
	t := Table{Title: "Tracked tasks", Headers: []string{"Task", "Type", "Status", "Message", "Result", "Added"}}
	for _, task := range list {
		kind := "single"
		if task.Kind == models.TaskBulk {
			kind = "bulk"
		}
		msg := task.Message
		if task.ErrorMessage != "" {
			msg = task.ErrorMessage
		}
		t.Rows = append(t.Rows, []string{
			task.ID, kind, string(task.Status), orDash(msg), orDash(task.ResultID), Age(task.AddedAt, now),
		})
	}
	return t
}

// UsersTable lists user accounts.
func UsersTable(users []models.User) Table {
	t := Table{Title: "Users", Headers: []string{"ID", "Username", "Name", "Email", "Role", "Dealer", "Branch"}}
	for _, u := range users {
		t.Rows = append(t.Rows, []string{
			u.ID, u.Username, orDash(u.FullName), u.Email, u.Role.Label(), orDash(u.DealerID), orDash(u.BranchID),
		})
	}
	return t
}

// ResultsTable lists analysis results, newest first as returned by the server.
func ResultsTable(results []models.Result) Table {
	t := Table{
		Title:        "Results",
		Headers:      []string{"ID", "Dealer", "Advisor", "Overall", "Label", "Video", "Audio", "Created"},
		RightAligned: []int{3, 5, 6},
	}
	for _, r := range results {
		created := "-"
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		t.Rows = append(t.Rows, []string{
			r.ID, orDash(r.DealerID), orDash(r.ServiceAdvisor), Score(r.OverallQualityScore),
			orDash(r.OverallQualityLabel), Score(r.VideoQualityScore), Score(r.AudioQualityScore), created,
		})
	}
	return t
}

// OverviewTables renders the super-admin overview as a summary, a per-dealer table and the
// quality distribution.
func OverviewTables(o models.Overview) []Table {
	summary := Table{
		Title:        "Overview",
		Headers:      []string{"Metric", "Value"},
		RightAligned: []int{1},
		Rows: [][]string{
			{"Videos analyzed", strconv.Itoa(o.TotalVideosAnalyzed)},
			{"Average quality", strconv.FormatFloat(o.AverageOverallQuality, 'f', 1, 64)},
			{"Dealers", strconv.Itoa(len(o.DealersSummary))},
		},
	}

	dealers := Table{Title: "Dealers", Headers: []string{"Dealer", "Videos", "Avg quality"}, RightAligned: []int{1, 2}}
	for _, d := range o.DealersSummary {
		dealers.Rows = append(dealers.Rows, []string{
			d.DealerID, strconv.Itoa(d.TotalVideos), strconv.FormatFloat(d.AvgOverallQuality, 'f', 1, 64),
		})
	}

	labels := make([]string, 0, len(o.QualityDistribution))
	for label := range o.QualityDistribution {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	dist := Table{Title: "Quality distribution", Headers: []string{"Label", "Videos"}, RightAligned: []int{1}}
	for _, label := range labels {
		dist.Rows = append(dist.Rows, []string{label, strconv.Itoa(o.QualityDistribution[label])})
	}

	return []Table{summary, dealers, dist}
}

// UserStatsTable lists per-user analysis counts for a dealer.
func UserStatsTable(stats []models.UserStat) Table {
	t := Table{Title: "User activity", Headers: []string{"User", "Username", "Videos", "Avg quality"}, RightAligned: []int{2, 3}}
	for _, s := range stats {
		t.Rows = append(t.Rows, []string{
			s.UserID, orDash(s.Username), strconv.Itoa(s.TotalVideos), strconv.FormatFloat(s.AvgOverallQuality, 'f', 1, 64),
		})
	}
	return t
}

// HistoryTable lists the recorded statuses of one task.
func HistoryTable(taskID string, events []repositories.TaskEvent) Table {
	t := Table{Title: "History of " + taskID, Headers: []string{"Observed", "Status", "Message"}}
	for _, ev := range events {
		msg := ev.Message
		if ev.ErrorMessage != "" {
			msg = ev.ErrorMessage
		}
		t.Rows = append(t.Rows, []string{ev.ObservedAt.Local().Format(time.DateTime), string(ev.Status), orDash(msg)})
	}
	return t
}

// ExportToMarkdown renders a report document with a heading followed by each table.
func ExportToMarkdown(title string, tables ...Table) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	for _, t := range tables {
		b.WriteString(t.Render(FormatMarkdown))
		b.WriteString("\n\n")
	}
	return []byte(b.String())
}

// WriteExport writes data to path, creating parent directories.
func WriteExport(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}
