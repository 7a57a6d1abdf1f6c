package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"marketpulse/internal/domain"
)

var (
	advanceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	declineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	neutralStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func classStyle(c domain.Classification) lipgloss.Style {
	switch c {
	case domain.Advance:
		return advanceStyle
	case domain.Decline:
		return declineStyle
	default:
		return neutralStyle
	}
}

// RenderTable renders rows as a bordered terminal table with the change
// column coloured by classification.
func RenderTable(rows []domain.Row) string {
	data := make([][]string, len(rows))
	for i, r := range rows {
		data[i] = []string{
			r.Instrument.Symbol,
			FormatPrice(r.Quote.Price),
			FormatPrice(r.Quote.Reference),
			FormatChange(r.Change),
			string(r.Class),
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(neutralStyle).
		Headers("SYMBOL", "PRICE", "REF", "CHANGE", "CLASS").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col >= 3 && row >= 0 && row < len(rows) {
				return classStyle(rows[row].Class).Padding(0, 1)
			}
			if col == 1 || col == 2 {
				return cellStyle.Align(lipgloss.Right)
			}
			return cellStyle
		})
	return t.String()
}

// Summary is the one-line breadth headline.
func Summary(r domain.Report) string {
	return fmt.Sprintf("%s %s  %s %s  %s %s  A/D %s  (%s rows, %d skipped)",
		advanceStyle.Render("▲"), FormatInt(r.Advances),
		declineStyle.Render("▼"), FormatInt(r.Declines),
		neutralStyle.Render("="), FormatInt(r.Neutral),
		FormatRatio(r.Ratio), FormatInt(r.Total()), len(r.Skipped))
}

// RenderSnapshot renders a full snapshot: warnings, summary and table.
func RenderSnapshot(s domain.Snapshot, sortMode int) string {
	var b strings.Builder
	for _, w := range s.Warnings {
		b.WriteString(warnStyle.Render("warning: "+w) + "\n")
	}
	fmt.Fprintf(&b, "%s  universe=%s sort=%s\n", Summary(s.Report), s.Universe.Source, SortModeLabel(sortMode))
	if !s.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "as of %s\n", s.CompletedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if s.Report.Empty() {
		b.WriteString("no quotes available\n")
		return b.String()
	}
	b.WriteString(RenderTable(SortRows(s.Report.Rows, sortMode)))
	b.WriteByte('\n')
	return b.String()
}
