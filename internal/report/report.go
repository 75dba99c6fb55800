// Package report aggregates cost data and renders terminal bar charts for
// the dashboard.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/theme"
	"github.com/nhle/costdesk/internal/view"
)

const uncategorized = "Uncategorized"

// Summarize builds a summary from raw records. It is used when the
// backend summary is unavailable and to total a filtered cost listing.
func Summarize(costs []model.Cost, advances []model.AdvancePayment) model.ReportSummary {
	var s model.ReportSummary

	byCategory := map[string]float64{}
	byMonth := map[string]float64{}
	for _, c := range costs {
		s.TotalCost += c.Amount

		name := c.CategoryName
		if name == "" {
			name = uncategorized
		}
		byCategory[name] += c.Amount

		if len(c.Date) >= 7 {
			byMonth[c.Date[:7]] += c.Amount
		}
	}
	for _, a := range advances {
		s.TotalAdvances += a.Amount
	}

	for name, total := range byCategory {
		s.ByCategory = append(s.ByCategory, model.CategoryTotal{Category: name, Total: total})
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		if s.ByCategory[i].Total != s.ByCategory[j].Total {
			return s.ByCategory[i].Total > s.ByCategory[j].Total
		}
		return s.ByCategory[i].Category < s.ByCategory[j].Category
	})

	for month, total := range byMonth {
		s.ByMonth = append(s.ByMonth, model.MonthTotal{Month: month, Total: total})
	}
	sort.Slice(s.ByMonth, func(i, j int) bool { return s.ByMonth[i].Month < s.ByMonth[j].Month })

	return s
}

// Bar is one labelled value in a chart.
type Bar struct {
	Label string
	Value float64
}

// CategoryBars converts category totals to bars, keeping their order.
func CategoryBars(totals []model.CategoryTotal) []Bar {
	bars := make([]Bar, len(totals))
	for i, t := range totals {
		bars[i] = Bar{Label: t.Category, Value: t.Total}
	}
	return bars
}

// MonthBars converts month totals to bars, keeping their order.
func MonthBars(totals []model.MonthTotal) []Bar {
	bars := make([]Bar, len(totals))
	for i, t := range totals {
		bars[i] = Bar{Label: t.Month, Value: t.Total}
	}
	return bars
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	labelStyle = lipgloss.NewStyle().Foreground(theme.ColorGray)
	valueStyle = lipgloss.NewStyle().Foreground(theme.ColorWhite)
	emptyStyle = lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true)
)

// BarChart renders horizontal bars scaled to the largest value so the
// whole chart fits in width columns.
func BarChart(title string, bars []Bar, width int, color lipgloss.TerminalColor) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	if len(bars) == 0 {
		b.WriteString(emptyStyle.Render("No data for this period."))
		return b.String()
	}

	labelWidth, valueWidth := 0, 0
	maxValue := 0.0
	for _, bar := range bars {
		labelWidth = max(labelWidth, lipgloss.Width(bar.Label))
		valueWidth = max(valueWidth, len(view.Amount(bar.Value)))
		maxValue = math.Max(maxValue, bar.Value)
	}
	labelWidth = min(labelWidth, 20)

	barWidth := width - labelWidth - valueWidth - 4
	if barWidth < 5 {
		barWidth = 5
	}

	fill := lipgloss.NewStyle().Foreground(color)
	for _, bar := range bars {
		n := 0
		if maxValue > 0 && bar.Value > 0 {
			n = int(math.Round(bar.Value / maxValue * float64(barWidth)))
			n = max(n, 1)
		}

		label := view.Truncate(bar.Label, labelWidth)
		fmt.Fprintf(&b, "%s %s%s %s\n",
			labelStyle.Render(padRight(label, labelWidth)),
			fill.Render(strings.Repeat("█", n)),
			strings.Repeat(" ", barWidth-n),
			valueStyle.Render(fmt.Sprintf("%*s", valueWidth, view.Amount(bar.Value))),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Totals renders the headline figures.
func Totals(s model.ReportSummary) string {
	card := theme.BorderStyle.Padding(0, 2)
	cost := card.Render(labelStyle.Render("Total cost") + "\n" +
		titleStyle.Render(view.Amount(s.TotalCost)))
	adv := card.Render(labelStyle.Render("Total advances") + "\n" +
		titleStyle.Render(view.Amount(s.TotalAdvances)))
	return lipgloss.JoinHorizontal(lipgloss.Top, cost, " ", adv)
}

func padRight(s string, n int) string {
	if w := lipgloss.Width(s); w < n {
		return s + strings.Repeat(" ", n-w)
	}
	return s
}
