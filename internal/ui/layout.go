package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/costdesk/internal/theme"
	"github.com/nhle/costdesk/internal/toast"
)

// Layout manages the terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	TabsHeight      int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		TabsHeight:      1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header, tab strip and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.TabsHeight - l.StatusBarHeight
}

// RenderHeader renders the top header bar with a title on the left and
// a status string on the right.
func (l Layout) RenderHeader(title string, status string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(status)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		statusRendered,
	)
}

var (
	tabStyle       = lipgloss.NewStyle().Foreground(theme.ColorGray).Padding(0, 1)
	activeTabStyle = lipgloss.NewStyle().Foreground(theme.ColorBlue).Bold(true).Underline(true).Padding(0, 1)
)

// RenderTabs renders the screen switcher, highlighting active.
func (l Layout) RenderTabs(tabs []string, active int) string {
	parts := make([]string, len(tabs))
	for i, t := range tabs {
		if i == active {
			parts[i] = activeTabStyle.Render(t)
		} else {
			parts[i] = tabStyle.Render(t)
		}
	}
	return lipgloss.NewStyle().MaxWidth(l.Width).Render(strings.Join(parts, ""))
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.StatusBarStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderToasts stacks toasts right-aligned, most recent last.
func (l Layout) RenderToasts(toasts []toast.Toast) string {
	if len(toasts) == 0 {
		return ""
	}

	cards := make([]string, len(toasts))
	for i, t := range toasts {
		body := theme.TypeStyle(t.Type).Render(t.Title)
		if t.Description != "" {
			body += "\n" + t.Description
		}
		cards[i] = theme.ToastStyle(t.Type).Render(body)
	}

	stack := lipgloss.JoinVertical(lipgloss.Right, cards...)
	return lipgloss.PlaceHorizontal(l.Width, lipgloss.Right, stack)
}

// RenderWithFrame composes a full terminal view. Toasts sit between the
// content and the status bar and take their rows from the content.
func (l Layout) RenderWithFrame(
	header string,
	tabs string,
	content string,
	toasts string,
	statusBar string,
) string {
	height := l.ContentHeight()
	if toasts != "" {
		height -= lipgloss.Height(toasts)
	}
	if height < 0 {
		height = 0
	}
	body := lipgloss.NewStyle().Height(height).MaxHeight(height).Render(content)

	parts := []string{header, tabs, body}
	if toasts != "" {
		parts = append(parts, toasts)
	}
	parts = append(parts, statusBar)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
