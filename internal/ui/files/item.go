package files

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/theme"
	"github.com/nhle/costdesk/internal/view"
)

// FileItem wraps a model.DesignFile so it can be used in a bubbles/list.
type FileItem struct {
	File model.DesignFile
}

// FilterValue returns the string used for list filtering.
func (i FileItem) FilterValue() string { return i.File.Name }

// Title returns the file name.
func (i FileItem) Title() string { return i.File.Name }

// Description returns a short summary line for the list.
func (i FileItem) Description() string {
	parts := []string{
		model.FormatBytes(i.File.Size),
		view.Timestamp(i.File.UploadedAt),
	}
	if i.File.UploadedBy != "" {
		parts = append(parts, i.File.UploadedBy)
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate renders a file as a name line and a detail line.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 1 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

var (
	metaStyle = lipgloss.NewStyle().Foreground(theme.ColorGray)
	descStyle = lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true)
)

// Render draws a single file entry.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	fi, ok := item.(FileItem)
	if !ok {
		return
	}

	width := m.Width() - 4
	name := view.Truncate(fi.File.Name, width)
	detail := fi.Description()
	if fi.File.Description != "" {
		detail += "  " + descStyle.Render(view.Truncate(fi.File.Description, 60))
	}

	style := theme.ListItemStyle
	if index == m.Index() {
		style = theme.SelectedItemStyle
	}
	fmt.Fprint(w, style.Render(name+"\n"+metaStyle.Render(detail)))
}
