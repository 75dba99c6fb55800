package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/toast"
)

func TestContentHeight(t *testing.T) {
	l := NewLayout(100, 30)
	assert.Equal(t, 27, l.ContentHeight())
	assert.Equal(t, 100, l.ContentWidth())
}

func TestRenderHeaderFillsWidth(t *testing.T) {
	l := NewLayout(60, 20)
	out := l.RenderHeader("costdesk", "3 unread")
	assert.Equal(t, 60, lipgloss.Width(out))
	assert.Contains(t, out, "costdesk")
	assert.Contains(t, out, "3 unread")
}

func TestRenderToastsOrder(t *testing.T) {
	l := NewLayout(80, 24)
	assert.Empty(t, l.RenderToasts(nil))

	out := l.RenderToasts([]toast.Toast{
		{Title: "First", Type: model.NotificationInfo},
		{Title: "Second", Description: "saved", Type: model.NotificationSuccess},
	})
	assert.Less(t, strings.Index(out, "First"), strings.Index(out, "Second"))
	assert.Contains(t, out, "saved")
}

func TestRenderWithFrameHeight(t *testing.T) {
	l := NewLayout(40, 12)
	toasts := l.RenderToasts([]toast.Toast{{Title: "Hi"}})
	out := l.RenderWithFrame("header", "tabs", "content", toasts, "status")

	assert.Equal(t, 12, lipgloss.Height(out))
}
