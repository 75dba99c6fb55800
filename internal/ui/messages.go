package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/costdesk/internal/api"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/toast"
)

// ToastMsg asks the root model to show a toast.
type ToastMsg struct {
	Options toast.Options
}

// SessionExpiredMsg is emitted when the backend rejects the token. The
// root model logs out and returns to the login screen.
type SessionExpiredMsg struct{}

// Toast returns a command that emits a ToastMsg.
func Toast(typ model.NotificationType, title, description string) tea.Cmd {
	return func() tea.Msg {
		return ToastMsg{Options: toast.Options{Title: title, Description: description, Type: typ}}
	}
}

// Success returns a command showing a success toast.
func Success(title, description string) tea.Cmd {
	return Toast(model.NotificationSuccess, title, description)
}

// Failure turns err into the right follow-up: a session reset for 401s,
// otherwise an error toast carrying the user-facing message for role.
func Failure(title string, err error, role model.Role) tea.Cmd {
	if api.IsUnauthorized(err) {
		return tea.Batch(
			Toast(model.NotificationError, title, api.SessionExpiredMessage),
			func() tea.Msg { return SessionExpiredMsg{} },
		)
	}
	return Toast(model.NotificationError, title, api.UserMessage(err, role))
}

// FormWidth clamps a form to a readable width inside the content area.
func FormWidth(width int) int {
	w := width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

// FormHeight leaves room around a form inside the content area.
func FormHeight(height int) int {
	h := height - 4
	if h < 10 {
		h = 10
	}
	return h
}
