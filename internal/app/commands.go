package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/ui"
)

// executeCommand runs a command palette entry.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch cmd {
	case "files":
		m.screen = ScreenFiles
	case "advances":
		m.screen = ScreenAdvances
	case "costs":
		m.screen = ScreenCosts
	case "reports":
		m.screen = ScreenReports
	case "notifications":
		m.screen = ScreenNotifications
	case "settings":
		m.screen = ScreenSettings
	case "refresh":
		return m.reloadActive()
	case "mark all read":
		n := m.notifier
		return func() tea.Msg {
			n.MarkAllAsRead(context.Background())
			return nil
		}
	case "dismiss toasts":
		m.toasts.DismissAll()
	case "logout":
		return m.logout("")
	case "quit":
		m.notifier.Stop()
		return tea.Quit
	default:
		return ui.Toast(model.NotificationWarning, "Unknown command", cmd)
	}
	return nil
}

func (m *Model) reloadActive() tea.Cmd {
	switch m.screen {
	case ScreenFiles:
		return m.filesView.Reload()
	case ScreenAdvances:
		return m.advancesView.Reload()
	case ScreenCosts:
		return m.costsView.Reload()
	case ScreenReports:
		return m.reportsView.Reload()
	case ScreenNotifications:
		return m.notifView.Reload()
	case ScreenSettings:
		return m.settingsView.Reload()
	}
	return nil
}
