package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/costdesk/internal/keys"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/theme"
	"github.com/nhle/costdesk/internal/ui"
	"github.com/nhle/costdesk/internal/validate"
	"github.com/nhle/costdesk/internal/view"
)

// Backend is the subset of the API client used by this view.
type Backend interface {
	GetProfile(ctx context.Context) (*model.Profile, error)
	UpdateProfile(ctx context.Context, p model.Profile) (*model.Profile, error)
	ChangePassword(ctx context.Context, change model.PasswordChange) error
	GetNotificationSettings(ctx context.Context) (*model.NotificationSettings, error)
	UpdateNotificationSettings(ctx context.Context, s model.NotificationSettings) (*model.NotificationSettings, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUserRole(ctx context.Context, id string, role model.Role) (*model.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type settingsMode int

const (
	modeMenu settingsMode = iota
	modeProfile
	modePassword
	modeNotifications
	modeUsers
	modeRole
	modeConfirmDelete
)

type section struct {
	title string
	desc  string
	mode  settingsMode
	admin bool
}

var sections = []section{
	{title: "Profile", desc: "Name, email and phone", mode: modeProfile},
	{title: "Password", desc: "Change your password", mode: modePassword},
	{title: "Notifications", desc: "Delivery preferences", mode: modeNotifications},
	{title: "Users", desc: "Roles and access", mode: modeUsers, admin: true},
}

type formBindings struct {
	fullName string
	email    string
	phone    string

	currentPassword string
	newPassword     string
	confirmPassword string

	alerts []string

	role    string
	confirm bool
}

const (
	alertEmail    = "email"
	alertPush     = "push"
	alertCosts    = "costs"
	alertAdvances = "advances"
)

type profileLoadedMsg struct {
	profile *model.Profile
	err     error
}

type profileSavedMsg struct {
	profile *model.Profile
	err     error
}

type passwordChangedMsg struct {
	err error
}

type notificationSettingsLoadedMsg struct {
	settings *model.NotificationSettings
	err      error
}

type notificationSettingsSavedMsg struct {
	settings *model.NotificationSettings
	err      error
}

type usersLoadedMsg struct {
	users []model.User
	err   error
}

type userSavedMsg struct {
	user *model.User
	err  error
}

type userDeletedMsg struct {
	id  string
	err error
}

// Model is the settings screen.
type Model struct {
	mode     settingsMode
	backend  Backend
	keys     *keys.KeyMap
	role     model.Role
	selfID   string
	menuIdx  int
	userIdx  int
	profile  model.Profile
	notif    model.NotificationSettings
	users    []model.User
	form     *huh.Form
	fb       *formBindings
	targetID string
	loading  bool
	saving   bool
	spinner  spinner.Model
	width    int
	height   int
}

// New creates a new settings model.
func New(b Backend, k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		mode:    modeMenu,
		backend: b,
		keys:    k,
		role:    model.RoleViewer,
		fb:      &formBindings{},
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// Init loads the profile and notification preferences.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadProfile(), m.loadNotificationSettings())
}

// Reload refreshes everything shown on the screen.
func (m *Model) Reload() tea.Cmd {
	cmds := []tea.Cmd{m.loadProfile(), m.loadNotificationSettings()}
	if m.role.IsAdmin() {
		m.loading = true
		cmds = append(cmds, m.spinner.Tick, m.loadUsers())
	}
	return tea.Batch(cmds...)
}

// SetRole controls whether user management is offered.
func (m *Model) SetRole(role model.Role) {
	m.role = role
	m.clampMenu()
}

// SetUser records the signed-in user so they cannot demote or delete
// themselves.
func (m *Model) SetUser(id string) {
	m.selfID = id
}

// Capturing reports whether a form has focus.
func (m Model) Capturing() bool {
	return m.mode != modeMenu && m.mode != modeUsers
}

func (m Model) menu() []section {
	var out []section
	for _, s := range sections {
		if s.admin && !m.role.IsAdmin() {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (m *Model) clampMenu() {
	if n := len(m.menu()); m.menuIdx >= n {
		m.menuIdx = n - 1
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m.updateForm(msg)

	case spinner.TickMsg:
		if !m.loading && !m.saving {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case profileLoadedMsg:
		if msg.err != nil {
			return m, ui.Failure("Could not load profile", msg.err, m.role)
		}
		m.profile = *msg.profile
		return m, nil

	case profileSavedMsg:
		m.saving = false
		m.mode = modeMenu
		if msg.err != nil {
			return m, ui.Failure("Profile not saved", msg.err, m.role)
		}
		m.profile = *msg.profile
		return m, ui.Success("Profile updated", "")

	case passwordChangedMsg:
		m.saving = false
		m.mode = modeMenu
		if msg.err != nil {
			return m, ui.Failure("Password not changed", msg.err, m.role)
		}
		return m, ui.Success("Password changed", "")

	case notificationSettingsLoadedMsg:
		if msg.err != nil {
			return m, ui.Failure("Could not load preferences", msg.err, m.role)
		}
		m.notif = *msg.settings
		return m, nil

	case notificationSettingsSavedMsg:
		m.saving = false
		m.mode = modeMenu
		if msg.err != nil {
			return m, ui.Failure("Preferences not saved", msg.err, m.role)
		}
		m.notif = *msg.settings
		return m, ui.Success("Preferences saved", "")

	case usersLoadedMsg:
		m.loading = false
		if msg.err != nil {
			return m, ui.Failure("Could not load users", msg.err, m.role)
		}
		m.users = msg.users
		m.clampUsers()
		return m, nil

	case userSavedMsg:
		m.saving = false
		m.mode = modeUsers
		if msg.err != nil {
			return m, ui.Failure("Role not changed", msg.err, m.role)
		}
		m.users = view.Replace(m.users, *msg.user, userID)
		return m, ui.Success("Role changed", msg.user.Email)

	case userDeletedMsg:
		m.saving = false
		m.mode = modeUsers
		if msg.err != nil {
			return m, ui.Failure("User not deleted", msg.err, m.role)
		}
		m.users = view.Remove(m.users, msg.id, userID)
		m.clampUsers()
		return m, ui.Success("User deleted", "")

	case tea.KeyMsg:
		switch m.mode {
		case modeMenu:
			return m.handleMenuKey(msg)
		case modeUsers:
			return m.handleUsersKey(msg)
		}
	}

	return m.updateForm(msg)
}

func (m Model) handleMenuKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	menu := m.menu()
	switch {
	case key.Matches(msg, m.keys.Down):
		m.menuIdx = (m.menuIdx + 1) % len(menu)
	case key.Matches(msg, m.keys.Up):
		m.menuIdx--
		if m.menuIdx < 0 {
			m.menuIdx = len(menu) - 1
		}
	case key.Matches(msg, m.keys.Refresh):
		reload := m.Reload()
		return m, reload
	case key.Matches(msg, m.keys.Select):
		return m.open(menu[m.menuIdx].mode)
	}
	return m, nil
}

func (m Model) open(mode settingsMode) (Model, tea.Cmd) {
	switch mode {
	case modeProfile:
		*m.fb = formBindings{
			fullName: m.profile.FullName,
			email:    m.profile.Email,
			phone:    m.profile.Phone,
		}
		m.form = m.profileForm()
	case modePassword:
		*m.fb = formBindings{}
		m.form = m.passwordForm()
	case modeNotifications:
		*m.fb = formBindings{alerts: alertsFrom(m.notif)}
		m.form = m.notificationForm()
	case modeUsers:
		m.mode = modeUsers
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.loadUsers())
	}
	m.mode = mode
	return m, m.form.Init()
}

func (m Model) handleUsersKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.mode = modeMenu
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if len(m.users) > 0 {
			m.userIdx = (m.userIdx + 1) % len(m.users)
		}
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if len(m.users) > 0 {
			m.userIdx--
			if m.userIdx < 0 {
				m.userIdx = len(m.users) - 1
			}
		}
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m, tea.Batch(m.spinner.Tick, m.loadUsers())
	}

	u, ok := m.selectedUser()
	if !ok || !m.role.IsAdmin() {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Edit):
		if u.ID == m.selfID {
			return m, ui.Toast(model.NotificationWarning, "Not allowed", "You cannot change your own role.")
		}
		m.targetID = u.ID
		m.fb.role = string(u.Role)
		m.form = m.roleForm(u)
		m.mode = modeRole
		return m, m.form.Init()

	case key.Matches(msg, m.keys.Delete):
		if u.ID == m.selfID {
			return m, ui.Toast(model.NotificationWarning, "Not allowed", "You cannot delete your own account.")
		}
		m.targetID = u.ID
		m.fb.confirm = false
		m.form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Delete %s?", u.Email)).
					Description("The account loses access immediately.").
					Affirmative("Yes, delete").
					Negative("Cancel").
					Value(&m.fb.confirm),
			),
		).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
		m.mode = modeConfirmDelete
		return m, m.form.Init()
	}
	return m, nil
}

func (m Model) profileForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Full name").
				Value(&m.fb.fullName).
				Validate(validate.Required("full name")),
			huh.NewInput().
				Title("Email").
				Value(&m.fb.email).
				Validate(validate.Email),
			huh.NewInput().
				Title("Phone").
				Placeholder("Optional").
				Value(&m.fb.phone),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
}

func (m Model) passwordForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Current password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.currentPassword).
				Validate(validate.Required("current password")),
			huh.NewInput().
				Title("New password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.newPassword).
				Validate(m.validateNewPassword),
			huh.NewInput().
				Title("Confirm new password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.confirmPassword).
				Validate(validate.Matches(&m.fb.newPassword, "passwords")),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
}

func (m Model) validateNewPassword(s string) error {
	if err := validate.Password(s); err != nil {
		return err
	}
	if s == m.fb.currentPassword {
		return fmt.Errorf("new password must differ from the current one")
	}
	return nil
}

func (m Model) notificationForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Notify me").
				Options(
					huh.NewOption("By email", alertEmail),
					huh.NewOption("In the app", alertPush),
					huh.NewOption("About new costs", alertCosts),
					huh.NewOption("About advance payments", alertAdvances),
				).
				Value(&m.fb.alerts),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
}

func (m Model) roleForm(u model.User) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Role for "+u.Email).
				Options(
					huh.NewOption("Viewer", string(model.RoleViewer)),
					huh.NewOption("Super admin", string(model.RoleSuperAdmin)),
				).
				Value(&m.fb.role),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
}

func alertsFrom(s model.NotificationSettings) []string {
	var out []string
	if s.EmailEnabled {
		out = append(out, alertEmail)
	}
	if s.PushEnabled {
		out = append(out, alertPush)
	}
	if s.CostAlerts {
		out = append(out, alertCosts)
	}
	if s.AdvanceAlerts {
		out = append(out, alertAdvances)
	}
	return out
}

func settingsFrom(alerts []string) model.NotificationSettings {
	var s model.NotificationSettings
	for _, a := range alerts {
		switch a {
		case alertEmail:
			s.EmailEnabled = true
		case alertPush:
			s.PushEnabled = true
		case alertCosts:
			s.CostAlerts = true
		case alertAdvances:
			s.AdvanceAlerts = true
		}
	}
	return s
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || !m.Capturing() {
		return m, nil
	}
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateAborted:
		m.mode = m.parentMode()
		return m, nil
	case huh.StateCompleted:
		return m.submit()
	}
	return m, cmd
}

func (m Model) parentMode() settingsMode {
	if m.mode == modeRole || m.mode == modeConfirmDelete {
		return modeUsers
	}
	return modeMenu
}

func (m Model) submit() (Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.mode {
	case modeProfile:
		cmd = m.saveProfile()
	case modePassword:
		cmd = m.changePassword()
	case modeNotifications:
		cmd = m.saveNotificationSettings()
	case modeRole:
		cmd = m.changeRole(m.targetID, model.Role(m.fb.role))
	case modeConfirmDelete:
		if !m.fb.confirm {
			m.mode = modeUsers
			return m, nil
		}
		cmd = m.deleteUser(m.targetID)
	default:
		return m, nil
	}
	m.saving = true
	return m, tea.Batch(m.spinner.Tick, cmd)
}

func (m Model) selectedUser() (model.User, bool) {
	if m.userIdx < 0 || m.userIdx >= len(m.users) {
		return model.User{}, false
	}
	return m.users[m.userIdx], true
}

func (m *Model) clampUsers() {
	if m.userIdx >= len(m.users) {
		m.userIdx = len(m.users) - 1
	}
	if m.userIdx < 0 {
		m.userIdx = 0
	}
}

// View renders the settings screen.
func (m Model) View() string {
	switch m.mode {
	case modeMenu:
		return m.viewMenu()
	case modeUsers:
		return m.viewUsers()
	}
	if m.form == nil {
		return ""
	}
	out := m.form.View()
	if m.saving {
		out += "\n" + m.spinner.View() + " Saving..."
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(out)
}

func (m Model) viewMenu() string {
	var b strings.Builder
	b.WriteString(theme.TitleStyle.Render("Settings") + "\n\n")

	if m.profile.Email != "" {
		b.WriteString(fmt.Sprintf("%s  %s  %s\n\n",
			m.profile.FullName,
			theme.HelpStyle.Render(m.profile.Email),
			theme.RoleStyle(m.role).Render(string(m.role)),
		))
	}

	for i, s := range m.menu() {
		label := fmt.Sprintf("%-16s %s", s.title, theme.HelpStyle.Render(s.desc))
		if i == m.menuIdx {
			b.WriteString(theme.SelectedItemStyle.Render(label))
		} else {
			b.WriteString(theme.ListItemStyle.Render(label))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n" + theme.HelpStyle.Render("enter open | r refresh"))
	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

func (m Model) viewUsers() string {
	var b strings.Builder
	b.WriteString(theme.TitleStyle.Render("Users") + "\n\n")

	switch {
	case m.loading && len(m.users) == 0:
		b.WriteString(m.spinner.View() + " Loading users...")
	case len(m.users) == 0:
		b.WriteString(theme.EmptyStyle.Render("No users."))
	}

	for i, u := range m.users {
		name := u.FullName
		if u.ID == m.selfID {
			name += " (you)"
		}
		label := fmt.Sprintf("%-24s %-32s %s",
			view.Truncate(name, 24),
			view.Truncate(u.Email, 32),
			theme.RoleStyle(u.Role).Render(string(u.Role)),
		)
		if i == m.userIdx {
			b.WriteString(theme.SelectedItemStyle.Render(label))
		} else {
			b.WriteString(theme.ListItemStyle.Render(label))
		}
		b.WriteString("\n")
	}

	if m.saving {
		b.WriteString("\n" + m.spinner.View() + " Saving...")
	}
	b.WriteString("\n" + theme.HelpStyle.Render("e change role | d delete | r refresh | esc back"))
	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

func (m Model) loadProfile() tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		p, err := b.GetProfile(context.Background())
		return profileLoadedMsg{profile: p, err: err}
	}
}

func (m Model) loadNotificationSettings() tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		s, err := b.GetNotificationSettings(context.Background())
		return notificationSettingsLoadedMsg{settings: s, err: err}
	}
}

func (m Model) loadUsers() tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		users, err := b.ListUsers(context.Background())
		return usersLoadedMsg{users: users, err: err}
	}
}

func (m Model) saveProfile() tea.Cmd {
	b := m.backend
	p := model.Profile{
		FullName: strings.TrimSpace(m.fb.fullName),
		Email:    strings.TrimSpace(m.fb.email),
		Phone:    strings.TrimSpace(m.fb.phone),
	}
	return func() tea.Msg {
		saved, err := b.UpdateProfile(context.Background(), p)
		return profileSavedMsg{profile: saved, err: err}
	}
}

func (m Model) changePassword() tea.Cmd {
	b := m.backend
	change := model.PasswordChange{
		CurrentPassword: m.fb.currentPassword,
		NewPassword:     m.fb.newPassword,
	}
	return func() tea.Msg {
		return passwordChangedMsg{err: b.ChangePassword(context.Background(), change)}
	}
}

func (m Model) saveNotificationSettings() tea.Cmd {
	b := m.backend
	s := settingsFrom(m.fb.alerts)
	return func() tea.Msg {
		saved, err := b.UpdateNotificationSettings(context.Background(), s)
		return notificationSettingsSavedMsg{settings: saved, err: err}
	}
}

func (m Model) changeRole(id string, role model.Role) tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		u, err := b.UpdateUserRole(context.Background(), id, role)
		return userSavedMsg{user: u, err: err}
	}
}

func (m Model) deleteUser(id string) tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		return userDeletedMsg{id: id, err: b.DeleteUser(context.Background(), id)}
	}
}

func userID(u model.User) string { return u.ID }

// SetSize updates the settings view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
