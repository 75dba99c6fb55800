package advances

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
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
	ListAdvances(ctx context.Context) ([]model.AdvancePayment, error)
	CreateAdvance(ctx context.Context, in model.AdvanceInput) (*model.AdvancePayment, error)
	UpdateAdvance(ctx context.Context, id string, in model.AdvanceInput) (*model.AdvancePayment, error)
	DeleteAdvance(ctx context.Context, id string) error
}

type advanceMode int

const (
	modeList advanceMode = iota
	modeSearch
	modeForm
	modeConfirmDelete
)

var sortFields = []string{"date", "amount", "recipient", "status"}

type formBindings struct {
	recipient string
	amount    string
	date      string
	purpose   string
	status    string
	confirm   bool
}

type advancesLoadedMsg struct {
	advances []model.AdvancePayment
	err      error
}

type advanceSavedMsg struct {
	advance *model.AdvancePayment
	isNew   bool
	err     error
}

type advanceDeletedMsg struct {
	id  string
	err error
}

// Model is the Bubble Tea model for advance payments.
type Model struct {
	mode        advanceMode
	backend     Backend
	keys        *keys.KeyMap
	role        model.Role
	advances    []model.AdvancePayment
	query       string
	sort        view.SortState
	searchInput textinput.Model
	selectedIdx int
	editingID   string
	deletingID  string
	isNew       bool
	form        *huh.Form
	confirmForm *huh.Form
	fb          *formBindings
	loading     bool
	saving      bool
	loadErr     string
	spinner     spinner.Model
	now         func() time.Time
	width       int
	height      int
}

// New creates a new advances model.
func New(b Backend, k *keys.KeyMap, width, height int) Model {
	si := textinput.New()
	si.Placeholder = "search recipient, purpose or status..."
	si.Prompt = "/ "
	si.Width = width - 4

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		mode:        modeList,
		backend:     b,
		keys:        k,
		role:        model.RoleViewer,
		sort:        view.SortState{Fields: sortFields, Desc: true},
		searchInput: si,
		fb:          &formBindings{},
		loading:     true,
		spinner:     sp,
		now:         time.Now,
		width:       width,
		height:      height,
	}
}

// Init loads advances from the backend.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

// Reload refreshes the list and shows the loading indicator.
func (m *Model) Reload() tea.Cmd {
	m.loading = true
	return tea.Batch(m.spinner.Tick, m.load())
}

// SetRole controls whether create, edit and delete are offered.
func (m *Model) SetRole(role model.Role) {
	m.role = role
}

// Capturing reports whether keystrokes belong to an input or form.
func (m Model) Capturing() bool {
	return m.mode != modeList
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m.updateActiveForm(msg)

	case spinner.TickMsg:
		if !m.loading && !m.saving {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case advancesLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.loadErr = msg.err.Error()
			return m, ui.Failure("Could not load advances", msg.err, m.role)
		}
		m.loadErr = ""
		m.advances = msg.advances
		m.clampSelection()
		return m, nil

	case advanceSavedMsg:
		m.saving = false
		m.mode = modeList
		if msg.err != nil {
			return m, ui.Failure("Advance not saved", msg.err, m.role)
		}
		m.advances = view.Replace(m.advances, *msg.advance, advanceID)
		if msg.isNew {
			return m, ui.Success("Advance created", msg.advance.Recipient)
		}
		return m, ui.Success("Advance updated", msg.advance.Recipient)

	case advanceDeletedMsg:
		m.saving = false
		m.mode = modeList
		if msg.err != nil {
			return m, ui.Failure("Advance not deleted", msg.err, m.role)
		}
		m.advances = view.Remove(m.advances, msg.id, advanceID)
		m.clampSelection()
		return m, ui.Success("Advance deleted", "")

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateActiveForm(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.mode {
	case modeList:
		return m.handleListKey(msg)
	case modeSearch:
		return m.handleSearchKey(msg)
	case modeForm:
		return m.updateForm(msg)
	case modeConfirmDelete:
		return m.updateConfirm(msg)
	}
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.mode = modeList
		m.query = strings.TrimSpace(m.searchInput.Value())
		m.selectedIdx = 0
		m.searchInput.Blur()
		return m, nil
	case "esc":
		m.mode = modeList
		m.query = ""
		m.searchInput.Reset()
		m.searchInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m Model) handleListKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	visible := m.Visible()

	switch {
	case key.Matches(msg, m.keys.Down):
		if len(visible) > 0 {
			m.selectedIdx = (m.selectedIdx + 1) % len(visible)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(visible) > 0 {
			m.selectedIdx--
			if m.selectedIdx < 0 {
				m.selectedIdx = len(visible) - 1
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearch
		m.searchInput.SetValue(m.query)
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.Back):
		if m.query != "" {
			m.query = ""
			m.searchInput.Reset()
		}
		return m, nil

	case key.Matches(msg, m.keys.CycleSort):
		m.sort = m.sort.Next()
		return m, nil

	case key.Matches(msg, m.keys.ReverseSort):
		m.sort = m.sort.Toggle()
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		reload := m.Reload()
		return m, reload
	}

	if !m.role.IsAdmin() {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.New):
		m.isNew = true
		m.editingID = ""
		*m.fb = formBindings{
			date:   m.now().Format(validate.DateLayout),
			status: model.AdvancePending,
		}
		m.form = m.buildForm()
		m.mode = modeForm
		return m, m.form.Init()

	case key.Matches(msg, m.keys.Edit):
		a, ok := m.Selected()
		if !ok {
			return m, nil
		}
		m.isNew = false
		m.editingID = a.ID
		*m.fb = formBindings{
			recipient: a.Recipient,
			amount:    fmt.Sprintf("%.2f", a.Amount),
			date:      a.Date,
			purpose:   a.Purpose,
			status:    a.Status,
		}
		m.form = m.buildForm()
		m.mode = modeForm
		return m, m.form.Init()

	case key.Matches(msg, m.keys.Delete):
		a, ok := m.Selected()
		if !ok {
			return m, nil
		}
		m.deletingID = a.ID
		m.fb.confirm = false
		m.confirmForm = m.buildConfirmForm(a)
		m.mode = modeConfirmDelete
		return m, m.confirmForm.Init()
	}
	return m, nil
}

func (m Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Recipient").
				Placeholder("Contractor or supplier").
				Value(&m.fb.recipient).
				Validate(validate.Required("recipient")),
			huh.NewInput().
				Title("Amount").
				Placeholder("15,000.00").
				Value(&m.fb.amount).
				Validate(validate.Amount),
			huh.NewInput().
				Title("Date").
				Placeholder(validate.DateLayout).
				Value(&m.fb.date).
				Validate(validate.Date),
			huh.NewText().
				Title("Purpose").
				Placeholder("What the advance covers").
				Value(&m.fb.purpose),
			huh.NewSelect[string]().
				Title("Status").
				Options(
					huh.NewOption("Pending", model.AdvancePending),
					huh.NewOption("Settled", model.AdvanceSettled),
				).
				Value(&m.fb.status),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
}

func (m Model) buildConfirmForm(a model.AdvancePayment) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete the advance to %q?", a.Recipient)).
				Description(fmt.Sprintf("%s on %s", view.Amount(a.Amount), view.Date(a.Date))).
				Affirmative("Yes, delete").
				Negative("Cancel").
				Value(&m.fb.confirm),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}
	if m.form.State == huh.StateCompleted {
		m.saving = true
		return m, tea.Batch(m.spinner.Tick, m.save())
	}
	if m.form.State == huh.StateAborted {
		m.mode = modeList
		return m, nil
	}
	return m, cmd
}

func (m Model) updateConfirm(msg tea.Msg) (Model, tea.Cmd) {
	if m.confirmForm == nil {
		return m, nil
	}
	mdl, cmd := m.confirmForm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.confirmForm = f
	}
	if m.confirmForm.State == huh.StateCompleted {
		if m.fb.confirm {
			m.saving = true
			return m, tea.Batch(m.spinner.Tick, m.deleteAdvance(m.deletingID))
		}
		m.mode = modeList
		return m, nil
	}
	if m.confirmForm.State == huh.StateAborted {
		m.mode = modeList
		return m, nil
	}
	return m, cmd
}

func (m Model) updateActiveForm(msg tea.Msg) (Model, tea.Cmd) {
	switch m.mode {
	case modeForm:
		return m.updateForm(msg)
	case modeConfirmDelete:
		return m.updateConfirm(msg)
	}
	return m, nil
}

// Visible returns the advances after search and sort.
func (m Model) Visible() []model.AdvancePayment {
	found := view.Search(m.advances, m.query, func(a model.AdvancePayment) []string {
		return []string{a.Recipient, a.Purpose, a.Status}
	})
	return view.Sort(found, lessBy(m.sort.Field()), m.sort.Desc)
}

// Selected returns the highlighted advance.
func (m Model) Selected() (model.AdvancePayment, bool) {
	visible := m.Visible()
	if m.selectedIdx < 0 || m.selectedIdx >= len(visible) {
		return model.AdvancePayment{}, false
	}
	return visible[m.selectedIdx], true
}

func lessBy(field string) func(a, b model.AdvancePayment) bool {
	switch field {
	case "amount":
		return func(a, b model.AdvancePayment) bool { return a.Amount < b.Amount }
	case "recipient":
		return func(a, b model.AdvancePayment) bool {
			return strings.ToLower(a.Recipient) < strings.ToLower(b.Recipient)
		}
	case "status":
		return func(a, b model.AdvancePayment) bool { return a.Status < b.Status }
	default:
		return func(a, b model.AdvancePayment) bool { return a.Date < b.Date }
	}
}

func (m *Model) clampSelection() {
	n := len(m.Visible())
	if m.selectedIdx >= n {
		m.selectedIdx = n - 1
	}
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
}

// View renders the advances screen.
func (m Model) View() string {
	switch m.mode {
	case modeForm:
		return m.viewForm(m.form)
	case modeConfirmDelete:
		return m.viewForm(m.confirmForm)
	default:
		return m.viewList()
	}
}

func (m Model) viewList() string {
	var b strings.Builder

	b.WriteString(theme.TitleStyle.Render("Advance payments"))
	b.WriteString("\n")

	if m.mode == modeSearch {
		b.WriteString(m.searchInput.View())
		b.WriteString("\n")
	} else if m.query != "" {
		b.WriteString(theme.HelpStyle.Render(fmt.Sprintf("filter: %q (esc to clear)", m.query)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	visible := m.Visible()
	switch {
	case m.loading && len(m.advances) == 0:
		b.WriteString(m.spinner.View() + " Loading advances...")
	case m.loadErr != "" && len(m.advances) == 0:
		b.WriteString(theme.ErrorStyle.Render(m.loadErr))
	case len(visible) == 0 && m.query != "":
		b.WriteString(theme.EmptyStyle.Render("No advances match your search."))
	case len(visible) == 0:
		b.WriteString(theme.EmptyStyle.Render("No advance payments recorded yet."))
	default:
		total := 0.0
		for i, a := range visible {
			total += a.Amount
			label := fmt.Sprintf("%-12s %-24s %14s  %s",
				view.Date(a.Date),
				view.Truncate(a.Recipient, 24),
				view.Amount(a.Amount),
				theme.AdvanceStatusStyle(a.Status).Render(a.Status),
			)
			if a.Purpose != "" {
				label += "  " + theme.HelpStyle.Render(view.Truncate(a.Purpose, 40))
			}
			if i == m.selectedIdx {
				b.WriteString(theme.SelectedItemStyle.Render(label))
			} else {
				b.WriteString(theme.ListItemStyle.Render(label))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(theme.HelpStyle.Render(fmt.Sprintf(
			"%d advances · total %s · sorted by %s", len(visible), view.Amount(total), m.sort.Label(),
		)))
	}

	if m.saving {
		b.WriteString("\n" + m.spinner.View() + " Saving...")
	}

	b.WriteString("\n\n")
	hints := "/ search | tab sort | s reverse | r refresh"
	if m.role.IsAdmin() {
		hints = "n new | e edit | d delete | " + hints
	}
	b.WriteString(theme.HelpStyle.Render(hints))

	return lipgloss.NewStyle().Padding(1, 2).Width(m.width).Render(b.String())
}

func (m Model) viewForm(f *huh.Form) string {
	if f == nil {
		return ""
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(f.View())
}

// SetSize updates dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.searchInput.Width = width - 4
}

func (m Model) load() tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		list, err := b.ListAdvances(context.Background())
		return advancesLoadedMsg{advances: list, err: err}
	}
}

func (m Model) save() tea.Cmd {
	b := m.backend
	fb := *m.fb
	editID := m.editingID
	isNew := m.isNew
	return func() tea.Msg {
		amount, err := validate.ParseAmount(fb.amount)
		if err != nil {
			return advanceSavedMsg{err: err, isNew: isNew}
		}
		in := model.AdvanceInput{
			Recipient: strings.TrimSpace(fb.recipient),
			Amount:    amount,
			Date:      strings.TrimSpace(fb.date),
			Purpose:   strings.TrimSpace(fb.purpose),
			Status:    fb.status,
		}

		var saved *model.AdvancePayment
		if isNew {
			saved, err = b.CreateAdvance(context.Background(), in)
		} else {
			saved, err = b.UpdateAdvance(context.Background(), editID, in)
		}
		return advanceSavedMsg{advance: saved, isNew: isNew, err: err}
	}
}

func (m Model) deleteAdvance(id string) tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		err := b.DeleteAdvance(context.Background(), id)
		return advanceDeletedMsg{id: id, err: err}
	}
}

func advanceID(a model.AdvancePayment) string { return a.ID }
