package reports

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/costdesk/internal/api"
	"github.com/nhle/costdesk/internal/keys"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/report"
	"github.com/nhle/costdesk/internal/theme"
	"github.com/nhle/costdesk/internal/ui"
	"github.com/nhle/costdesk/internal/validate"
)

// Backend is the subset of the API client used by this view.
type Backend interface {
	GetReportSummary(ctx context.Context, rng model.ReportRange) (*model.ReportSummary, error)
	ExportReportCSV(ctx context.Context, rng model.ReportRange) ([]byte, error)
	ListCosts(ctx context.Context, filter model.CostFilter) ([]model.Cost, error)
	ListAdvances(ctx context.Context) ([]model.AdvancePayment, error)
}

type formBindings struct {
	from string
	to   string
}

type summaryLoadedMsg struct {
	summary model.ReportSummary
	local   bool
	err     error
}

type exportedMsg struct {
	path string
	err  error
}

// Model is the reports dashboard.
type Model struct {
	backend   Backend
	keys      *keys.KeyMap
	role      model.Role
	summary   model.ReportSummary
	hasData   bool
	local     bool
	rng       model.ReportRange
	form      *huh.Form
	fb        *formBindings
	filtering bool
	loading   bool
	exporting bool
	loadErr   string
	exportDir string
	viewport  viewport.Model
	spinner   spinner.Model
	now       func() time.Time
	width     int
	height    int
}

// New creates a new reports model. CSV exports are written to exportDir.
func New(b Backend, k *keys.KeyMap, exportDir string, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		backend:   b,
		keys:      k,
		role:      model.RoleViewer,
		fb:        &formBindings{},
		loading:   true,
		exportDir: exportDir,
		viewport:  viewport.New(width-4, height-6),
		spinner:   sp,
		now:       time.Now,
		width:     width,
		height:    height,
	}
}

// Init loads the summary.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

// Reload refreshes the summary for the current range.
func (m *Model) Reload() tea.Cmd {
	m.loading = true
	return tea.Batch(m.spinner.Tick, m.load())
}

// SetRole records the role used for error messages.
func (m *Model) SetRole(role model.Role) {
	m.role = role
}

// Capturing reports whether the range form is open.
func (m Model) Capturing() bool {
	return m.filtering
}

// Range returns the active date range.
func (m Model) Range() model.ReportRange {
	return m.rng
}

// Summary returns the loaded summary.
func (m Model) Summary() model.ReportSummary {
	return m.summary
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		if m.filtering {
			return m.updateForm(msg)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading && !m.exporting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case summaryLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.loadErr = msg.err.Error()
			return m, ui.Failure("Could not load report", msg.err, m.role)
		}
		m.loadErr = ""
		m.summary = msg.summary
		m.local = msg.local
		m.hasData = true
		m.viewport.SetContent(m.renderCharts())
		m.viewport.GotoTop()
		return m, nil

	case exportedMsg:
		m.exporting = false
		if msg.err != nil {
			return m, ui.Failure("Export failed", msg.err, m.role)
		}
		return m, ui.Success("Report exported", msg.path)

	case tea.KeyMsg:
		if m.filtering {
			return m.updateForm(msg)
		}
		return m.handleKey(msg)
	}

	if m.filtering {
		return m.updateForm(msg)
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Refresh):
		reload := m.Reload()
		return m, reload

	case key.Matches(msg, m.keys.Filter):
		m.fb.from = m.rng.From
		m.fb.to = m.rng.To
		m.form = m.buildForm()
		m.filtering = true
		return m, m.form.Init()

	case key.Matches(msg, m.keys.Back):
		if m.rng != (model.ReportRange{}) {
			m.rng = model.ReportRange{}
			reload := m.Reload()
			return m, reload
		}
		return m, nil

	case key.Matches(msg, m.keys.Export):
		if m.exporting {
			return m, nil
		}
		m.exporting = true
		return m, tea.Batch(m.spinner.Tick, m.export())
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("From").
				Placeholder("YYYY-MM-DD, blank for any").
				Value(&m.fb.from).
				Validate(validate.OptionalDate),
			huh.NewInput().
				Title("To").
				Placeholder("YYYY-MM-DD, blank for any").
				Value(&m.fb.to).
				Validate(m.validateTo),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
}

func (m Model) validateTo(s string) error {
	if err := validate.OptionalDate(s); err != nil {
		return err
	}
	from, to := strings.TrimSpace(m.fb.from), strings.TrimSpace(s)
	if from != "" && to != "" && to < from {
		return fmt.Errorf("end date is before start date")
	}
	return nil
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}
	switch m.form.State {
	case huh.StateCompleted:
		m.filtering = false
		m.rng = model.ReportRange{
			From: strings.TrimSpace(m.fb.from),
			To:   strings.TrimSpace(m.fb.to),
		}
		reload := m.Reload()
		return m, reload
	case huh.StateAborted:
		m.filtering = false
		return m, nil
	}
	return m, cmd
}

func (m Model) renderCharts() string {
	chartWidth := m.width - 6
	if chartWidth < 40 {
		chartWidth = 40
	}
	parts := []string{
		report.Totals(m.summary),
		"",
		report.BarChart("By category", report.CategoryBars(m.summary.ByCategory), chartWidth, theme.ColorBlue),
		"",
		report.BarChart("By month", report.MonthBars(m.summary.ByMonth), chartWidth, theme.ColorGreen),
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) rangeLabel() string {
	switch {
	case m.rng.From != "" && m.rng.To != "":
		return m.rng.From + " to " + m.rng.To
	case m.rng.From != "":
		return "since " + m.rng.From
	case m.rng.To != "":
		return "until " + m.rng.To
	}
	return "all time"
}

// View renders the reports screen.
func (m Model) View() string {
	if m.filtering && m.form != nil {
		return lipgloss.NewStyle().Padding(1, 2).Render(m.form.View())
	}

	var b strings.Builder
	b.WriteString(theme.TitleStyle.Render("Reports"))
	b.WriteString("  " + theme.HelpStyle.Render(m.rangeLabel()))
	if m.local {
		b.WriteString("  " + theme.HelpStyle.Render("(computed locally)"))
	}
	b.WriteString("\n\n")

	switch {
	case m.loading && !m.hasData:
		b.WriteString(m.spinner.View() + " Loading report...")
	case m.loadErr != "" && !m.hasData:
		b.WriteString(theme.ErrorStyle.Render(m.loadErr))
	default:
		b.WriteString(m.viewport.View())
	}

	if m.exporting {
		b.WriteString("\n" + m.spinner.View() + " Exporting...")
	}

	b.WriteString("\n\n")
	b.WriteString(theme.HelpStyle.Render("f date range | x export csv | esc clear range | r refresh"))
	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

// SetSize updates dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width - 4
	m.viewport.Height = height - 6
	if m.hasData {
		m.viewport.SetContent(m.renderCharts())
	}
}

// load fetches the server summary. Backends without the summary endpoint
// answer 404, in which case the summary is computed from raw records.
func (m Model) load() tea.Cmd {
	b := m.backend
	rng := m.rng
	return func() tea.Msg {
		ctx := context.Background()
		s, err := b.GetReportSummary(ctx, rng)
		if err == nil {
			return summaryLoadedMsg{summary: *s}
		}
		if !api.IsStatus(err, http.StatusNotFound) {
			return summaryLoadedMsg{err: err}
		}

		costs, err := b.ListCosts(ctx, model.CostFilter{From: rng.From, To: rng.To})
		if err != nil {
			return summaryLoadedMsg{err: err}
		}
		advances, err := b.ListAdvances(ctx)
		if err != nil {
			return summaryLoadedMsg{err: err}
		}
		return summaryLoadedMsg{summary: report.Summarize(costs, inRange(advances, rng)), local: true}
	}
}

func inRange(advances []model.AdvancePayment, rng model.ReportRange) []model.AdvancePayment {
	var out []model.AdvancePayment
	for _, a := range advances {
		if rng.From != "" && a.Date < rng.From {
			continue
		}
		if rng.To != "" && a.Date > rng.To {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (m Model) export() tea.Cmd {
	b := m.backend
	rng := m.rng
	dir := m.exportDir
	now := m.now()
	return func() tea.Msg {
		data, err := b.ExportReportCSV(context.Background(), rng)
		if err != nil {
			return exportedMsg{err: err}
		}
		path, err := report.WriteExport(dir, rng, data, now)
		return exportedMsg{path: path, err: err}
	}
}
