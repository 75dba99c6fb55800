package costs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
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
	ListCosts(ctx context.Context, filter model.CostFilter) ([]model.Cost, error)
	CreateCost(ctx context.Context, in model.CostInput) (*model.Cost, error)
	UpdateCost(ctx context.Context, id string, in model.CostInput) (*model.Cost, error)
	DeleteCost(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateCategory(ctx context.Context, name string) (*model.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

type costMode int

const (
	modeTable costMode = iota
	modeSearch
	modeForm
	modeFilter
	modeConfirmDelete
	modeCategories
	modeCategoryForm
	modeConfirmCategoryDelete
)

var sortFields = []string{"date", "amount", "category", "description"}

type formBindings struct {
	categoryID  string
	description string
	amount      string
	date        string
	vendor      string
	confirm     bool

	filterCategory string
	filterFrom     string
	filterTo       string

	categoryName string
}

type costsLoadedMsg struct {
	costs []model.Cost
	err   error
}

type categoriesLoadedMsg struct {
	categories []model.Category
	err        error
}

type costSavedMsg struct {
	cost  *model.Cost
	isNew bool
	err   error
}

type costDeletedMsg struct {
	id  string
	err error
}

type categorySavedMsg struct {
	category *model.Category
	err      error
}

type categoryDeletedMsg struct {
	id  string
	err error
}

// Model is the cost ledger screen.
type Model struct {
	mode        costMode
	backend     Backend
	keys        *keys.KeyMap
	role        model.Role
	table       table.Model
	costs       []model.Cost
	categories  []model.Category
	filter      model.CostFilter
	query       string
	sort        view.SortState
	searchInput textinput.Model
	form        *huh.Form
	fb          *formBindings
	editingID   string
	isNew       bool
	deletingID  string
	catIdx      int
	loading     bool
	saving      bool
	loadErr     string
	spinner     spinner.Model
	now         func() time.Time
	width       int
	height      int
}

// New creates a new costs model.
func New(b Backend, k *keys.KeyMap, width, height int) Model {
	t := table.New(
		table.WithColumns(columns(width)),
		table.WithFocused(true),
		table.WithHeight(tableHeight(height)),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.ColorGray).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(theme.ColorWhite).
		Background(theme.ColorBlue).
		Bold(false)
	t.SetStyles(styles)

	si := textinput.New()
	si.Placeholder = "search description, vendor or category..."
	si.Prompt = "/ "
	si.Width = width - 4

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		mode:        modeTable,
		backend:     b,
		keys:        k,
		role:        model.RoleViewer,
		table:       t,
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

func columns(width int) []table.Column {
	desc := width - 12 - 18 - 18 - 14 - 12
	if desc < 16 {
		desc = 16
	}
	return []table.Column{
		{Title: "Date", Width: 12},
		{Title: "Category", Width: 18},
		{Title: "Description", Width: desc},
		{Title: "Vendor", Width: 18},
		{Title: "Amount", Width: 14},
	}
}

func tableHeight(height int) int {
	h := height - 8
	if h < 3 {
		h = 3
	}
	return h
}

// Init loads costs and categories.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load(), m.loadCategories())
}

// Reload refreshes costs and categories.
func (m *Model) Reload() tea.Cmd {
	m.loading = true
	return tea.Batch(m.spinner.Tick, m.load(), m.loadCategories())
}

// SetRole controls whether mutations are offered.
func (m *Model) SetRole(role model.Role) {
	m.role = role
}

// Capturing reports whether keystrokes belong to an input or form.
func (m Model) Capturing() bool {
	return m.mode != modeTable && m.mode != modeCategories
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m.updateActiveForm(msg)

	case spinner.TickMsg:
		if !m.loading && !m.saving {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case costsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.loadErr = msg.err.Error()
			return m, ui.Failure("Could not load costs", msg.err, m.role)
		}
		m.loadErr = ""
		m.costs = msg.costs
		m.refreshRows()
		return m, nil

	case categoriesLoadedMsg:
		if msg.err != nil {
			return m, ui.Failure("Could not load categories", msg.err, m.role)
		}
		m.categories = msg.categories
		m.clampCategory()
		return m, nil

	case costSavedMsg:
		m.saving = false
		m.mode = modeTable
		if msg.err != nil {
			return m, ui.Failure("Cost not saved", msg.err, m.role)
		}
		m.costs = view.Replace(m.costs, m.withCategoryName(*msg.cost), costID)
		m.refreshRows()
		if msg.isNew {
			return m, ui.Success("Cost added", msg.cost.Description)
		}
		return m, ui.Success("Cost updated", msg.cost.Description)

	case costDeletedMsg:
		m.saving = false
		m.mode = modeTable
		if msg.err != nil {
			return m, ui.Failure("Cost not deleted", msg.err, m.role)
		}
		m.costs = view.Remove(m.costs, msg.id, costID)
		m.refreshRows()
		return m, ui.Success("Cost deleted", "")

	case categorySavedMsg:
		m.saving = false
		m.mode = modeCategories
		if msg.err != nil {
			return m, ui.Failure("Category not saved", msg.err, m.role)
		}
		m.categories = view.Replace(m.categories, *msg.category, categoryID)
		return m, ui.Success("Category added", msg.category.Name)

	case categoryDeletedMsg:
		m.saving = false
		m.mode = modeCategories
		if msg.err != nil {
			return m, ui.Failure("Category not deleted", msg.err, m.role)
		}
		m.categories = view.Remove(m.categories, msg.id, categoryID)
		m.clampCategory()
		return m, ui.Success("Category deleted", "")

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateActiveForm(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.mode {
	case modeTable:
		return m.handleTableKey(msg)
	case modeSearch:
		return m.handleSearchKey(msg)
	case modeCategories:
		return m.handleCategoryKey(msg)
	}
	return m.updateActiveForm(msg)
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.mode = modeTable
		m.query = strings.TrimSpace(m.searchInput.Value())
		m.searchInput.Blur()
		m.refreshRows()
		return m, nil
	case "esc":
		m.mode = modeTable
		m.query = ""
		m.searchInput.Reset()
		m.searchInput.Blur()
		m.refreshRows()
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m Model) handleTableKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearch
		m.searchInput.SetValue(m.query)
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.Back):
		if m.query != "" {
			m.query = ""
			m.searchInput.Reset()
			m.refreshRows()
		}
		return m, nil

	case key.Matches(msg, m.keys.CycleSort):
		m.sort = m.sort.Next()
		m.refreshRows()
		return m, nil

	case key.Matches(msg, m.keys.ReverseSort):
		m.sort = m.sort.Toggle()
		m.refreshRows()
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		reload := m.Reload()
		return m, reload

	case key.Matches(msg, m.keys.Filter):
		m.fb.filterCategory = m.filter.CategoryID
		m.fb.filterFrom = m.filter.From
		m.fb.filterTo = m.filter.To
		m.form = m.buildFilterForm()
		m.mode = modeFilter
		return m, m.form.Init()

	case key.Matches(msg, m.keys.Categories):
		m.mode = modeCategories
		m.catIdx = 0
		return m, nil
	}

	if m.role.IsAdmin() {
		switch {
		case key.Matches(msg, m.keys.New):
			m.isNew = true
			m.editingID = ""
			*m.fb = formBindings{
				date:       m.now().Format(validate.DateLayout),
				categoryID: m.filter.CategoryID,
			}
			m.form = m.buildForm()
			m.mode = modeForm
			return m, m.form.Init()

		case key.Matches(msg, m.keys.Edit):
			c, ok := m.Selected()
			if !ok {
				return m, nil
			}
			m.isNew = false
			m.editingID = c.ID
			*m.fb = formBindings{
				categoryID:  c.CategoryID,
				description: c.Description,
				amount:      fmt.Sprintf("%.2f", c.Amount),
				date:        c.Date,
				vendor:      c.Vendor,
			}
			m.form = m.buildForm()
			m.mode = modeForm
			return m, m.form.Init()

		case key.Matches(msg, m.keys.Delete):
			c, ok := m.Selected()
			if !ok {
				return m, nil
			}
			m.deletingID = c.ID
			m.fb.confirm = false
			m.form = confirmForm(fmt.Sprintf("Delete cost %q?", c.Description), m.width, m.height, &m.fb.confirm)
			m.mode = modeConfirmDelete
			return m, m.form.Init()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) categoryOptions(withAll bool) []huh.Option[string] {
	var opts []huh.Option[string]
	if withAll {
		opts = append(opts, huh.NewOption("All categories", ""))
	}
	for _, c := range m.categories {
		opts = append(opts, huh.NewOption(c.Name, c.ID))
	}
	return opts
}

func (m Model) buildForm() *huh.Form {
	fields := []huh.Field{}
	if len(m.categories) > 0 {
		fields = append(fields,
			huh.NewSelect[string]().
				Title("Category").
				Options(m.categoryOptions(false)...).
				Value(&m.fb.categoryID),
		)
	}
	fields = append(fields,
		huh.NewInput().
			Title("Description").
			Placeholder("What was paid for").
			Value(&m.fb.description).
			Validate(validate.Required("description")),
		huh.NewInput().
			Title("Amount").
			Placeholder("0.00").
			Value(&m.fb.amount).
			Validate(validate.Amount),
		huh.NewInput().
			Title("Date").
			Placeholder("YYYY-MM-DD").
			Value(&m.fb.date).
			Validate(validate.Date),
		huh.NewInput().
			Title("Vendor").
			Placeholder("Optional").
			Value(&m.fb.vendor),
	)
	return huh.NewForm(huh.NewGroup(fields...)).
		WithWidth(ui.FormWidth(m.width)).
		WithHeight(ui.FormHeight(m.height))
}

func (m Model) buildFilterForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Category").
				Options(m.categoryOptions(true)...).
				Value(&m.fb.filterCategory),
			huh.NewInput().
				Title("From").
				Placeholder("YYYY-MM-DD, blank for any").
				Value(&m.fb.filterFrom).
				Validate(validate.OptionalDate),
			huh.NewInput().
				Title("To").
				Placeholder("YYYY-MM-DD, blank for any").
				Value(&m.fb.filterTo).
				Validate(validate.OptionalDate),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
}

func confirmForm(title string, width, height int, value *bool) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description("This cannot be undone.").
				Affirmative("Yes, delete").
				Negative("Cancel").
				Value(value),
		),
	).WithWidth(ui.FormWidth(width)).WithHeight(ui.FormHeight(height))
}

// updateActiveForm routes msg to the open form and acts on its outcome.
func (m Model) updateActiveForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || !m.Capturing() || m.mode == modeSearch {
		var cmd tea.Cmd
		if m.mode == modeTable {
			m.table, cmd = m.table.Update(msg)
		}
		return m, cmd
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateAborted:
		m.mode = m.returnMode()
		return m, nil
	case huh.StateCompleted:
		return m.completeForm()
	}
	return m, cmd
}

func (m Model) returnMode() costMode {
	if m.mode == modeCategoryForm || m.mode == modeConfirmCategoryDelete {
		return modeCategories
	}
	return modeTable
}

func (m Model) completeForm() (Model, tea.Cmd) {
	switch m.mode {
	case modeForm:
		m.saving = true
		return m, tea.Batch(m.spinner.Tick, m.save())

	case modeFilter:
		m.mode = modeTable
		m.filter = model.CostFilter{
			CategoryID: m.fb.filterCategory,
			From:       strings.TrimSpace(m.fb.filterFrom),
			To:         strings.TrimSpace(m.fb.filterTo),
		}
		reload := m.Reload()
		return m, reload

	case modeConfirmDelete:
		m.mode = modeTable
		if !m.fb.confirm {
			return m, nil
		}
		m.saving = true
		return m, tea.Batch(m.spinner.Tick, m.deleteCost(m.deletingID))

	case modeCategoryForm:
		m.saving = true
		return m, tea.Batch(m.spinner.Tick, m.createCategory(m.fb.categoryName))

	case modeConfirmCategoryDelete:
		m.mode = modeCategories
		if !m.fb.confirm {
			return m, nil
		}
		m.saving = true
		return m, tea.Batch(m.spinner.Tick, m.deleteCategory(m.deletingID))
	}
	return m, nil
}

// Visible returns the loaded costs after search and sort.
func (m Model) Visible() []model.Cost {
	found := view.Search(m.costs, m.query, func(c model.Cost) []string {
		return []string{c.Description, c.Vendor, c.CategoryName}
	})
	return view.Sort(found, lessBy(m.sort.Field()), m.sort.Desc)
}

// Selected returns the cost under the table cursor.
func (m Model) Selected() (model.Cost, bool) {
	visible := m.Visible()
	i := m.table.Cursor()
	if i < 0 || i >= len(visible) {
		return model.Cost{}, false
	}
	return visible[i], true
}

// Filter returns the active server-side filter.
func (m Model) Filter() model.CostFilter {
	return m.filter
}

func lessBy(field string) func(a, b model.Cost) bool {
	switch field {
	case "amount":
		return func(a, b model.Cost) bool { return a.Amount < b.Amount }
	case "category":
		return func(a, b model.Cost) bool { return a.CategoryName < b.CategoryName }
	case "description":
		return func(a, b model.Cost) bool {
			return strings.ToLower(a.Description) < strings.ToLower(b.Description)
		}
	default:
		return func(a, b model.Cost) bool { return a.Date < b.Date }
	}
}

func (m *Model) refreshRows() {
	visible := m.Visible()
	rows := make([]table.Row, len(visible))
	for i, c := range visible {
		rows[i] = table.Row{
			view.Date(c.Date),
			c.CategoryName,
			c.Description,
			c.Vendor,
			view.Amount(c.Amount),
		}
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(len(rows) - 1)
	}
	if m.table.Cursor() < 0 && len(rows) > 0 {
		m.table.SetCursor(0)
	}
}

// withCategoryName fills in the display name when the backend omits it.
func (m Model) withCategoryName(c model.Cost) model.Cost {
	if c.CategoryName != "" {
		return c
	}
	for _, cat := range m.categories {
		if cat.ID == c.CategoryID {
			c.CategoryName = cat.Name
			break
		}
	}
	return c
}

func (m Model) categoryName(id string) string {
	for _, c := range m.categories {
		if c.ID == id {
			return c.Name
		}
	}
	return id
}

// View renders the costs screen.
func (m Model) View() string {
	switch m.mode {
	case modeForm, modeFilter, modeConfirmDelete, modeCategoryForm, modeConfirmCategoryDelete:
		if m.form == nil {
			return ""
		}
		return lipgloss.NewStyle().Padding(1, 2).Render(m.form.View())
	case modeCategories:
		return m.viewCategories()
	}
	return m.viewTable()
}

func (m Model) viewTable() string {
	var b strings.Builder

	b.WriteString(theme.TitleStyle.Render("Costs"))
	if f := m.filterLabel(); f != "" {
		b.WriteString("  " + theme.HelpStyle.Render(f))
	}
	b.WriteString("\n")

	if m.mode == modeSearch {
		b.WriteString(m.searchInput.View() + "\n")
	} else if m.query != "" {
		b.WriteString(theme.HelpStyle.Render(fmt.Sprintf("search: %q (esc to clear)", m.query)) + "\n")
	}
	b.WriteString("\n")

	visible := m.Visible()
	switch {
	case m.loading && len(m.costs) == 0:
		b.WriteString(m.spinner.View() + " Loading costs...")
	case m.loadErr != "" && len(m.costs) == 0:
		b.WriteString(theme.ErrorStyle.Render(m.loadErr))
	case len(visible) == 0:
		b.WriteString(theme.EmptyStyle.Render("No costs match."))
	default:
		total := 0.0
		for _, c := range visible {
			total += c.Amount
		}
		b.WriteString(m.table.View())
		b.WriteString("\n")
		b.WriteString(theme.HelpStyle.Render(fmt.Sprintf(
			"%d costs · total %s · sorted by %s", len(visible), view.Amount(total), m.sort.Label(),
		)))
	}

	if m.saving {
		b.WriteString("\n" + m.spinner.View() + " Saving...")
	}

	b.WriteString("\n\n")
	hints := "/ search | f filter | c categories | tab sort | s reverse | r refresh"
	if m.role.IsAdmin() {
		hints = "n new | e edit | d delete | " + hints
	}
	b.WriteString(theme.HelpStyle.Render(hints))

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

func (m Model) filterLabel() string {
	var parts []string
	if m.filter.CategoryID != "" {
		parts = append(parts, "category: "+m.categoryName(m.filter.CategoryID))
	}
	if m.filter.From != "" {
		parts = append(parts, "from "+m.filter.From)
	}
	if m.filter.To != "" {
		parts = append(parts, "to "+m.filter.To)
	}
	return strings.Join(parts, " · ")
}

// SetSize updates dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.searchInput.Width = width - 4
	m.table.SetColumns(columns(width - 4))
	m.table.SetHeight(tableHeight(height))
}

func (m Model) load() tea.Cmd {
	b := m.backend
	filter := m.filter
	return func() tea.Msg {
		list, err := b.ListCosts(context.Background(), filter)
		return costsLoadedMsg{costs: list, err: err}
	}
}

func (m Model) loadCategories() tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		list, err := b.ListCategories(context.Background())
		return categoriesLoadedMsg{categories: list, err: err}
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
			return costSavedMsg{err: err, isNew: isNew}
		}
		in := model.CostInput{
			CategoryID:  fb.categoryID,
			Description: strings.TrimSpace(fb.description),
			Amount:      amount,
			Date:        strings.TrimSpace(fb.date),
			Vendor:      strings.TrimSpace(fb.vendor),
		}

		var saved *model.Cost
		if isNew {
			saved, err = b.CreateCost(context.Background(), in)
		} else {
			saved, err = b.UpdateCost(context.Background(), editID, in)
		}
		return costSavedMsg{cost: saved, isNew: isNew, err: err}
	}
}

func (m Model) deleteCost(id string) tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		return costDeletedMsg{id: id, err: b.DeleteCost(context.Background(), id)}
	}
}

func costID(c model.Cost) string { return c.ID }
