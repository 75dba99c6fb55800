package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/costdesk/internal/browser"
	"github.com/nhle/costdesk/internal/keys"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/proxy"
	"github.com/nhle/costdesk/internal/theme"
	"github.com/nhle/costdesk/internal/ui"
	"github.com/nhle/costdesk/internal/view"
)

// Backend is the subset of the API client used by this view.
type Backend interface {
	ListFiles(ctx context.Context) ([]model.DesignFile, error)
	UploadPath(ctx context.Context, path, description string) (*model.DesignFile, error)
	DeleteFile(ctx context.Context, id string) error
}

// Clipboard writes text to the system clipboard.
type Clipboard func(text string) error

type fileMode int

const (
	modeList fileMode = iota
	modeSearch
	modeUpload
	modeConfirmDelete
)

var sortFields = []string{"date", "name", "size"}

type formBindings struct {
	path        string
	description string
	confirm     bool
}

type filesLoadedMsg struct {
	files []model.DesignFile
	err   error
}

type fileUploadedMsg struct {
	file *model.DesignFile
	err  error
}

type fileDeletedMsg struct {
	id  string
	err error
}

type fileOpenedMsg struct {
	name string
	err  error
}

type linkCopiedMsg struct {
	err error
}

// Model is the design file browser.
type Model struct {
	mode        fileMode
	backend     Backend
	keys        *keys.KeyMap
	role        model.Role
	list        list.Model
	files       []model.DesignFile
	query       string
	sort        view.SortState
	searchInput textinput.Model
	form        *huh.Form
	confirmForm *huh.Form
	fb          *formBindings
	deletingID  string
	loading     bool
	busy        string
	loadErr     string
	spinner     spinner.Model
	proxyAddr   string
	open        browser.Opener
	copy        Clipboard
	width       int
	height      int
}

// New creates a new files model. Links point at the proxy on proxyAddr.
func New(b Backend, k *keys.KeyMap, proxyAddr string, open browser.Opener, copyFn Clipboard, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-4)
	l.Title = "Design files"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search name or description..."
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
		list:        l,
		sort:        view.SortState{Fields: sortFields, Desc: true},
		searchInput: si,
		fb:          &formBindings{},
		loading:     true,
		spinner:     sp,
		proxyAddr:   proxyAddr,
		open:        open,
		copy:        copyFn,
		width:       width,
		height:      height,
	}
}

// Init loads the file list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

// Reload refreshes the list and shows the loading indicator.
func (m *Model) Reload() tea.Cmd {
	m.loading = true
	return tea.Batch(m.spinner.Tick, m.load())
}

// SetRole controls whether upload and delete are offered.
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
		m.SetSize(msg.Width, msg.Height)
		return m.updateActiveForm(msg)

	case spinner.TickMsg:
		if !m.loading && m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case filesLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.loadErr = msg.err.Error()
			return m, ui.Failure("Could not load files", msg.err, m.role)
		}
		m.loadErr = ""
		m.files = msg.files
		return m, m.refreshItems()

	case fileUploadedMsg:
		m.busy = ""
		if msg.err != nil {
			return m, ui.Failure("Upload failed", msg.err, m.role)
		}
		m.files = view.Replace(m.files, *msg.file, fileID)
		return m, tea.Batch(m.refreshItems(), ui.Success("File uploaded", msg.file.Name))

	case fileDeletedMsg:
		m.busy = ""
		if msg.err != nil {
			return m, ui.Failure("File not deleted", msg.err, m.role)
		}
		m.files = view.Remove(m.files, msg.id, fileID)
		return m, tea.Batch(m.refreshItems(), ui.Success("File deleted", ""))

	case fileOpenedMsg:
		if msg.err != nil {
			return m, ui.Toast(model.NotificationError, "Could not open browser", msg.err.Error())
		}
		return m, ui.Toast(model.NotificationInfo, "Opening in browser", msg.name)

	case linkCopiedMsg:
		if msg.err != nil {
			return m, ui.Toast(model.NotificationError, "Copy failed", msg.err.Error())
		}
		return m, ui.Success("Link copied", "")

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateActiveForm(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.mode {
	case modeSearch:
		return m.handleSearchKey(msg)
	case modeUpload:
		return m.updateUpload(msg)
	case modeConfirmDelete:
		return m.updateConfirm(msg)
	}
	return m.handleListKey(msg)
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.mode = modeList
		m.query = strings.TrimSpace(m.searchInput.Value())
		m.searchInput.Blur()
		return m, m.refreshItems()
	case "esc":
		m.mode = modeList
		m.query = ""
		m.searchInput.Reset()
		m.searchInput.Blur()
		return m, m.refreshItems()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m Model) handleListKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearch
		m.searchInput.SetValue(m.query)
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.Back):
		if m.query != "" {
			m.query = ""
			m.searchInput.Reset()
			return m, m.refreshItems()
		}
		return m, nil

	case key.Matches(msg, m.keys.CycleSort):
		m.sort = m.sort.Next()
		return m, m.refreshItems()

	case key.Matches(msg, m.keys.ReverseSort):
		m.sort = m.sort.Toggle()
		return m, m.refreshItems()

	case key.Matches(msg, m.keys.Refresh):
		reload := m.Reload()
		return m, reload

	case key.Matches(msg, m.keys.Open), key.Matches(msg, m.keys.Select):
		f, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, m.openFile(f)

	case key.Matches(msg, m.keys.Copy):
		f, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, m.copyLink(f)

	case key.Matches(msg, m.keys.Upload) && m.role.IsAdmin():
		*m.fb = formBindings{}
		m.form = m.buildUploadForm()
		m.mode = modeUpload
		return m, m.form.Init()

	case key.Matches(msg, m.keys.Delete) && m.role.IsAdmin():
		f, ok := m.Selected()
		if !ok {
			return m, nil
		}
		m.deletingID = f.ID
		m.fb.confirm = false
		m.confirmForm = m.buildConfirmForm(f)
		m.mode = modeConfirmDelete
		return m, m.confirmForm.Init()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// CheckUploadPath validates a local path before any upload starts: it
// must be a regular file no larger than model.MaxUploadSize.
func CheckUploadPath(path string) error {
	path = expandHome(strings.TrimSpace(path))
	if path == "" {
		return fmt.Errorf("file path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no file at %s", path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", info.Name())
	}
	return model.ValidateUploadSize(info.Name(), info.Size())
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}

func (m Model) buildUploadForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("File").
				Description(fmt.Sprintf("Path to a PDF, up to %s", model.FormatBytes(model.MaxUploadSize))).
				Placeholder("~/Drawings/floor-plan.pdf").
				Value(&m.fb.path).
				Validate(CheckUploadPath),
			huh.NewText().
				Title("Description").
				Placeholder("Optional").
				Value(&m.fb.description),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
}

func (m Model) buildConfirmForm(f model.DesignFile) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %q?", f.Name)).
				Description("The file is removed for every user.").
				Affirmative("Yes, delete").
				Negative("Cancel").
				Value(&m.fb.confirm),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
}

func (m Model) updateUpload(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}
	if m.form.State == huh.StateCompleted {
		m.mode = modeList
		m.busy = "Uploading " + filepath.Base(m.fb.path) + "..."
		return m, tea.Batch(m.spinner.Tick, m.upload(m.fb.path, m.fb.description))
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
		m.mode = modeList
		if m.fb.confirm {
			m.busy = "Deleting..."
			return m, tea.Batch(m.spinner.Tick, m.deleteFile(m.deletingID))
		}
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
	case modeUpload:
		return m.updateUpload(msg)
	case modeConfirmDelete:
		return m.updateConfirm(msg)
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// Visible returns the files after search and sort.
func (m Model) Visible() []model.DesignFile {
	found := view.Search(m.files, m.query, func(f model.DesignFile) []string {
		return []string{f.Name, f.Description}
	})
	return view.Sort(found, lessBy(m.sort.Field()), m.sort.Desc)
}

// Selected returns the highlighted file.
func (m Model) Selected() (model.DesignFile, bool) {
	item, ok := m.list.SelectedItem().(FileItem)
	if !ok {
		return model.DesignFile{}, false
	}
	return item.File, true
}

func lessBy(field string) func(a, b model.DesignFile) bool {
	switch field {
	case "name":
		return func(a, b model.DesignFile) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case "size":
		return func(a, b model.DesignFile) bool { return a.Size < b.Size }
	default:
		return func(a, b model.DesignFile) bool { return a.UploadedAt.Before(b.UploadedAt) }
	}
}

func (m *Model) refreshItems() tea.Cmd {
	visible := m.Visible()
	items := make([]list.Item, len(visible))
	for i, f := range visible {
		items[i] = FileItem{File: f}
	}
	m.list.Title = fmt.Sprintf("Design files · %s", m.sort.Label())
	return m.list.SetItems(items)
}

// ViewURL returns the proxy link for f.
func (m Model) ViewURL(f model.DesignFile) string {
	return proxy.ViewURL(m.proxyAddr, f.ID)
}

// View renders the files screen.
func (m Model) View() string {
	switch m.mode {
	case modeUpload:
		return lipgloss.NewStyle().Padding(1, 2).Render(m.form.View())
	case modeConfirmDelete:
		return lipgloss.NewStyle().Padding(1, 2).Render(m.confirmForm.View())
	}

	var top string
	switch {
	case m.mode == modeSearch:
		top = m.searchInput.View()
	case m.query != "":
		top = theme.HelpStyle.Render(fmt.Sprintf("filter: %q (esc to clear)", m.query))
	}

	var body string
	switch {
	case m.loading && len(m.files) == 0:
		body = m.spinner.View() + " Loading files..."
	case m.loadErr != "" && len(m.files) == 0:
		body = theme.ErrorStyle.Render(m.loadErr)
	case len(m.list.Items()) == 0 && m.query != "":
		body = theme.EmptyStyle.Render("No files match your search.")
	case len(m.list.Items()) == 0:
		body = theme.EmptyStyle.Render("No design files uploaded yet.")
	default:
		body = m.list.View()
	}

	hints := "enter/o open | y copy link | / search | tab sort | s reverse | r refresh"
	if m.role.IsAdmin() {
		hints = "u upload | d delete | " + hints
	}
	footer := theme.HelpStyle.Render(hints)
	if m.busy != "" {
		footer = m.spinner.View() + " " + m.busy + "\n" + footer
	}

	parts := []string{}
	if top != "" {
		parts = append(parts, top)
	}
	parts = append(parts, body, "", footer)
	return lipgloss.NewStyle().Padding(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width-2, height-4)
	m.searchInput.Width = width - 4
}

func (m Model) load() tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		files, err := b.ListFiles(context.Background())
		return filesLoadedMsg{files: files, err: err}
	}
}

func (m Model) upload(path, description string) tea.Cmd {
	b := m.backend
	path = expandHome(strings.TrimSpace(path))
	description = strings.TrimSpace(description)
	return func() tea.Msg {
		f, err := b.UploadPath(context.Background(), path, description)
		return fileUploadedMsg{file: f, err: err}
	}
}

func (m Model) deleteFile(id string) tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		return fileDeletedMsg{id: id, err: b.DeleteFile(context.Background(), id)}
	}
}

func (m Model) openFile(f model.DesignFile) tea.Cmd {
	open := m.open
	link := m.ViewURL(f)
	return func() tea.Msg {
		return fileOpenedMsg{name: f.Name, err: open(link)}
	}
}

func (m Model) copyLink(f model.DesignFile) tea.Cmd {
	copyFn := m.copy
	link := m.ViewURL(f)
	return func() tea.Msg {
		return linkCopiedMsg{err: copyFn(link)}
	}
}

func fileID(f model.DesignFile) string { return f.ID }
