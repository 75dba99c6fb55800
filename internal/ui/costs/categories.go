package costs

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/theme"
	"github.com/nhle/costdesk/internal/ui"
	"github.com/nhle/costdesk/internal/validate"
)

func (m Model) handleCategoryKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.mode = modeTable
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if len(m.categories) > 0 {
			m.catIdx = (m.catIdx + 1) % len(m.categories)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(m.categories) > 0 {
			m.catIdx--
			if m.catIdx < 0 {
				m.catIdx = len(m.categories) - 1
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Select):
		// Filter the ledger by the highlighted category.
		if c, ok := m.selectedCategory(); ok {
			m.mode = modeTable
			m.filter.CategoryID = c.ID
			reload := m.Reload()
			return m, reload
		}
		return m, nil
	}

	if !m.role.IsAdmin() {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.New):
		m.fb.categoryName = ""
		m.form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Category name").
					Placeholder("e.g. Foundations").
					Value(&m.fb.categoryName).
					Validate(m.uniqueCategory),
			),
		).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
		m.mode = modeCategoryForm
		return m, m.form.Init()

	case key.Matches(msg, m.keys.Delete):
		c, ok := m.selectedCategory()
		if !ok {
			return m, nil
		}
		m.deletingID = c.ID
		m.fb.confirm = false
		m.form = confirmForm(fmt.Sprintf("Delete category %q?", c.Name), m.width, m.height, &m.fb.confirm)
		m.mode = modeConfirmCategoryDelete
		return m, m.form.Init()
	}
	return m, nil
}

func (m Model) uniqueCategory(name string) error {
	if err := validate.Required("name")(name); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	for _, c := range m.categories {
		if strings.EqualFold(c.Name, name) {
			return fmt.Errorf("category %q already exists", c.Name)
		}
	}
	return nil
}

func (m Model) selectedCategory() (model.Category, bool) {
	if m.catIdx < 0 || m.catIdx >= len(m.categories) {
		return model.Category{}, false
	}
	return m.categories[m.catIdx], true
}

func (m *Model) clampCategory() {
	if m.catIdx >= len(m.categories) {
		m.catIdx = len(m.categories) - 1
	}
	if m.catIdx < 0 {
		m.catIdx = 0
	}
}

func (m Model) viewCategories() string {
	var b strings.Builder
	b.WriteString(theme.TitleStyle.Render("Categories") + "\n\n")

	if len(m.categories) == 0 {
		b.WriteString(theme.EmptyStyle.Render("No categories yet."))
	}
	counts := map[string]int{}
	for _, c := range m.costs {
		counts[c.CategoryID]++
	}
	for i, c := range m.categories {
		label := fmt.Sprintf("%-28s %s", c.Name, theme.HelpStyle.Render(fmt.Sprintf("%d costs", counts[c.ID])))
		if i == m.catIdx {
			b.WriteString(theme.SelectedItemStyle.Render(label))
		} else {
			b.WriteString(theme.ListItemStyle.Render(label))
		}
		b.WriteString("\n")
	}

	if m.saving {
		b.WriteString("\n" + m.spinner.View() + " Saving...")
	}

	b.WriteString("\n")
	hints := "enter filter by category | esc back"
	if m.role.IsAdmin() {
		hints = "n new | d delete | " + hints
	}
	b.WriteString(theme.HelpStyle.Render(hints))
	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

func (m Model) createCategory(name string) tea.Cmd {
	b := m.backend
	name = strings.TrimSpace(name)
	return func() tea.Msg {
		c, err := b.CreateCategory(context.Background(), name)
		return categorySavedMsg{category: c, err: err}
	}
}

func (m Model) deleteCategory(id string) tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		return categoryDeletedMsg{id: id, err: b.DeleteCategory(context.Background(), id)}
	}
}

func categoryID(c model.Category) string { return c.ID }
