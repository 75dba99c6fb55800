package costs

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/costdesk/internal/api"
	"github.com/nhle/costdesk/internal/keys"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/ui"
)

type fakeBackend struct {
	mu         sync.Mutex
	costs      []model.Cost
	filters    []model.CostFilter
	created    []model.CostInput
	deleted    []string
	deleteErr  error
	categories []model.Category
	newCats    []string
}

func (f *fakeBackend) ListCosts(ctx context.Context, filter model.CostFilter) ([]model.Cost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.costs, nil
}

func (f *fakeBackend) CreateCost(ctx context.Context, in model.CostInput) (*model.Cost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	return &model.Cost{ID: "c-new", CategoryID: in.CategoryID, Description: in.Description, Amount: in.Amount, Date: in.Date}, nil
}

func (f *fakeBackend) UpdateCost(ctx context.Context, id string, in model.CostInput) (*model.Cost, error) {
	return &model.Cost{ID: id, CategoryID: in.CategoryID, Description: in.Description, Amount: in.Amount, Date: in.Date}, nil
}

func (f *fakeBackend) DeleteCost(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeBackend) ListCategories(ctx context.Context) ([]model.Category, error) {
	return f.categories, nil
}

func (f *fakeBackend) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newCats = append(f.newCats, name)
	return &model.Category{ID: "cat-new", Name: name}, nil
}

func (f *fakeBackend) DeleteCategory(ctx context.Context, id string) error {
	return nil
}

func sampleCategories() []model.Category {
	return []model.Category{
		{ID: "cat-1", Name: "Materials"},
		{ID: "cat-2", Name: "Labour"},
	}
}

func sampleCosts() []model.Cost {
	return []model.Cost{
		{ID: "c-1", CategoryID: "cat-1", CategoryName: "Materials", Description: "Cement", Amount: 1200, Date: "2024-03-02", Vendor: "Holcim"},
		{ID: "c-2", CategoryID: "cat-2", CategoryName: "Labour", Description: "Masonry crew", Amount: 4000, Date: "2024-03-10"},
		{ID: "c-3", CategoryID: "cat-1", CategoryName: "Materials", Description: "Rebar", Amount: 2500, Date: "2024-02-20", Vendor: "Steelco"},
	}
}

func loaded(t *testing.T, b *fakeBackend, role model.Role) Model {
	t.Helper()
	m := New(b, keys.DefaultKeyMap(), 120, 30)
	m.SetRole(role)
	m, _ = m.Update(categoriesLoadedMsg{categories: sampleCategories()})
	m, _ = m.Update(costsLoadedMsg{costs: sampleCosts()})
	return m
}

func ids(list []model.Cost) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.ID
	}
	return out
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func toastOf(t *testing.T, cmd tea.Cmd) ui.ToastMsg {
	t.Helper()
	require.NotNil(t, cmd)
	msg, ok := cmd().(ui.ToastMsg)
	require.True(t, ok, "expected a toast")
	return msg
}

func TestTableRowsFollowSort(t *testing.T) {
	m := loaded(t, &fakeBackend{}, model.RoleViewer)

	assert.Equal(t, []string{"c-2", "c-1", "c-3"}, ids(m.Visible()))
	assert.Len(t, m.table.Rows(), 3)
	assert.Equal(t, "Masonry crew", m.table.Rows()[0][2])

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "amount", m.sort.Field())
	assert.Equal(t, []string{"c-1", "c-3", "c-2"}, ids(m.Visible()))
	assert.Equal(t, "1,200.00", m.table.Rows()[0][4])
}

func TestSearchMatchesVendor(t *testing.T) {
	m := loaded(t, &fakeBackend{}, model.RoleViewer)
	m.query = "steel"
	assert.Equal(t, []string{"c-3"}, ids(m.Visible()))
}

func TestSelectedFollowsCursor(t *testing.T) {
	m := loaded(t, &fakeBackend{}, model.RoleViewer)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	c, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, "c-1", c.ID)
}

func TestDeleteCostRemovesOnlyThatRow(t *testing.T) {
	b := &fakeBackend{}
	m := loaded(t, b, model.RoleSuperAdmin)

	m, cmd := m.Update(m.deleteCost("c-1")())

	assert.Equal(t, []string{"c-1"}, b.deleted)
	assert.ElementsMatch(t, []string{"c-2", "c-3"}, ids(m.costs))
	assert.Len(t, m.table.Rows(), 2)
	assert.Equal(t, "Cost deleted", toastOf(t, cmd).Options.Title)
}

func TestForbiddenDeleteKeepsRows(t *testing.T) {
	b := &fakeBackend{deleteErr: &api.HTTPError{StatusCode: http.StatusForbidden, Message: "Forbidden"}}
	m := loaded(t, b, model.RoleViewer)

	m, cmd := m.Update(m.deleteCost("c-1")())

	assert.Len(t, m.costs, 3)
	assert.Equal(t, api.ViewerForbiddenMessage, toastOf(t, cmd).Options.Description)
}

func TestSaveFillsCategoryName(t *testing.T) {
	b := &fakeBackend{}
	m := loaded(t, b, model.RoleSuperAdmin)
	*m.fb = formBindings{categoryID: "cat-2", description: " Plastering ", amount: "1,500", date: "2024-03-20"}
	m.isNew = true

	msg := m.save()()
	require.Len(t, b.created, 1)
	assert.Equal(t, model.CostInput{CategoryID: "cat-2", Description: "Plastering", Amount: 1500, Date: "2024-03-20"}, b.created[0])

	m, _ = m.Update(msg)
	assert.Equal(t, "c-new", m.Visible()[0].ID)
	assert.Equal(t, "Labour", m.Visible()[0].CategoryName)
}

func TestViewerCannotOpenCostForm(t *testing.T) {
	m := loaded(t, &fakeBackend{}, model.RoleViewer)

	m, _ = m.Update(runes("n"))
	assert.Equal(t, modeTable, m.mode)
}

func TestAdminOpensCostForm(t *testing.T) {
	m := loaded(t, &fakeBackend{}, model.RoleSuperAdmin)

	m, _ = m.Update(runes("n"))
	assert.Equal(t, modeForm, m.mode)
	assert.True(t, m.Capturing())
}

func TestCategorySelectionFiltersLedger(t *testing.T) {
	b := &fakeBackend{costs: sampleCosts()}
	m := loaded(t, b, model.RoleViewer)

	m, _ = m.Update(runes("c"))
	require.Equal(t, modeCategories, m.mode)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, modeTable, m.mode)
	assert.Equal(t, "cat-2", m.Filter().CategoryID)
	require.NotNil(t, cmd)
	assert.True(t, m.loading)
	assert.Contains(t, m.View(), "category: Labour")
}

func TestUniqueCategoryName(t *testing.T) {
	m := loaded(t, &fakeBackend{}, model.RoleSuperAdmin)

	assert.NoError(t, m.uniqueCategory("Equipment"))
	assert.EqualError(t, m.uniqueCategory(" materials "), `category "Materials" already exists`)
	assert.Error(t, m.uniqueCategory("  "))
}

func TestCategoryCreatedAndDeleted(t *testing.T) {
	b := &fakeBackend{}
	m := loaded(t, b, model.RoleSuperAdmin)
	m.mode = modeCategoryForm

	m, _ = m.Update(m.createCategory("  Equipment ")())
	assert.Equal(t, []string{"Equipment"}, b.newCats)
	assert.Equal(t, modeCategories, m.mode)
	require.Len(t, m.categories, 3)
	assert.Equal(t, "cat-new", m.categories[0].ID)

	m, _ = m.Update(m.deleteCategory("cat-1")())
	assert.Len(t, m.categories, 2)
}

func TestLoadErrorShown(t *testing.T) {
	m := New(&fakeBackend{}, keys.DefaultKeyMap(), 120, 30)
	m, _ = m.Update(costsLoadedMsg{err: errors.New("timeout")})
	assert.Contains(t, m.View(), "timeout")
}
