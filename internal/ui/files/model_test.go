package files

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/costdesk/internal/keys"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/ui"
)

type fakeBackend struct {
	mu       sync.Mutex
	list     []model.DesignFile
	uploads  []string
	deleted  []string
	listErr  error
	upErr    error
	upResult *model.DesignFile
}

func (f *fakeBackend) ListFiles(ctx context.Context) ([]model.DesignFile, error) {
	return f.list, f.listErr
}

func (f *fakeBackend) UploadPath(ctx context.Context, path, description string) (*model.DesignFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, path)
	if f.upErr != nil {
		return nil, f.upErr
	}
	return f.upResult, nil
}

func (f *fakeBackend) DeleteFile(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func sample() []model.DesignFile {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 9, 0, 0, 0, time.UTC) }
	return []model.DesignFile{
		{ID: "f-1", Name: "floor-plan.pdf", Size: 2048, UploadedAt: day(3)},
		{ID: "f-2", Name: "Elevations.pdf", Size: 900, UploadedAt: day(9), Description: "north facade"},
		{ID: "f-3", Name: "site.pdf", Size: 40960, UploadedAt: day(1)},
	}
}

type recorder struct {
	urls []string
	err  error
}

func (r *recorder) record(url string) error {
	r.urls = append(r.urls, url)
	return r.err
}

func loaded(t *testing.T, b *fakeBackend, role model.Role, opened, copied *recorder) Model {
	t.Helper()
	m := New(b, keys.DefaultKeyMap(), "127.0.0.1:8787", opened.record, copied.record, 100, 30)
	m.SetRole(role)
	m, _ = m.Update(filesLoadedMsg{files: sample()})
	return m
}

func names(list []model.DesignFile) []string {
	out := make([]string, len(list))
	for i, f := range list {
		out[i] = f.Name
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

func TestDefaultSortIsNewestFirst(t *testing.T) {
	m := loaded(t, &fakeBackend{}, model.RoleViewer, &recorder{}, &recorder{})
	assert.Equal(t, []string{"Elevations.pdf", "floor-plan.pdf", "site.pdf"}, names(m.Visible()))

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "name", m.sort.Field())
	assert.Equal(t, []string{"Elevations.pdf", "floor-plan.pdf", "site.pdf"}, names(m.Visible()))

	m, _ = m.Update(runes("s"))
	assert.Equal(t, []string{"site.pdf", "floor-plan.pdf", "Elevations.pdf"}, names(m.Visible()))
}

func TestSearchMatchesDescription(t *testing.T) {
	m := loaded(t, &fakeBackend{}, model.RoleViewer, &recorder{}, &recorder{})

	m, _ = m.Update(runes("/"))
	require.True(t, m.Capturing())
	for _, r := range "facade" {
		m, _ = m.Update(runes(string(r)))
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.False(t, m.Capturing())
	assert.Equal(t, []string{"Elevations.pdf"}, names(m.Visible()))

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Len(t, m.Visible(), 3)
}

func TestOpenUsesProxyLink(t *testing.T) {
	opened := &recorder{}
	m := loaded(t, &fakeBackend{}, model.RoleViewer, opened, &recorder{})

	_, cmd := m.Update(runes("o"))
	require.NotNil(t, cmd)
	_, cmd = m.Update(cmd())

	assert.Equal(t, []string{"http://127.0.0.1:8787/api/files/f-2/view"}, opened.urls)
	assert.Equal(t, model.NotificationInfo, toastOf(t, cmd).Options.Type)
}

func TestCopyLinkReportsFailure(t *testing.T) {
	copied := &recorder{err: errors.New("no clipboard utility")}
	m := loaded(t, &fakeBackend{}, model.RoleViewer, &recorder{}, copied)

	_, cmd := m.Update(runes("y"))
	require.NotNil(t, cmd)
	_, cmd = m.Update(cmd())

	assert.Equal(t, []string{"http://127.0.0.1:8787/api/files/f-2/view"}, copied.urls)
	toast := toastOf(t, cmd)
	assert.Equal(t, model.NotificationError, toast.Options.Type)
	assert.Equal(t, "no clipboard utility", toast.Options.Description)
}

func TestViewerCannotUploadOrDelete(t *testing.T) {
	m := loaded(t, &fakeBackend{}, model.RoleViewer, &recorder{}, &recorder{})

	m, _ = m.Update(runes("u"))
	assert.Equal(t, modeList, m.mode)
	m, _ = m.Update(runes("d"))
	assert.Equal(t, modeList, m.mode)
}

func TestAdminOpensUploadForm(t *testing.T) {
	m := loaded(t, &fakeBackend{}, model.RoleSuperAdmin, &recorder{}, &recorder{})

	m, _ = m.Update(runes("u"))
	assert.Equal(t, modeUpload, m.mode)
	assert.True(t, m.Capturing())
}

func TestCheckUploadPath(t *testing.T) {
	dir := t.TempDir()

	small := filepath.Join(dir, "plan.pdf")
	require.NoError(t, os.WriteFile(small, []byte("%PDF-1.4"), 0o600))

	exact := filepath.Join(dir, "exact.pdf")
	require.NoError(t, os.WriteFile(exact, nil, 0o600))
	require.NoError(t, os.Truncate(exact, model.MaxUploadSize))

	big := filepath.Join(dir, "big.pdf")
	require.NoError(t, os.WriteFile(big, nil, 0o600))
	require.NoError(t, os.Truncate(big, model.MaxUploadSize+1))

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "small file", path: small},
		{name: "exactly at limit", path: exact},
		{name: "over limit", path: big, wantErr: "exceeds the 500 MiB upload limit"},
		{name: "blank", path: "  ", wantErr: "file path is required"},
		{name: "missing", path: filepath.Join(dir, "nope.pdf"), wantErr: "no file at"},
		{name: "directory", path: dir, wantErr: "is a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckUploadPath(tt.path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUploadAddsFileToTop(t *testing.T) {
	b := &fakeBackend{upResult: &model.DesignFile{ID: "f-9", Name: "roof.pdf", UploadedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}}
	m := loaded(t, b, model.RoleSuperAdmin, &recorder{}, &recorder{})

	msg := m.upload(" /tmp/roof.pdf ", "roof")()
	assert.Equal(t, []string{"/tmp/roof.pdf"}, b.uploads)

	m, cmd := m.Update(msg)
	assert.Equal(t, "roof.pdf", m.Visible()[0].Name)
	assert.NotNil(t, cmd)
}

func TestDeleteRemovesFile(t *testing.T) {
	b := &fakeBackend{}
	m := loaded(t, b, model.RoleSuperAdmin, &recorder{}, &recorder{})

	m, _ = m.Update(m.deleteFile("f-3")())

	assert.Equal(t, []string{"f-3"}, b.deleted)
	assert.NotContains(t, names(m.files), "site.pdf")
	assert.Len(t, m.files, 2)
}

func TestLoadErrorIsShown(t *testing.T) {
	m := New(&fakeBackend{}, keys.DefaultKeyMap(), "127.0.0.1:8787", nil, nil, 100, 30)
	m, cmd := m.Update(filesLoadedMsg{err: errors.New("connection refused")})

	assert.Contains(t, m.View(), "connection refused")
	assert.NotNil(t, cmd)
}
