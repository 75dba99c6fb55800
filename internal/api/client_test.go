package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/costdesk/internal/model"
)

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pm@site.io", body["email"])
		assert.Equal(t, "hunter2", body["password"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.AuthResponse{ //nolint:errcheck
			Token: "tok-1",
			User:  model.User{ID: "u1", Email: "pm@site.io", Role: model.RoleSuperAdmin},
		})
	}))
	defer srv.Close()

	c := New(srv.URL + "/api/")
	resp, err := c.Login(context.Background(), "pm@site.io", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", resp.Token)
	assert.Equal(t, model.RoleSuperAdmin, resp.User.Role)
}

func TestErrorMessagePassThrough(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"message field", http.StatusBadRequest, `{"message":"Invalid email or password"}`, "Invalid email or password"},
		{"error field", http.StatusConflict, `{"error":"Email already registered"}`, "Email already registered"},
		{"plain text", http.StatusBadGateway, "upstream down\n", "upstream down"},
		{"empty body", http.StatusInternalServerError, "", "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body) //nolint:errcheck
			}))
			defer srv.Close()

			_, err := New(srv.URL).Login(context.Background(), "a@b.c", "x")
			require.Error(t, err)

			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.wantMsg, httpErr.Message)
			assert.Equal(t, tt.wantMsg, ServerMessage(err))
		})
	}
}

func TestBearerTokenAttached(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.SetToken("secret")
	_, err := c.ListAdvances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)

	other := c.WithToken("other")
	_, err = other.ListAdvances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer other", gotAuth)
	assert.Equal(t, "secret", c.Token())
}

func TestDeleteAdvance(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).DeleteAdvance(context.Background(), "adv-1"))
	assert.Equal(t, "/advances/adv-1", gotPath)
	assert.Equal(t, http.MethodDelete, gotMethod)
}

func TestListCostsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cat-1", r.URL.Query().Get("categoryId"))
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("from"))
		assert.Empty(t, r.URL.Query().Get("to"))
		w.Write([]byte(`[{"id":"c1","amount":12.5}]`)) //nolint:errcheck
	}))
	defer srv.Close()

	costs, err := New(srv.URL).ListCosts(context.Background(), model.CostFilter{CategoryID: "cat-1", From: "2024-01-01"})
	require.NoError(t, err)
	require.Len(t, costs, 1)
	assert.Equal(t, 12.5, costs[0].Amount)
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestUploadOverLimitMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	_, err := New(srv.URL).UploadFile(context.Background(), Upload{
		Name: "tower.pdf",
		Size: model.MaxUploadSize + 1,
		Body: io.LimitReader(zeroReader{}, model.MaxUploadSize+1),
	})
	require.Error(t, err)
	assert.Equal(t, KindValidation, Classify(err))
	assert.Contains(t, UserMessage(err, model.RoleSuperAdmin), "exceeds the 500 MiB upload limit")
	assert.Equal(t, int32(0), hits.Load())
}

func TestUploadPathOverLimitMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "big.pdf")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(model.MaxUploadSize+1))
	require.NoError(t, f.Close())

	_, err = New(srv.URL).UploadPath(context.Background(), path, "")
	require.Error(t, err)
	assert.Equal(t, KindValidation, Classify(err))
	assert.Equal(t, int32(0), hits.Load())
}

func TestUploadAtLimitAccepted(t *testing.T) {
	if testing.Short() {
		t.Skip("streams 500 MiB")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		require.NoError(t, err)
		part, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "file", part.FormName())
		n, err := io.Copy(io.Discard, part)
		require.NoError(t, err)
		assert.Equal(t, model.MaxUploadSize, n)

		json.NewEncoder(w).Encode(model.DesignFile{ID: "f1", Name: "tower.pdf", Size: n}) //nolint:errcheck
	}))
	defer srv.Close()

	created, err := New(srv.URL).UploadFile(context.Background(), Upload{
		Name: "tower.pdf",
		Size: model.MaxUploadSize,
		Body: io.LimitReader(zeroReader{}, model.MaxUploadSize),
	})
	require.NoError(t, err)
	assert.Equal(t, "f1", created.ID)
	assert.Equal(t, model.MaxUploadSize, created.Size)
}

func TestUploadPathSendsDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "ground floor", r.FormValue("description"))
		file, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "plan.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.4", string(data))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"f9","name":"plan.pdf"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "plan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	created, err := New(srv.URL).UploadPath(context.Background(), path, "ground floor")
	require.NoError(t, err)
	assert.Equal(t, "f9", created.ID)
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/f1/download", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `inline; filename="plan.pdf"`)
		w.Write([]byte("%PDF")) //nolint:errcheck
	}))
	defer srv.Close()

	dl, err := New(srv.URL).WithToken("tok").DownloadFile(context.Background(), "f1")
	require.NoError(t, err)
	defer dl.Body.Close()

	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
	assert.Equal(t, "application/pdf", dl.ContentType)
	assert.Equal(t, `inline; filename="plan.pdf"`, dl.ContentDisposition)
}

func TestDownloadFileNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"File not found"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := New(srv.URL).DownloadFile(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
}

func TestExportReportCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reports/export", r.URL.Path)
		assert.Equal(t, "2024-03-01", r.URL.Query().Get("from"))
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("category,total\nConcrete,100\n")) //nolint:errcheck
	}))
	defer srv.Close()

	data, err := New(srv.URL).ExportReportCSV(context.Background(), model.ReportRange{From: "2024-03-01"})
	require.NoError(t, err)
	assert.Equal(t, "category,total\nConcrete,100\n", string(data))
}

func TestNotificationStreamURL(t *testing.T) {
	c := New("https://costs.example.com/api")
	assert.Equal(t,
		"https://costs.example.com/api/notifications/stream?token=a%2Bb%3D",
		c.NotificationStreamURL("a+b="),
	)
}

func TestMarkNotificationsRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/read", r.URL.Path)
		var body markReadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"n1", "n2"}, body.IDs)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).MarkNotificationsRead(context.Background(), []string{"n1", "n2"}))
}
