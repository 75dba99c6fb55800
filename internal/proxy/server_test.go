package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/costdesk/internal/api"
	"github.com/nhle/costdesk/internal/store"
	"github.com/nhle/costdesk/tests/testutil"
)

const pdfBytes = "%PDF-1.4\n%fake\n"

type upstreamCall struct {
	path string
	auth string
}

// newUpstream fakes the backend download endpoint. Files named "plain"
// come back without content headers.
func newUpstream(t *testing.T, calls *[]upstreamCall) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls = append(*calls, upstreamCall{path: r.URL.Path, auth: r.Header.Get("Authorization")})

		switch r.URL.Path {
		case "/files/plain/download":
			w.Header()["Content-Type"] = nil
			_, _ = io.WriteString(w, pdfBytes)
		case "/files/drawing-1/download":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Content-Disposition", `attachment; filename="Floor plan.pdf"`)
			_, _ = io.WriteString(w, pdfBytes)
		case "/files/expired/download":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"Token expired"}`)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"File not found"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProxy(t *testing.T, cookies CookieSource) (http.Handler, *[]upstreamCall) {
	t.Helper()
	calls := &[]upstreamCall{}
	upstream := newUpstream(t, calls)
	s := New(api.New(upstream.URL), cookies, NewMetrics(), zaptest.NewLogger(t))
	return s.Router(), calls
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func TestViewWithBearerHeader(t *testing.T) {
	h, calls := newTestProxy(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/files/drawing-1/view", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pdfBytes, rec.Body.String())
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Floor plan.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, CacheControl, rec.Header().Get("Cache-Control"))

	require.Len(t, *calls, 1)
	assert.Equal(t, "/files/drawing-1/download", (*calls)[0].path)
	assert.Equal(t, "Bearer header-token", (*calls)[0].auth)
}

func TestViewDefaultsContentHeaders(t *testing.T) {
	h, _ := newTestProxy(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/files/plain/view", nil)
	req.AddCookie(&http.Cookie{Name: store.SessionCookieName, Value: "cookie-token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename="plain.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "private, max-age=3600", rec.Header().Get("Cache-Control"))
}

func TestTokenResolutionOrder(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore(t)
	require.NoError(t, st.SetCookie(ctx, store.NewSessionCookie("persisted-token", time.Now())))

	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{name: "header first", header: "Bearer h", cookie: "c", want: "Bearer h"},
		{name: "request cookie next", cookie: "c", want: "Bearer c"},
		{name: "persisted cookie last", want: "Bearer persisted-token"},
		{name: "malformed header falls through", header: "Basic abc", cookie: "c", want: "Bearer c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, calls := newTestProxy(t, st)

			req := httptest.NewRequest(http.MethodGet, "/api/files/drawing-1/view", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: store.SessionCookieName, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, *calls, 1)
			assert.Equal(t, tt.want, (*calls)[0].auth)
		})
	}
}

func TestViewWithoutTokenIsUnauthorized(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewTestStore(t)
	expired := store.NewSessionCookie("old", time.Now().Add(-8*24*time.Hour))
	require.NoError(t, st.SetCookie(ctx, expired))

	h, calls := newTestProxy(t, st)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/drawing-1/view", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Unauthorized", decodeError(t, rec))
	assert.Empty(t, *calls, "no upstream call without a token")
}

func TestViewPassesUpstreamErrors(t *testing.T) {
	h, _ := newTestProxy(t, nil)

	tests := []struct {
		id      string
		status  int
		message string
	}{
		{id: "missing", status: http.StatusNotFound, message: "File not found"},
		{id: "expired", status: http.StatusUnauthorized, message: "Token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/files/"+tt.id+"/view", nil)
			req.Header.Set("Authorization", "Bearer tok")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Empty(t, rec.Header().Get("Cache-Control"))
			assert.Equal(t, tt.message, decodeError(t, rec))
		})
	}
}

func TestUnreachableUpstreamIsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	base := upstream.URL
	upstream.Close()

	h := New(api.New(base), nil, nil, zaptest.NewLogger(t)).Router()

	req := httptest.NewRequest(http.MethodGet, "/api/files/x/view", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestProxy(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/files/drawing-1/view", nil)
	req.Header.Set("Authorization", "Bearer tok")
	h.ServeHTTP(httptest.NewRecorder(), req)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `costdesk_proxy_requests_total{method="GET",route="/api/files/{id}/view",status="200"} 1`), body)
	assert.True(t, strings.Contains(body, "costdesk_proxy_bytes_served_total"), body)
}

func TestViewURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8787/api/files/a%2Fb/view", ViewURL("127.0.0.1:8787", "a/b"))
}
