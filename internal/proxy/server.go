// Package proxy serves design files to the local browser on a
// same-origin URL. The bearer token travels in a header or cookie and is
// never placed in the link.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nhle/costdesk/internal/api"
	"github.com/nhle/costdesk/internal/store"
)

// CacheControl is set on every successful file response.
const CacheControl = "private, max-age=3600"

// CookieSource looks up the persisted session cookie.
type CookieSource interface {
	GetCookie(ctx context.Context, name string, now time.Time) (*store.Cookie, error)
}

// Server forwards file view requests to the backend.
type Server struct {
	client  *api.Client
	cookies CookieSource
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a proxy. cookies may be nil, in which case only the request
// header and cookie are consulted.
func New(client *api.Client, cookies CookieSource, metrics *Metrics, logger *zap.Logger) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{
		client:  client,
		cookies: cookies,
		metrics: metrics,
		logger:  logger.Named("proxy"),
		now:     time.Now,
	}
}

// ViewURL returns the browser link for file id on a proxy listening at addr.
func ViewURL(addr, id string) string {
	return "http://" + addr + "/api/files/" + url.PathEscape(id) + "/view"
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.metrics.Middleware)

	r.HandleFunc("/api/files/{id}/view", s.handleView).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	return r
}

// ListenAndServe runs the proxy on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("file proxy listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("file proxy: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("file proxy shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	log := s.logger.With(zap.String("file_id", id))

	token := s.resolveToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	dl, err := s.client.WithToken(token).DownloadFile(r.Context(), id)
	if err != nil {
		status := http.StatusBadGateway
		var httpErr *api.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.StatusCode
		}
		s.metrics.UpstreamErrors.WithLabelValues(strconv.Itoa(status)).Inc()
		log.Warn("file download failed", zap.Int("status", status), zap.Error(err))
		writeJSON(w, status, map[string]string{"error": api.ServerMessage(err)})
		return
	}
	defer dl.Body.Close() //nolint:errcheck // best-effort close

	contentType := dl.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	disposition := dl.ContentDisposition
	if disposition == "" {
		disposition = fmt.Sprintf("inline; filename=%q", id+".pdf")
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", disposition)
	h.Set("Cache-Control", CacheControl)
	if dl.ContentLength > 0 {
		h.Set("Content-Length", strconv.FormatInt(dl.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, dl.Body)
	s.metrics.BytesServed.Add(float64(n))
	if err != nil {
		log.Warn("streaming file to client interrupted", zap.Int64("bytes", n), zap.Error(err))
		return
	}
	log.Debug("file served", zap.Int64("bytes", n))
}

// resolveToken checks the Authorization header, then the session cookie
// on the request, then the persisted session cookie.
func (s *Server) resolveToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok && strings.TrimSpace(tok) != "" {
			return strings.TrimSpace(tok)
		}
	}

	if c, err := r.Cookie(store.SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	if s.cookies == nil {
		return ""
	}
	c, err := s.cookies.GetCookie(r.Context(), store.SessionCookieName, s.now())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("reading persisted session cookie", zap.Error(err))
		}
		return ""
	}
	return c.Value
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
