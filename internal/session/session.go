package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/costdesk/internal/api"
	"github.com/nhle/costdesk/internal/credential"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/store"
)

// Backend is the subset of the API client the session store uses.
type Backend interface {
	Login(ctx context.Context, email, password string) (*model.AuthResponse, error)
	SendRegisterOTP(ctx context.Context, email string) (*model.OTPChallenge, error)
	Register(ctx context.Context, email, password, otpCode string) (*model.AuthResponse, error)
	SendForgotPasswordOTP(ctx context.Context, email string) (*model.OTPChallenge, error)
	ResetPassword(ctx context.Context, email, otpCode, newPassword string) error
	Me(ctx context.Context) (*model.User, error)
	SetToken(token string)
}

// Secrets holds the bearer token.
type Secrets interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Local holds the user profile and the mirrored session cookie.
type Local interface {
	SetItem(ctx context.Context, key, value string) error
	GetItem(ctx context.Context, key string) (string, error)
	RemoveItem(ctx context.Context, key string) error
	SetCookie(ctx context.Context, c store.Cookie) error
	DeleteCookie(ctx context.Context, name string) error
}

// Listener is called after every authentication change. s is nil after
// logout.
type Listener func(s *model.Session)

// Store owns the single authenticated session of the process.
type Store struct {
	backend Backend
	secrets Secrets
	local   Local
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.RWMutex
	session   *model.Session
	listeners map[int]Listener
	nextID    int
}

// New creates an unauthenticated session store.
func New(backend Backend, secrets Secrets, local Local, logger *zap.Logger) *Store {
	return &Store{
		backend:   backend,
		secrets:   secrets,
		local:     local,
		logger:    logger.Named("session"),
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// Login exchanges credentials for a session and persists it. Backend
// errors are returned unchanged so the caller can show the server's text.
func (s *Store) Login(ctx context.Context, email, password string) (*model.Session, error) {
	resp, err := s.backend.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, resp), nil
}

// SendRegisterOTP starts registration by emailing a code to email.
func (s *Store) SendRegisterOTP(ctx context.Context, email string) (*model.OTPChallenge, error) {
	ch, err := s.backend.SendRegisterOTP(ctx, email)
	s.checkChallenge(ch, "register")
	return ch, err
}

// Register finishes registration with the emailed code and signs in.
func (s *Store) Register(ctx context.Context, email, password, otpCode string) (*model.Session, error) {
	resp, err := s.backend.Register(ctx, email, password, otpCode)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, resp), nil
}

// SendForgotPasswordOTP starts password recovery by emailing a code.
func (s *Store) SendForgotPasswordOTP(ctx context.Context, email string) (*model.OTPChallenge, error) {
	ch, err := s.backend.SendForgotPasswordOTP(ctx, email)
	s.checkChallenge(ch, "forgot-password")
	return ch, err
}

// checkChallenge logs challenges that arrive without an expiry. Such
// codes get no client-side countdown.
func (s *Store) checkChallenge(ch *model.OTPChallenge, flow string) {
	if ch != nil && ch.ExpiresAt.IsZero() {
		s.logger.Warn("verification code challenge has no expiry", zap.String("flow", flow))
	}
}

// ResetPassword sets a new password with the emailed code. It does not
// sign the user in.
func (s *Store) ResetPassword(ctx context.Context, email, otpCode, newPassword string) error {
	return s.backend.ResetPassword(ctx, email, otpCode, newPassword)
}

// Logout clears the in-memory session and everything persisted for it.
// Persistence failures are logged; the caller always ends up logged out.
func (s *Store) Logout() {
	s.mu.Lock()
	wasActive := s.session != nil
	s.session = nil
	s.mu.Unlock()

	s.backend.SetToken("")
	s.clearPersisted(context.Background())

	if wasActive {
		s.logger.Info("logged out")
	}
	s.notify(nil)
}

// Restore loads a persisted session and checks it against the backend.
// A 401 destroys it; other failures keep the cached profile so the app
// can start while the backend is unreachable.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	token, err := s.secrets.Get(credential.SessionTokenKey)
	if errors.Is(err, credential.ErrNotFound) || (err == nil && token == "") {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session.Restore: %w", err)
	}

	var user model.User
	raw, err := s.local.GetItem(ctx, store.KeyUser)
	if err == nil {
		if jsonErr := json.Unmarshal([]byte(raw), &user); jsonErr != nil {
			s.logger.Warn("discarding unreadable cached user", zap.Error(jsonErr))
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("session.Restore: %w", err)
	}

	s.backend.SetToken(token)
	me, err := s.backend.Me(ctx)
	switch {
	case api.IsUnauthorized(err):
		s.logger.Info("persisted session rejected by backend")
		s.Logout()
		return false, nil
	case err != nil:
		if user.ID == "" {
			s.backend.SetToken("")
			return false, fmt.Errorf("session.Restore: %w", err)
		}
		s.logger.Warn("could not verify session, using cached profile", zap.Error(err))
	default:
		user = *me
	}

	s.establish(ctx, &model.AuthResponse{Token: token, User: user})
	return true, nil
}

// Current returns the active session, if any.
func (s *Store) Current() (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return model.Session{}, false
	}
	return *s.session, true
}

// IsAuthenticated reports whether a session is active.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Current()
	return ok
}

// IsAdmin reports whether the active session belongs to a super admin.
func (s *Store) IsAdmin() bool {
	sess, ok := s.Current()
	return ok && sess.IsAdmin()
}

// Role returns the active role, or the empty role when logged out.
func (s *Store) Role() model.Role {
	sess, _ := s.Current()
	return sess.Role
}

// Token returns the active bearer token, or "" when logged out.
func (s *Store) Token() string {
	sess, _ := s.Current()
	return sess.Token
}

// Subscribe registers fn for authentication changes and returns a
// function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) establish(ctx context.Context, resp *model.AuthResponse) *model.Session {
	sess := model.NewSession(resp.Token, resp.User)

	s.mu.Lock()
	s.session = &sess
	s.mu.Unlock()

	s.backend.SetToken(sess.Token)
	s.persist(ctx, sess)
	s.logger.Info("session established",
		zap.String("user_id", sess.UserID),
		zap.String("role", string(sess.Role)),
	)

	out := sess
	s.notify(&out)
	return &sess
}

func (s *Store) persist(ctx context.Context, sess model.Session) {
	if err := s.secrets.Set(credential.SessionTokenKey, sess.Token); err != nil {
		s.logger.Warn("persisting token failed", zap.Error(err))
	}

	data, err := json.Marshal(sess.User)
	if err == nil {
		err = s.local.SetItem(ctx, store.KeyUser, string(data))
	}
	if err != nil {
		s.logger.Warn("persisting user failed", zap.Error(err))
	}

	if err := s.local.SetCookie(ctx, store.NewSessionCookie(sess.Token, s.now())); err != nil {
		s.logger.Warn("persisting session cookie failed", zap.Error(err))
	}
}

func (s *Store) clearPersisted(ctx context.Context) {
	if err := s.secrets.Delete(credential.SessionTokenKey); err != nil {
		s.logger.Warn("clearing token failed", zap.Error(err))
	}
	if err := s.local.RemoveItem(ctx, store.KeyUser); err != nil {
		s.logger.Warn("clearing user failed", zap.Error(err))
	}
	if err := s.local.DeleteCookie(ctx, store.SessionCookieName); err != nil {
		s.logger.Warn("clearing session cookie failed", zap.Error(err))
	}
}

func (s *Store) notify(sess *model.Session) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(sess)
	}
}
