package mailbox

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/costdesk/internal/model"
)

const multipartMessage = "From: noreply@example.com\r\n" +
	"To: site@example.com\r\n" +
	"Subject: Your verification code\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=BOUNDARY\r\n" +
	"\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Use <b>111111</b> to continue.</p>\r\n" +
	"--BOUNDARY\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Your code is 482913. It expires in 10 minutes.\r\n" +
	"--BOUNDARY--\r\n"

const htmlOnlyMessage = "From: noreply@example.com\r\n" +
	"Subject: Verification code\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<div style=\"font-size:24px\"><span>7</span>305<span>21</span></div><p>Code: <strong>730521</strong></p>\r\n"

func newTestReader() *Reader {
	return NewReader(model.MailboxConfig{SubjectFilter: "verification code"}, "")
}

func TestExtractCode(t *testing.T) {
	r := newTestReader()

	tests := []struct {
		name    string
		subject string
		raw     string
		want    string
		wantOK  bool
	}{
		{name: "subject wins", subject: "Code 555123 for sign up", raw: multipartMessage, want: "555123", wantOK: true},
		{name: "plain part preferred over html", subject: "Your verification code", raw: multipartMessage, want: "482913", wantOK: true},
		{name: "html only", subject: "Verification code", raw: htmlOnlyMessage, want: "730521", wantOK: true},
		{name: "longer numbers ignored", subject: "Order 12345678", raw: "", wantOK: false},
		{name: "nothing", subject: "Welcome", raw: "Subject: Welcome\r\n\r\nHello there\r\n", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.ExtractCode(tt.subject, []byte(tt.raw))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPickNewestSince(t *testing.T) {
	r := newTestReader()
	since := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	msgs := []message{
		{subject: "Code 100000", date: since.Add(-time.Minute)},
		{subject: "Code 200000", date: since.Add(time.Minute)},
		{subject: "Code 300000", date: since.Add(2 * time.Minute)},
	}

	code, err := r.pick(msgs, since)
	require.NoError(t, err)
	assert.Equal(t, "300000", code)

	_, err = r.pick(msgs[:1], since)
	assert.ErrorIs(t, err, ErrNoCode)
}

type scriptedLookup struct {
	mu    sync.Mutex
	calls int
	after int
	err   error
}

func (s *scriptedLookup) LatestCode(ctx context.Context, since time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if s.calls < s.after {
		return "", ErrNoCode
	}
	return "654321", nil
}

func TestWaitForCode(t *testing.T) {
	t.Run("polls until found", func(t *testing.T) {
		l := &scriptedLookup{after: 3}
		msg := WaitForCode(l, time.Now(), time.Millisecond, time.Second)().(CodeMsg)
		require.NoError(t, msg.Err)
		assert.Equal(t, "654321", msg.Code)
		assert.Equal(t, 3, l.calls)
	})

	t.Run("stops on hard error", func(t *testing.T) {
		l := &scriptedLookup{err: errors.New("login failed")}
		msg := WaitForCode(l, time.Now(), time.Millisecond, time.Second)().(CodeMsg)
		require.Error(t, msg.Err)
		assert.True(t, strings.Contains(msg.Err.Error(), "login failed"))
		assert.Equal(t, 1, l.calls)
	})

	t.Run("times out", func(t *testing.T) {
		l := &scriptedLookup{after: 1 << 30}
		msg := WaitForCode(l, time.Now(), time.Millisecond, 20*time.Millisecond)().(CodeMsg)
		assert.ErrorIs(t, msg.Err, ErrNoCode)
	})
}

func silentServer(t *testing.T) (model.MailboxConfig, <-chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	accepted := make(chan struct{}, 1)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		accepted <- struct{}{}
		<-release
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return model.MailboxConfig{Host: "127.0.0.1", Port: addr.Port, Username: "site"}, accepted
}

func TestLatestCodeCancelledBeforeDial(t *testing.T) {
	cfg, accepted := silentServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReader(cfg, "secret").LatestCode(ctx, time.Now())
	assert.ErrorIs(t, err, context.Canceled)

	select {
	case <-accepted:
		t.Fatal("cancelled lookup dialed the server")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestLatestCodeCancelledMidSession(t *testing.T) {
	cfg, accepted := silentServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := NewReader(cfg, "secret").LatestCode(ctx, time.Now())
		done <- err
	}()

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("lookup never connected")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("lookup ignored cancellation")
	}
}
