// Package mailbox reads one-time verification codes from an IMAP inbox so
// the OTP prompt can be filled without switching to a mail client.
package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"github.com/microcosm-cc/bluemonday"

	"github.com/nhle/costdesk/internal/model"
)

// ErrNoCode is returned when no matching message carries a code yet.
var ErrNoCode = errors.New("no verification code found")

// scanLimit is how many of the newest matching messages are inspected.
const scanLimit = 5

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

// Reader looks up verification codes in an IMAP inbox.
type Reader struct {
	cfg      model.MailboxConfig
	password string
	policy   *bluemonday.Policy
}

// NewReader creates a reader for the configured mailbox.
func NewReader(cfg model.MailboxConfig, password string) *Reader {
	return &Reader{
		cfg:      cfg,
		password: password,
		policy:   bluemonday.StrictPolicy(),
	}
}

// connect dials the server and logs in. Cancelling ctx closes the
// connection, which fails any command still in flight.
func (r *Reader) connect(ctx context.Context) (*imapclient.Client, func() bool, error) {
	addr := net.JoinHostPort(r.cfg.Host, strconv.Itoa(r.cfg.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", addr, interrupted(ctx, err))
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	tlsConfig := &tls.Config{ServerName: r.cfg.Host}
	var client *imapclient.Client
	if r.cfg.TLS {
		client = imapclient.New(tls.Client(conn, tlsConfig), nil)
	} else {
		client, err = imapclient.NewStartTLS(conn, &imapclient.Options{TLSConfig: tlsConfig})
		if err != nil {
			stop()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", addr, interrupted(ctx, err))
		}
	}

	if err := client.Login(r.cfg.Username, r.password).Wait(); err != nil {
		stop()
		_ = client.Close()
		return nil, nil, fmt.Errorf("IMAP login as %s: %w", r.cfg.Username, interrupted(ctx, err))
	}
	return client, stop, nil
}

// interrupted prefers the context error over the I/O error it caused.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// LatestCode returns the code from the newest message received at or
// after since whose subject contains the configured filter.
func (r *Reader) LatestCode(ctx context.Context, since time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client, stop, err := r.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = client.Logout().Wait()
		stop()
	}()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return "", fmt.Errorf("selecting INBOX: %w", interrupted(ctx, err))
	}

	// SINCE is day-granular; the envelope date is checked below.
	criteria := &imap.SearchCriteria{Since: since}
	if r.cfg.SubjectFilter != "" {
		criteria.Header = []imap.SearchCriteriaHeaderField{
			{Key: "Subject", Value: r.cfg.SubjectFilter},
		}
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return "", fmt.Errorf("searching messages: %w", interrupted(ctx, err))
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return "", ErrNoCode
	}
	if len(uids) > scanLimit {
		uids = uids[len(uids)-scanLimit:]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	var found []message
	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		m := message{raw: buf.FindBodySection(bodySection)}
		if buf.Envelope != nil {
			m.subject = buf.Envelope.Subject
			m.date = buf.Envelope.Date
		}
		found = append(found, m)
	}
	if err := fetchCmd.Close(); err != nil {
		return "", fmt.Errorf("fetching messages: %w", interrupted(ctx, err))
	}

	return r.pick(found, since)
}

type message struct {
	subject string
	date    time.Time
	raw     []byte
}

// pick returns the code of the newest message dated at or after since.
func (r *Reader) pick(msgs []message, since time.Time) (string, error) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].date.After(msgs[j].date) })

	for _, m := range msgs {
		if !m.date.IsZero() && m.date.Before(since) {
			continue
		}
		if code, ok := r.ExtractCode(m.subject, m.raw); ok {
			return code, nil
		}
	}
	return "", ErrNoCode
}

// ExtractCode finds a six-digit code in the subject or the MIME body of
// raw. Plain text parts win over HTML parts.
func (r *Reader) ExtractCode(subject string, raw []byte) (string, bool) {
	if code, ok := findCode(subject); ok {
		return code, true
	}
	if len(raw) == 0 {
		return "", false
	}

	text, htmlBody := r.bodies(raw)
	if code, ok := findCode(text); ok {
		return code, true
	}
	return findCode(r.policy.Sanitize(htmlBody))
}

func (r *Reader) bodies(raw []byte) (text, htmlBody string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), ""
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			text = string(body)
		case strings.HasPrefix(contentType, "text/html"):
			htmlBody = string(body)
		}
	}
	return text, htmlBody
}

func findCode(s string) (string, bool) {
	m := codePattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CodeMsg carries the outcome of a mailbox lookup.
type CodeMsg struct {
	Code string
	Err  error
}

// Lookup is the subset of Reader used by the UI.
type Lookup interface {
	LatestCode(ctx context.Context, since time.Time) (string, error)
}

// WaitForCode polls l every interval until a code shows up or timeout
// elapses, then reports a CodeMsg.
func WaitForCode(l Lookup, since time.Time, interval, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			code, err := l.LatestCode(ctx, since)
			if err == nil {
				return CodeMsg{Code: code}
			}
			if !errors.Is(err, ErrNoCode) {
				return CodeMsg{Err: err}
			}

			select {
			case <-ctx.Done():
				return CodeMsg{Err: ErrNoCode}
			case <-ticker.C:
			}
		}
	}
}
