package main

import (
	"context"
	"errors"
	"os"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/costdesk/internal/app"
	"github.com/nhle/costdesk/internal/browser"
	"github.com/nhle/costdesk/internal/credential"
	"github.com/nhle/costdesk/internal/mailbox"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/notify"
	"github.com/nhle/costdesk/internal/proxy"
	"github.com/nhle/costdesk/internal/toast"
)

func runTUI(ctx context.Context, flags *globalFlags) error {
	d, err := setup(flags)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The file view hands out proxy links, so the proxy runs alongside.
	srv := proxy.New(d.client, d.db, proxy.NewMetrics(), d.logger)
	go func() {
		if err := srv.ListenAndServe(ctx, d.cfg.Proxy.Addr); err != nil {
			d.logger.Error("file proxy stopped", zap.Error(err))
		}
	}()

	toasts := toast.New(toast.DefaultMax, toast.DefaultDuration)
	consumer := notify.New(d.client, toasts, d.logger,
		notify.WithReconnectDelay(d.cfg.Stream.ReconnectDelay()),
		notify.WithCache(d.db),
	)
	unsubscribe := d.session.Subscribe(func(s *model.Session) {
		if s == nil {
			consumer.Stop()
		}
	})
	defer unsubscribe()

	var notifier app.Notifier = consumer
	if !d.cfg.Stream.Enabled {
		notifier = pullOnly{consumer}
	}

	exportDir, err := os.Getwd()
	if err != nil {
		exportDir = "."
	}

	m := app.New(d.session, d.client, notifier, toasts, app.Options{
		ProxyAddr: d.cfg.Proxy.Addr,
		ExportDir: exportDir,
		Mailbox:   openMailbox(d),
		Open:      browser.Open,
		Copy:      clipboard.WriteAll,
		Logger:    d.logger,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	consumer.Stop()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// openMailbox returns a code reader when IMAP autofill is configured.
func openMailbox(d *deps) mailbox.Lookup {
	if !d.cfg.Mailbox.Enabled {
		return nil
	}
	password, err := d.secrets.Get(credential.MailboxPasswordKey)
	if err != nil {
		d.logger.Warn("mailbox autofill disabled: no stored password", zap.Error(err))
		return nil
	}
	return mailbox.NewReader(d.cfg.Mailbox, password)
}

// pullOnly keeps the notification list without opening the live stream.
type pullOnly struct {
	*notify.Consumer
}

func (pullOnly) Start(string) {}
