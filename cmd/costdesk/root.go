package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/costdesk/internal/api"
	"github.com/nhle/costdesk/internal/credential"
	"github.com/nhle/costdesk/internal/logging"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/session"
	"github.com/nhle/costdesk/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var errNotLoggedIn = errors.New("not logged in; run `costdesk login` first")

type globalFlags struct {
	configPath string
	baseURL    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "costdesk",
		Short:         "Construction cost management in the terminal",
		Long:          "costdesk tracks design files, costs, advance payments and reports against a costdesk server.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", model.DefaultConfigPath(), "config file")
	pf.StringVar(&flags.baseURL, "api", "", "API base URL (overrides api.base_url)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (overrides log.level)")

	root.AddCommand(
		newLoginCmd(flags),
		newRegisterCmd(flags),
		newForgotPasswordCmd(flags),
		newLogoutCmd(flags),
		newWhoamiCmd(flags),
		newProxyCmd(flags),
		newExportCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "costdesk %s\n", version)
		},
	}
}

// deps holds everything a command needs to talk to the backend.
type deps struct {
	cfg     *model.AppConfig
	logger  *zap.Logger
	secrets *credential.Store
	db      *store.SQLiteStore
	client  *api.Client
	session *session.Store
	closers []io.Closer
}

func setup(flags *globalFlags) (*deps, error) {
	cfg, err := model.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.baseURL != "" {
		cfg.API.BaseURL = flags.baseURL
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	d.secrets, err = credential.Open()
	if err != nil {
		d.Close()
		return nil, err
	}

	d.db, err = store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.closers = append(d.closers, d.db)

	d.client = api.New(cfg.API.BaseURL, api.WithTimeout(cfg.API.Timeout()))
	d.session = session.New(d.client, d.secrets, d.db, logger)

	logger.Debug("configuration loaded",
		zap.String("config", flags.configPath),
		zap.String("api", cfg.API.BaseURL),
	)
	return d, nil
}

// requireSession restores the persisted session or fails.
func (d *deps) requireSession(ctx context.Context) (model.Session, error) {
	ok, err := d.session.Restore(ctx)
	if err != nil {
		return model.Session{}, err
	}
	sess, current := d.session.Current()
	if !ok || !current {
		return model.Session{}, errNotLoggedIn
	}
	return sess, nil
}

// Close releases resources in reverse order of acquisition.
func (d *deps) Close() {
	_ = d.logger.Sync()
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i].Close()
	}
}
