package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/costdesk/internal/proxy"
)

func newProxyCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve design files to the browser from a local address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup(flags)
			if err != nil {
				return err
			}
			defer d.Close()

			if addr == "" {
				addr = d.cfg.Proxy.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving files on http://%s (ctrl+c to stop)\n", addr)
			srv := proxy.New(d.client, d.db, proxy.NewMetrics(), d.logger)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides proxy.addr)")
	return cmd
}
