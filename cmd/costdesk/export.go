package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/costdesk/internal/api"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/report"
	"github.com/nhle/costdesk/internal/validate"
)

func newExportCmd(flags *globalFlags) *cobra.Command {
	var (
		rng model.ReportRange
		dir string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the cost report as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, date := range []string{rng.From, rng.To} {
				if err := validate.OptionalDate(date); err != nil {
					return err
				}
			}
			if rng.From != "" && rng.To != "" && rng.To < rng.From {
				return errors.New("end date is before start date")
			}

			d, err := setup(flags)
			if err != nil {
				return err
			}
			defer d.Close()

			sess, err := d.requireSession(cmd.Context())
			if err != nil {
				return err
			}

			data, err := d.client.ExportReportCSV(cmd.Context(), rng)
			if err != nil {
				return errors.New(api.UserMessage(err, sess.Role))
			}

			if dir == "" {
				if dir, err = os.Getwd(); err != nil {
					return err
				}
			}
			path, err := report.WriteExport(dir, rng, data, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&rng.From, "from", "", "first day, YYYY-MM-DD")
	f.StringVar(&rng.To, "to", "", "last day, YYYY-MM-DD")
	f.StringVarP(&dir, "dir", "d", "", "output directory (default: current directory)")
	return cmd
}
