package cli

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"example.com/abtest/internal/config"
	"example.com/abtest/internal/metrics"
	transport "example.com/abtest/internal/transport/http"
)

func newReportCmd(cfg func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the current A/B report as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			rep, err := metrics.NewService(a.store, a.catalog).Report(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(transport.NewReportResponse(rep, time.Now().UTC()))
		},
	}
}
