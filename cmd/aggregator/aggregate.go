package main

import (
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"deal_aggregator/internal/domain"
)

type aggregateOutput struct {
	Success   bool              `json:"success"`
	Count     int               `json:"count"`
	Deals     []domain.Deal     `json:"deals"`
	Timestamp time.Time         `json:"timestamp"`
	Degraded  bool              `json:"degraded,omitempty"`
	Debug     *domain.DebugInfo `json:"debug,omitempty"`
}

func aggregateCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Run the pipeline once and print the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the result
			logger = setupLoggerTo(os.Stderr, cfg.LogLevel)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.aggregator.Aggregate(cmd.Context())
			if err != nil {
				return err
			}

			out := aggregateOutput{
				Success:   result.Success,
				Count:     result.Count,
				Deals:     result.Deals,
				Timestamp: result.Timestamp,
				Degraded:  result.Degraded,
			}
			if debug {
				out.Debug = &result.Debug
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "include per-source counts and samples")
	return cmd
}
