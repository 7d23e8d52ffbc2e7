package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/omarluq/keygate/internal/config"
	"github.com/omarluq/keygate/internal/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show key occupancy of a running keygate server",
	Long: `Query the /v1/status endpoint of a running keygate server and print
how many keys are busy, free or cooling down.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var status server.StatusResponse
	if err := getJSON(cmd.Context(), cfg, "/v1/status", &status); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "✗ keygate is not available (%s)\n", cfg.Server.GetEffectiveListen())
		return err
	}
	printStatus(cmd.OutOrStdout(), cfg.Server.GetEffectiveListen(), &status)
	return nil
}

func printStatus(w io.Writer, listen string, s *server.StatusResponse) {
	fmt.Fprintf(w, "✓ keygate is running (%s, %s mode)\n", listen, s.Mode)
	fmt.Fprintf(w, "  keys:     %d total, %d busy, %d free, %d cooling down\n",
		s.TotalKeys, s.BusyKeys, s.FreeKeys, s.CoolingKeys)
	fmt.Fprintf(w, "  waiting:  %d (estimated wait %.1fs)\n", s.Waiting, s.EstimatedWaitSeconds)
	fmt.Fprintf(w, "  sessions: %d active\n", s.ActiveSessions)
	fmt.Fprintf(w, "  requests: %d ok, %d errors\n", s.TotalRequests, s.TotalErrors)
	if s.CurrentKey != "" {
		fmt.Fprintf(w, "  current:  %s\n", s.CurrentKey)
	}
	if s.IsFull {
		fmt.Fprintln(w, "  all keys are busy")
	}
}
