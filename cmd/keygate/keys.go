package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/omarluq/keygate/internal/config"
	"github.com/omarluq/keygate/internal/server"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the keys of a running keygate server",
	Long: `Query the /v1/keys endpoint of a running keygate server and print each
key's state. Secrets are never shown.`,
	RunE: runKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var keys []server.KeyView
	if err := getJSON(cmd.Context(), cfg, "/v1/keys", &keys); err != nil {
		return err
	}
	return printKeys(cmd.OutOrStdout(), keys, time.Now())
}

func printKeys(out io.Writer, keys []server.KeyView, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tSTATE\tCIRCUIT\tREQUESTS\tERRORS")
	for i := range keys {
		k := &keys[i]
		state := "free"
		switch {
		case k.Busy:
			state = "busy"
		case k.CoolingDown:
			state = "cooling " + k.RateLimitedUntil.Sub(now).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			k.Name, k.ID, state, k.Circuit, k.RequestCount, k.ErrorCount)
	}
	return w.Flush()
}
