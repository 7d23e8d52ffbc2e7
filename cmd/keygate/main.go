// Package main is the entry point for keygate.
package main

import (
	"context"
	"os"

	"charm.land/fang/v2"
	"github.com/spf13/cobra"

	"github.com/omarluq/keygate/internal/version"
)

const defaultConfigFile = "keygate.yaml"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "keygate",
	Short: "API key rotation and admission control for chat completion upstreams",
	Long: `keygate pools the API keys of a rate-limited chat completion service and
hands them out safely: one in-flight request per key, rotation away from
keys that hit rate limits, and per-user supersession of stale requests.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file path (default: ./"+defaultConfigFile+" or ~/.config/keygate/"+defaultConfigFile+")")
}

func main() {
	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version.String())); err != nil {
		os.Exit(1)
	}
}
