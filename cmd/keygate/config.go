package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omarluq/keygate/internal/config"
	"github.com/omarluq/keygate/internal/keypool"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the configuration file without starting the server.
Checks syntax and field values, and reports how many API keys the key
settings discover in the current environment.`,
	RunE: runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	path := configPath()

	cfg, err := config.Load(path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(out, "✗ Config validation failed: %s\n", err)
		return err
	}

	n, err := discoveredKeys(cfg)
	if err != nil {
		fmt.Fprintf(out, "✗ Config validation failed: %s\n", err)
		return err
	}

	fmt.Fprintf(out, "✓ %s is valid\n", path)
	if n == 0 {
		fmt.Fprintf(out, "! no API keys found in %s or %s_<n>\n",
			cfg.Keys.GetEffectiveName(), cfg.Keys.GetEffectiveName())
		return nil
	}
	fmt.Fprintf(out, "  %d API key(s) discovered\n", n)
	return nil
}

func discoveredKeys(cfg *config.Config) (int, error) {
	dotenv, err := keypool.LoadDotEnv(cfg.Keys.EnvFile)
	if err != nil {
		return 0, err
	}
	entries := keypool.Discover(
		keypool.Layered(keypool.EnvSource{}, dotenv),
		cfg.Keys.GetEffectiveName(),
		cfg.Keys.ListVar,
	)
	return len(entries), nil
}
