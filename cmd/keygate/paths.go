package main

import (
	"os"
	"path/filepath"
)

// configPath returns --config or the first config file found in the
// default locations.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return findConfigInWithHome(wd, home)
}

// findConfigIn looks for the config file in dir only.
func findConfigIn(dir string) string {
	return findConfigInWithHome(dir, "")
}

// findConfigInWithHome checks dir, then home/.config/keygate. When neither
// has one it returns the bare default name, which fails to load later.
func findConfigInWithHome(dir, home string) string {
	candidates := []string{filepath.Join(dir, defaultConfigFile)}
	if home != "" {
		candidates = append(candidates, defaultUserConfig(home))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return defaultConfigFile
}

func defaultUserConfig(home string) string {
	return filepath.Join(home, ".config", "keygate", defaultConfigFile)
}
