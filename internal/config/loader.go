package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a supported configuration file format.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// UnsupportedFormatError is returned for config files with an unknown extension.
type UnsupportedFormatError struct {
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported config format %q (supported: .yaml, .yml, .toml)", e.Extension)
}

func detectFormat(path string) (Format, error) {
	ext := filepath.Ext(path)
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", &UnsupportedFormatError{Extension: ext}
	}
}

// Load reads and parses a configuration file from the given path.
// The format is chosen by extension. Environment variables in the format
// ${VAR_NAME} are expanded before parsing.
func Load(path string) (cfg *Config, err error) {
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}

	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close config file: %w", cerr)
		}
	}()

	return LoadFromReaderWithFormat(file, format)
}

// LoadFromReader reads and parses YAML configuration from an io.Reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	return LoadFromReaderWithFormat(r, FormatYAML)
}

// LoadFromReaderWithFormat reads and parses configuration in the given format.
// Environment variables in the format ${VAR_NAME} are expanded before parsing.
func LoadFromReaderWithFormat(r io.Reader, format Format) (*Config, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := []byte(os.ExpandEnv(string(content)))

	var cfg Config
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		return nil, &UnsupportedFormatError{Extension: string(format)}
	}

	return &cfg, nil
}
