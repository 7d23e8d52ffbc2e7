package keypool

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Source resolves env-style variable names to values.
type Source interface {
	Lookup(key string) (string, bool)
}

// EnvSource reads the process environment.
type EnvSource struct{}

// Lookup implements Source.
func (EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapSource is a fixed set of variables, mostly useful in tests.
type MapSource map[string]string

// Lookup implements Source.
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

type layeredSource []Source

func (l layeredSource) Lookup(key string) (string, bool) {
	for _, src := range l {
		if src == nil {
			continue
		}
		if v, ok := src.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}

// Layered combines sources; the first source defining a variable wins.
func Layered(sources ...Source) Source {
	return layeredSource(sources)
}

// LoadDotEnv reads a .env file into a MapSource. A missing file yields an
// empty source and no error.
func LoadDotEnv(path string) (MapSource, error) {
	if path == "" {
		return MapSource{}, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return MapSource{}, nil
		}
		return nil, fmt.Errorf("keypool: failed to read env file %s: %w", path, err)
	}
	return MapSource(values), nil
}
