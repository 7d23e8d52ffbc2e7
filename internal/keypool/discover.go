package keypool

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// DefaultName is the primary variable consulted when no name is configured.
const DefaultName = "ZHIPU_API_KEY"

// Entry is a discovered credential before it enters the pool.
type Entry struct {
	Name   string
	Secret string
}

// Discover collects credentials from src.
//
// It reads the primary variable name, then name_1, name_2, ... and stops at
// the first index that is missing or blank. A blank primary is skipped. If
// listVar is set, its value is split on commas and each non-blank element
// becomes listVar_<n>. A secret seen twice is only kept under its first name.
func Discover(src Source, name, listVar string) []Entry {
	if name == "" {
		name = DefaultName
	}

	var entries []Entry
	add := func(n, secret string) {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			return
		}
		entries = append(entries, Entry{Name: n, Secret: secret})
	}

	if v, ok := src.Lookup(name); ok {
		add(name, v)
	}
	for i := 1; ; i++ {
		n := fmt.Sprintf("%s_%d", name, i)
		v, ok := src.Lookup(n)
		if !ok || strings.TrimSpace(v) == "" {
			break
		}
		add(n, v)
	}

	if listVar != "" {
		if v, ok := src.Lookup(listVar); ok {
			for i, part := range strings.Split(v, ",") {
				add(fmt.Sprintf("%s_%d", listVar, i+1), part)
			}
		}
	}

	unique := lo.UniqBy(entries, func(e Entry) string { return e.Secret })
	if dropped := len(entries) - len(unique); dropped > 0 {
		log.Warn().
			Int("duplicates", dropped).
			Msg("Skipped duplicate API keys")
	}
	return unique
}
