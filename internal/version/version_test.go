package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omarluq/keygate/internal/version"
)

func TestStringDefaults(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "dev (commit: none, built: unknown)", version.String())
}
