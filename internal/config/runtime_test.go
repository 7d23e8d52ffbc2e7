package config_test

import (
	"sync"
	"testing"

	"github.com/omarluq/keygate/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestRuntimeGetStore(t *testing.T) {
	t.Parallel()

	first := &config.Config{Gate: config.GateConfig{Mode: "local"}}
	runtime := config.NewRuntime(first)
	assert.Same(t, first, runtime.Get())

	second := &config.Config{Gate: config.GateConfig{Mode: "file_lock"}}
	runtime.Store(second)
	assert.Same(t, second, runtime.Get())
	assert.Equal(t, "local", first.Gate.Mode, "old config untouched")
}

func TestRuntimeConcurrentAccess(t *testing.T) {
	t.Parallel()
	runtime := config.NewRuntime(&config.Config{})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			runtime.Store(&config.Config{Keys: config.KeysConfig{RPMLimit: i}})
		}()
		go func() {
			defer wg.Done()
			assert.NotNil(t, runtime.Get())
		}()
	}
	wg.Wait()
}

func TestRuntimeImplementsRuntimeConfig(t *testing.T) {
	t.Parallel()
	var rc config.RuntimeConfig = config.NewRuntime(&config.Config{})
	assert.NotNil(t, rc.Get())
}
