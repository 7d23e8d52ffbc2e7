package config

import "sync/atomic"

// Runtime holds the live configuration behind an atomic pointer.
//
// The watcher calls Store after a successful reload. Request paths call Get
// once per operation, so an in-flight request keeps the config it started
// with while new requests see the replacement.
//
//	runtime := config.NewRuntime(initialConfig)
//	mode := runtime.Get().Gate.GetEffectiveMode()
type Runtime struct {
	ptr atomic.Pointer[Config]
}

// NewRuntime creates a Runtime holding initial.
func NewRuntime(initial *Config) *Runtime {
	r := &Runtime{}
	r.ptr.Store(initial)
	return r
}

// Get returns the current configuration.
func (r *Runtime) Get() *Config {
	return r.ptr.Load()
}

// Store swaps in a new configuration.
func (r *Runtime) Store(cfg *Config) {
	r.ptr.Store(cfg)
}

var _ RuntimeConfig = (*Runtime)(nil)
