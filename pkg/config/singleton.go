package config

import (
	"sync"
	"sync/atomic"
)

var (
	global   atomic.Pointer[Config]
	initOnce sync.Once
)

// Initialize loads the configuration at path, applying QUORUM_* environment
// overrides, and installs it as the process-wide instance read by GetConfig.
// The first call wins; later calls are no-ops returning nil.
func Initialize(path string) error {
	var err error
	initOnce.Do(func() {
		var cfg *Config
		cfg, err = LoadConfigWithEnvOverrides(path)
		if err != nil {
			return
		}
		global.Store(cfg)
	})
	return err
}

// GetConfig returns the installed configuration, nil before a successful
// Initialize. Commands that want a throwaway load (validate) call
// LoadConfigWithEnvOverrides directly instead.
func GetConfig() *Config {
	return global.Load()
}
