package config

import "sync"

var (
	instance ConfigManager
	once     sync.Once
)

// GetInstance returns the process-wide config manager, creating it on first
// use. Packages that need ambient configuration (the logger, the metrics
// exporter) reach it through here; anything else should take a
// ConfigManager explicitly.
func GetInstance() ConfigManager {
	once.Do(func() {
		instance = NewConfigManager()
	})
	return instance
}
