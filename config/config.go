// Package config loads and hot-reloads the server's YAML configuration
// files. Each config is a named struct (endpoint, logger, server, ...)
// unmarshalled with viper, validated before it takes effect, and re-read on
// file change through fsnotify. Consumers either read the current value or
// register as change listeners.
package config

// Config is one named configuration block.
type Config interface {
	GetName() string
	Validate() error
}

// ValidatorFunc is an extra validation step beyond Config.Validate.
type ValidatorFunc func(Config) error

// HookFunc runs on reload before the new value is published; returning an
// error keeps the old value.
type HookFunc func(oldVal, newVal Config) error

// ConfigChangeListener is notified after a config value has been replaced.
type ConfigChangeListener interface {
	OnConfigChanged(configName string, newConfig, oldConfig Config) error
}

// ConfigManager owns every loaded config and its file watcher.
type ConfigManager interface {
	LoadConfig(configName string, config Config) error
	GetConfig(configName string) (Config, error)
	RegisterValidator(configName string, validator ValidatorFunc)
	RegisterHook(configName string, hook HookFunc)
	AddChangeListener(listener ConfigChangeListener)
	SetBasePath(path string)
	SetEnvironment(env string)
	Close() error
}
