// Package log implements the structured logger used across the server:
// pooled events built fluently (log.Info().Str("k", "v").Msg("...")), level
// filtering with config hot-reload, and pluggable appenders.
package log

import (
	"github.com/lcx/nexus/config"
)

// Logger is the event-producing surface. GameLogger implements it for the
// process; ClientLogger scopes it to one connection.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	IgnoreCheckLevel() bool
	GetAppender() []LogAppender
	AddAppender(appender LogAppender)
	OnEventEnd(e *LogEvent)
}

var _defaultLogger *GameLogger

func init() {
	_defaultLogger = NewLogger(nil)
}

// SetDefaultLogger replaces the process-wide logger.
func SetDefaultLogger(logger *GameLogger) {
	_defaultLogger = logger
}

// AddAppender adds an output to the default logger.
func AddAppender(appender LogAppender) {
	_defaultLogger.AddAppender(appender)
}

// Refresh reopens the default logger's appender resources.
func Refresh() {
	_defaultLogger.Refresh()
}

// Initialize loads the "logger" config through the singleton config manager
// and installs a hot-reloading default logger.
func Initialize() error {
	return InitializeWithConfigManager(config.GetInstance())
}

// InitializeWithConfigManager is Initialize with an explicit manager, for
// processes that wire their own.
func InitializeWithConfigManager(manager config.ConfigManager) error {
	if manager == nil {
		return nil
	}
	cfg := &LogCfg{}
	if err := manager.LoadConfig("logger", cfg); err != nil {
		return err
	}
	logger := NewLogger(cfg)
	manager.AddChangeListener(logger)
	SetDefaultLogger(logger)
	return nil
}

// Debug starts a debug event on the default logger.
func Debug() *LogEvent {
	return _defaultLogger.Debug()
}

// Info starts an info event on the default logger.
func Info() *LogEvent {
	return _defaultLogger.Info()
}

// Warn starts a warn event on the default logger.
func Warn() *LogEvent {
	return _defaultLogger.Warn()
}

// Error starts an error event on the default logger.
func Error() *LogEvent {
	return _defaultLogger.Error()
}

// Fatal starts a fatal event on the default logger; finishing it panics.
func Fatal() *LogEvent {
	return _defaultLogger.Fatal()
}
