package log

import "fmt"

// LogCfg configures the process logger. It is loaded through the config
// manager under the name "logger" and supports hot-reload: level and
// rotation changes apply without a restart.
type LogCfg struct {
	// LogPath is the target file for the file appender.
	LogPath string `mapstructure:"path"`

	// LogLevel is the minimum level that gets written.
	LogLevel Level `mapstructure:"level"`

	// FileSplitMB rotates the log file once it exceeds this many MiB.
	FileSplitMB int `mapstructure:"splitmb"`

	// CallerSkip adjusts stack unwinding for wrapper layers.
	CallerSkip int `mapstructure:"callerSkip"`

	// FileAppender and ConsoleAppender select the output destinations.
	FileAppender    bool `mapstructure:"fileAppender"`
	ConsoleAppender bool `mapstructure:"consoleAppender"`

	// EnabledCallerInfo adds file:line of the call site to every entry.
	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`

	// ClientWhiteList lists client IDs whose scoped loggers bypass level
	// filtering, for targeted debugging of live connections.
	ClientWhiteList []uint64 `mapstructure:"clientWhiteList"`

	// ClientFileLog writes whitelisted clients' entries to per-client
	// files in addition to the main log.
	ClientFileLog bool `mapstructure:"clientFileLog"`

	whiteListSet map[uint64]struct{} `mapstructure:"-"`
}

// IsInWhiteList reports whether a client ID is whitelisted for unfiltered
// logging.
func (cfg *LogCfg) IsInWhiteList(clientID uint64) bool {
	if len(cfg.whiteListSet) == 0 && len(cfg.ClientWhiteList) != 0 {
		cfg.whiteListSet = make(map[uint64]struct{}, len(cfg.ClientWhiteList))
		for _, id := range cfg.ClientWhiteList {
			cfg.whiteListSet[id] = struct{}{}
		}
	}
	_, ok := cfg.whiteListSet[clientID]
	return ok
}

// GetName implements config.Config.
func (cfg *LogCfg) GetName() string {
	return "logger"
}

// Validate implements config.Config.
func (cfg *LogCfg) Validate() error {
	if cfg.LogLevel > FatalLevel {
		return fmt.Errorf("log: level %d out of range", cfg.LogLevel)
	}
	if cfg.FileSplitMB < 0 {
		return fmt.Errorf("log: splitmb must not be negative")
	}
	if cfg.FileAppender && cfg.LogPath == "" {
		return fmt.Errorf("log: file appender requires a path")
	}
	return nil
}

var _defaultCfg = &LogCfg{
	LogPath:         "./nexus.log",
	LogLevel:        DebugLevel,
	FileSplitMB:     50,
	CallerSkip:      1,
	FileAppender:    false,
	ConsoleAppender: true,
}

func getDefaultCfg() *LogCfg {
	return _defaultCfg
}
