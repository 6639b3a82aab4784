package log

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcx/nexus/config"
)

// GameLogger is a pooled structured logger tuned for the server's hot path:
// events are reused through a sync.Pool, caller lookups are cached per
// program counter, and a disabled level costs one atomic load.
type GameLogger struct {
	appenders         []LogAppender
	minLevel          atomic.Uint32
	callerSkip        int
	enabledCallerInfo bool
	eventPool         *sync.Pool
	callerCache       sync.Map // pc -> string
}

// NewLogger creates a logger from cfg, or from defaults when cfg is nil.
func NewLogger(cfg *LogCfg) *GameLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}
	logger := &GameLogger{
		callerSkip:        cfg.CallerSkip,
		enabledCallerInfo: cfg.EnabledCallerInfo,
	}
	logger.minLevel.Store(uint32(cfg.LogLevel))
	logger.eventPool = &sync.Pool{
		New: func() any {
			return newEvent(logger)
		},
	}
	if cfg.FileAppender {
		logger.AddAppender(NewFileAppender(cfg))
	}
	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}
	return logger
}

// OnConfigChanged implements config.ConfigChangeListener so the level and
// rotation settings follow the config file without a restart.
func (x *GameLogger) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "logger" {
		return nil
	}
	cfg, ok := newConfig.(*LogCfg)
	if !ok {
		return nil
	}
	x.minLevel.Store(uint32(cfg.LogLevel))
	x.Refresh()
	return nil
}

func (x *GameLogger) checkLevel(level Level) bool {
	return Level(x.minLevel.Load()) <= level
}

// AddAppender registers one more output destination.
func (x *GameLogger) AddAppender(appender LogAppender) {
	x.appenders = append(x.appenders, appender)
}

// GetAppender returns the registered appenders.
func (x *GameLogger) GetAppender() []LogAppender {
	return x.appenders
}

// Refresh asks every appender to reopen its resources.
func (x *GameLogger) Refresh() {
	for _, appender := range x.appenders {
		appender.Refresh()
	}
}

// IgnoreCheckLevel reports whether level filtering is bypassed. The base
// logger always filters; scoped loggers may override.
func (x *GameLogger) IgnoreCheckLevel() bool {
	return false
}

// OnEventEnd writes a finished event to every appender and returns it to
// the pool. Fatal events abort the process.
func (x *GameLogger) OnEventEnd(e *LogEvent) {
	for _, appender := range x.appenders {
		appender.Write(e.buf)
	}
	if e.level == FatalLevel {
		panic("log: fatal event")
	}
	x.eventPool.Put(e)
}

func (x *GameLogger) Debug() *LogEvent { return x.log(DebugLevel, x) }
func (x *GameLogger) Info() *LogEvent  { return x.log(InfoLevel, x) }
func (x *GameLogger) Warn() *LogEvent  { return x.log(WarnLevel, x) }
func (x *GameLogger) Error() *LogEvent { return x.log(ErrorLevel, x) }
func (x *GameLogger) Fatal() *LogEvent { return x.log(FatalLevel, x) }

// caller resolves and caches the call site as "pkg/file.go:line".
func (x *GameLogger) caller() string {
	pc, file, line, ok := runtime.Caller(3 + x.callerSkip)
	if !ok {
		return "unknown"
	}
	if cached, found := x.callerCache.Load(pc); found {
		return cached.(string)
	}
	if idx := strings.LastIndexByte(file, '/'); idx > 0 {
		if idx2 := strings.LastIndexByte(file[:idx], '/'); idx2 >= 0 {
			file = file[idx2+1:]
		}
	}
	c := file + ":" + strconv.Itoa(line)
	x.callerCache.Store(pc, c)
	return c
}

// log starts an event for owner (the logger whose appenders and filtering
// apply; scoped loggers pass themselves).
func (x *GameLogger) log(level Level, owner Logger) *LogEvent {
	if !owner.IgnoreCheckLevel() && !x.checkLevel(level) {
		return nil
	}
	e := x.eventPool.Get().(*LogEvent)
	e.Reset()
	e.logger = owner
	e.level = level

	t := time.Now()
	e.Time("time", &t)
	e.Str("level", level.String())
	if x.enabledCallerInfo {
		e.Str("caller", x.caller())
	}
	return e
}
