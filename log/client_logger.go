package log

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ClientLogger scopes logging to one connected client: every event carries
// the client ID, whitelisted clients bypass level filtering, and optionally
// their entries also land in a per-client file. Game logic holds one per
// session for targeted debugging of live connections.
type ClientLogger struct {
	*GameLogger
	clientID    uint64
	inWhiteList bool
}

// NewClientLogger builds a logger scoped to clientID from the same config
// that shapes the process logger.
func NewClientLogger(cfg *LogCfg, clientID uint64) *ClientLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}
	cl := &ClientLogger{
		GameLogger:  NewLogger(cfg),
		clientID:    clientID,
		inWhiteList: cfg.IsInWhiteList(clientID),
	}

	if cfg.ClientFileLog && cfg.FileAppender {
		perClient := *cfg
		ext := filepath.Ext(perClient.LogPath)
		base := strings.TrimSuffix(perClient.LogPath, ext)
		perClient.LogPath = fmt.Sprintf("%s_%d%s", base, clientID, ext)
		cl.AddAppender(NewFileAppender(&perClient))
	}
	return cl
}

// IgnoreCheckLevel bypasses filtering for whitelisted clients so they log
// verbosely regardless of the global level.
func (x *ClientLogger) IgnoreCheckLevel() bool {
	return x.inWhiteList
}

func (x *ClientLogger) log(level Level) *LogEvent {
	e := x.GameLogger.log(level, x)
	if e == nil {
		return nil
	}
	return e.Uint64("client", x.clientID)
}

func (x *ClientLogger) Debug() *LogEvent { return x.log(DebugLevel) }
func (x *ClientLogger) Info() *LogEvent  { return x.log(InfoLevel) }
func (x *ClientLogger) Warn() *LogEvent  { return x.log(WarnLevel) }
func (x *ClientLogger) Error() *LogEvent { return x.log(ErrorLevel) }
func (x *ClientLogger) Fatal() *LogEvent { return x.log(FatalLevel) }
