package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogAppender is one log output destination. Write receives a complete
// formatted line including the trailing newline.
type LogAppender interface {
	Write(p []byte)
	Refresh()
}

// ConsoleAppender writes to stdout. Useful in development and containers.
type ConsoleAppender struct {
	mu sync.Mutex
}

func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{}
}

func (a *ConsoleAppender) Write(p []byte) {
	a.mu.Lock()
	os.Stdout.Write(p)
	a.mu.Unlock()
}

func (a *ConsoleAppender) Refresh() {}

// FileAppender writes to a log file and rotates it once it grows past the
// configured size. Rotated files are renamed with a timestamp suffix.
type FileAppender struct {
	mu      sync.Mutex
	path    string
	splitMB int
	file    *os.File
	written int64
}

func NewFileAppender(cfg *LogCfg) *FileAppender {
	return &FileAppender{path: cfg.LogPath, splitMB: cfg.FileSplitMB}
}

func (a *FileAppender) Write(p []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		if err := a.open(); err != nil {
			return
		}
	}
	if a.splitMB > 0 && a.written+int64(len(p)) > int64(a.splitMB)<<20 {
		a.rotate()
	}
	n, err := a.file.Write(p)
	if err == nil {
		a.written += int64(n)
	}
}

// Refresh reopens the file, picking up external rotation or path changes.
func (a *FileAppender) Refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		a.file.Close()
		a.file = nil
	}
}

func (a *FileAppender) open() error {
	if dir := filepath.Dir(a.path); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	a.file = f
	if st, err := f.Stat(); err == nil {
		a.written = st.Size()
	} else {
		a.written = 0
	}
	return nil
}

func (a *FileAppender) rotate() {
	a.file.Close()
	a.file = nil
	stamp := time.Now().Format("20060102-150405")
	ext := filepath.Ext(a.path)
	rotated := fmt.Sprintf("%s.%s%s", a.path[:len(a.path)-len(ext)], stamp, ext)
	os.Rename(a.path, rotated)
	a.open()
}
