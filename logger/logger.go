// Package logger provides the process-wide zerolog logger, grounded on
// logger/logger.go in the teacher: a console writer plus a daily
// rotating file writer, both wrapped in an async drain goroutine so a
// slow disk or terminal never blocks a caller that's mid-turn.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// asyncWriter performs writes in a background goroutine so logging
// never blocks the orchestrator's per-session goroutine at an await
// point (spec.md §5's suspension-point list does not include logging).
type asyncWriter struct {
	ch     chan []byte
	writer io.Writer
}

func newAsyncWriter(w io.Writer, bufSize int) *asyncWriter {
	aw := &asyncWriter{ch: make(chan []byte, bufSize), writer: w}
	go aw.drain()
	return aw
}

func (aw *asyncWriter) drain() {
	for p := range aw.ch {
		aw.writer.Write(p) //nolint:errcheck
	}
}

func (aw *asyncWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case aw.ch <- buf:
	default:
		// drop rather than block a hot path on a full log buffer
	}
	return len(p), nil
}

var once sync.Once
var log zerolog.Logger

// GetLogLevel reads the log level from AGENTCORE_LOG_LEVEL, defaulting
// to info.
func GetLogLevel() zerolog.Level {
	lvl, err := strconv.Atoi(os.Getenv("AGENTCORE_LOG_LEVEL"))
	if err != nil {
		return zerolog.InfoLevel
	}
	return zerolog.Level(lvl)
}

// Get returns the process-wide logger, constructing it on first use.
func Get() zerolog.Logger {
	once.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = time.RFC3339Nano

		console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		var out io.Writer = console

		if stateDir, err := StateDir(); err == nil {
			if fw, err := newDailyRotatingLogWriter(stateDir); err == nil {
				out = zerolog.MultiLevelWriter(console, fw)
			}
		}

		writer := newAsyncWriter(out, 1024)

		var revision string
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					revision = s.Value
					break
				}
			}
		}

		log = zerolog.New(writer).Level(GetLogLevel()).With().
			Timestamp().
			Str("git_revision", revision).
			Logger()
	})
	return log
}

// StateDir returns the platform-appropriate directory for logs and the
// session database (spec.md §6: "a platform-appropriate user-config
// path"), creating it if necessary.
func StateDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "agentcore")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

const (
	logFilePrefix   = "agentcore-"
	logFileSuffix   = ".log"
	maxLogFileCount = 7
)

type dailyRotatingLogWriter struct {
	mu          sync.Mutex
	dir         string
	currentDate string
	file        *os.File
}

func newDailyRotatingLogWriter(dir string) (*dailyRotatingLogWriter, error) {
	w := &dailyRotatingLogWriter{dir: dir}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *dailyRotatingLogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateIfNeeded(); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

func (w *dailyRotatingLogWriter) rotateIfNeeded() error {
	today := time.Now().Format("2006-01-02")
	if w.currentDate == today && w.file != nil {
		return nil
	}
	if w.file != nil {
		w.file.Close()
	}
	name := logFilePrefix + today + logFileSuffix
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	w.file = f
	w.currentDate = today
	cleanupOldLogFiles(w.dir)
	return nil
}

func cleanupOldLogFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n := e.Name(); strings.HasPrefix(n, logFilePrefix) && strings.HasSuffix(n, logFileSuffix) {
			files = append(files, n)
		}
	}
	if len(files) <= maxLogFileCount {
		return
	}
	sort.Strings(files)
	for i := 0; i < len(files)-maxLogFileCount; i++ {
		os.Remove(filepath.Join(dir, files[i]))
	}
}
