// Package logger provides the process-wide leveled logger.
//
// The API is printf-style (Debug, Info, Warn, Error) and safe for concurrent
// use. Output is rendered by charmbracelet/log in either text or JSON format.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) charm() charmlog.Level {
	switch l {
	case LevelDebug:
		return charmlog.DebugLevel
	case LevelWarn:
		return charmlog.WarnLevel
	case LevelError:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// Config selects level, format and destination of log output.
type Config struct {
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string

	// Format is "text" or "json".
	Format string

	// Output is "stdout", "stderr" or a file path (opened in append mode).
	Output string
}

const timeFormat = "2006-01-02 15:04:05"

var (
	current       atomic.Pointer[charmlog.Logger]
	currentFormat atomic.Value // string

	// outputMu guards closing a previously opened log file on re-Init.
	outputMu   sync.Mutex
	outputFile *os.File
)

func init() {
	install(os.Stdout, "text", LevelInfo.charm())
}

func install(w io.Writer, f string, level charmlog.Level) {
	l := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
		Level:           level,
	})
	if strings.EqualFold(f, "json") {
		l.SetFormatter(charmlog.JSONFormatter)
	}
	currentFormat.Store(f)
	current.Store(l)
}

// ParseLevel converts a level name into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// Init replaces the global logger according to cfg.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	var w io.Writer
	var file *os.File
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		file, err = os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log output %s: %w", cfg.Output, err)
		}
		w = file
	}

	install(w, cfg.Format, level.charm())

	outputMu.Lock()
	prev := outputFile
	outputFile = file
	outputMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// SetOutput redirects log output, keeping the current level and format.
func SetOutput(w io.Writer) {
	install(w, currentFormat.Load().(string), current.Load().GetLevel())
}

// SetLevel changes the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return
	}
	current.Load().SetLevel(lvl.charm())
}

// IsDebug reports whether DEBUG messages are emitted.
func IsDebug() bool {
	return current.Load().GetLevel() <= charmlog.DebugLevel
}

func Debug(format string, v ...any) {
	current.Load().Debugf(format, v...)
}

func Info(format string, v ...any) {
	current.Load().Infof(format, v...)
}

func Warn(format string, v ...any) {
	current.Load().Warnf(format, v...)
}

func Error(format string, v ...any) {
	current.Load().Errorf(format, v...)
}
