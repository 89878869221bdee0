// Package x_log provides styled, rotated logging for the service fabric.
// Every service logs to the console and to its own file under logs/.
package x_log

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalMu sync.RWMutex
	global   = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Setup builds the logger for a service: styled console (when the stream is
// a terminal) plus a rotated file sink at <LogDir>/<service>.log.
func Setup(service string, cfg *Config) zerolog.Logger {
	if cfg == nil {
		c := defaultConfig
		cfg = &c
	}

	var sinks []io.Writer

	if cfg.ToConsole {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			styles := DefaultStylesByName(cfg.Style)
			styles.Out = os.Stderr
			sinks = append(sinks, ConsoleWriterWithStyles(styles))
		} else {
			sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true, TimeFormat: "01-02 15:04:05"})
		}
	}

	if cfg.ToFile {
		sinks = append(sinks, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, service+".log"),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	if len(sinks) == 0 {
		sinks = append(sinks, io.Discard)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	SetGlobal(logger)
	return logger
}

// SetGlobal replaces the process-wide logger used by the package shortcuts.
func SetGlobal(l zerolog.Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = l
}

// L returns the process-wide logger.
func L() zerolog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// With returns a child of the global logger tagged with a component name.
func With(component string) zerolog.Logger {
	return L().With().Str("component", component).Logger()
}

// Event shortcuts on the global logger. The logger is bound to a local
// first: zerolog's level methods take a pointer receiver.

func Debug() *zerolog.Event { l := L(); return l.Debug() }
func Info() *zerolog.Event  { l := L(); return l.Info() }
func Warn() *zerolog.Event  { l := L(); return l.Warn() }
func Error() *zerolog.Event { l := L(); return l.Error() }

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
