package obs

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a tint logger in dev/local and a JSON logger elsewhere. When file is set,
// output is also written to a size-rotated log file; close the returned closer on shutdown.
func NewLogger(env, file string) (*slog.Logger, io.Closer) {
	level := slog.LevelInfo
	if lvl := strings.ToLower(os.Getenv("LOG_LEVEL")); lvl == "debug" {
		level = slog.LevelDebug
	}
	var writer io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if file != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		writer = io.MultiWriter(os.Stdout, rotating)
		closer = rotating
	}
	return newLogger(env, writer, level, file != ""), closer
}

func newLogger(env string, w io.Writer, level slog.Level, noColor bool) *slog.Logger {
	if env == "dev" || env == "local" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
			AddSource:  true,
			NoColor:    noColor,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}))
}
