// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"path"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ytget/ytdl-web/internal/config"
)

// New returns a logger configured for env. local uses a text formatter at
// debug level, debug uses JSON at debug level and prod uses JSON at info.
// A non-empty level overrides the env default.
func New(out io.Writer, env, level string) (*log.Logger, error) {
	logger := log.New()
	logger.SetOutput(out)

	lvl := log.InfoLevel
	switch env {
	case config.EnvLocal:
		lvl = log.DebugLevel
		logger.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				fn := f.Function[strings.LastIndex(f.Function, ".")+1:]
				return fmt.Sprintf("%s()", fn), fmt.Sprintf("%s:%d", path.Base(f.File), f.Line)
			},
		})
		logger.SetReportCaller(true)
	case config.EnvDebug:
		lvl = log.DebugLevel
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		logger.SetFormatter(&log.JSONFormatter{})
	}

	if level != "" {
		parsed, err := log.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}
	logger.SetLevel(lvl)

	return logger, nil
}
