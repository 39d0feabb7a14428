package logger

import (
	"io"
	"os"

	"github.com/alfreddev/cachify/config"
	"github.com/rs/zerolog"
)

// New returns a configured zerolog.Logger: console-pretty output at debug
// level in development, JSON at info level otherwise.
func New(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stderr
	lvl := zerolog.InfoLevel
	if cfg.Env == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log := zerolog.New(out).With().Timestamp().Logger()
	return log
}
