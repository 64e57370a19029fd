// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Level      string
	Console    bool
	TimeFormat string
	Out        io.Writer
}

// Setup installs the global logger and returns it.
func Setup(o Options) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if s := strings.TrimSpace(o.Level); s != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return log.Logger, errors.Wrapf(err, "log level %q", o.Level)
		}
		lvl = l
	}

	out := o.Out
	if out == nil {
		out = os.Stderr
	}
	if o.Console {
		tf := o.TimeFormat
		if tf == "" {
			tf = time.DateTime
		}
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
	}

	zerolog.SetGlobalLevel(lvl)
	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger
	return logger, nil
}
