package logging

import (
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/neurodesk/pancake/pkg/config"
)

// NewLogger returns a logger writing to out at the configured level. Text
// output uses zerolog's console format; otherwise each event is a JSON line.
func NewLogger(out io.Writer, c config.Logging) (zerolog.Logger, error) {
	if c.Text {
		out = zerolog.ConsoleWriter{Out: out, NoColor: true}
	}
	logger := zerolog.New(out).With().Timestamp().Logger()
	if c.Level == "" {
		return logger.Level(zerolog.InfoLevel), nil
	}

	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return logger, errors.Wrapf(err, "invalid log level %q", c.Level)
	}
	return logger.Level(level), nil
}
