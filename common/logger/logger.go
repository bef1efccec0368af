package logger

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/LexiconIndonesia/website-crawler-service/common/config"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup configures the global zerolog logger: console output on a terminal,
// JSON otherwise, an optional rotating file and, when sink is not nil,
// persistence of warnings and errors. The returned closer flushes the file
// and the sink.
func Setup(cfg config.Config, sink LogSink) (io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.DurationFieldUnit = time.Millisecond

	var out io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	writers := []io.Writer{out}
	var toClose closers

	if cfg.Log.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, file)
		toClose = append(toClose, file)
	}

	if sink != nil {
		dbWriter := NewServiceLogWriter(sink, zerolog.WarnLevel)
		writers = append(writers, dbWriter)
		toClose = append(toClose, dbWriter)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Logger()

	log.Info().
		Str("level", level.String()).
		Str("file", cfg.Log.File).
		Bool("persist", sink != nil).
		Msg("Logger initialized")

	return toClose, nil
}
