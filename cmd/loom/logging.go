package main

import (
	"io"
	"os"

	"github.com/go-go-golems/loom/pkg/settings"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

func fileWriter(path string) io.Writer {
	return zerolog.ConsoleWriter{
		NoColor: true,
		Out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		},
	}
}

func initLogger(config settings.LogSettings, withCaller bool) error {
	var logWriter io.Writer = os.Stderr
	if config.Format == "text" {
		logWriter = zerolog.ConsoleWriter{
			Out:     os.Stderr,
			NoColor: !isatty.IsTerminal(os.Stderr.Fd()),
		}
	}
	if config.File != "" {
		logWriter = io.MultiWriter(logWriter, fileWriter(config.File))
	}

	logger := zerolog.New(logWriter).With().Timestamp()
	if withCaller {
		logger = logger.Caller()
	}
	log.Logger = logger.Logger()

	level := config.Level
	if level == "" {
		level = "info"
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	zerolog.SetGlobalLevel(l)

	return nil
}

// initTUILogger keeps logs off the terminal the TUI draws on: they go to the
// log file only, or nowhere.
func initTUILogger(config settings.LogSettings) {
	if config.File == "" {
		log.Logger = zerolog.Nop()
		return
	}
	log.Logger = zerolog.New(fileWriter(config.File)).With().Timestamp().Logger()
}
