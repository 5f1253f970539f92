package logging

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/DeRuina/timberjack"
	"github.com/emmett/sphinxvox/internal/config"
	"github.com/sirupsen/logrus"
)

// NewLogger creates a logrus.Logger from the log settings.
// Output goes to stdout, or to stdout and a rotating file when a file is set.
func NewLogger(cfg *config.LogSettings) *logrus.Logger {
	return newLogger(cfg, os.Stdout)
}

// NewLoggerTo is NewLogger with console output sent to w instead of stdout.
// Stdio servers use it to keep stdout for the protocol.
func NewLoggerTo(cfg *config.LogSettings, w io.Writer) *logrus.Logger {
	return newLogger(cfg, w)
}

func newLogger(cfg *config.LogSettings, stdout io.Writer) *logrus.Logger {
	logger := logrus.New()

	level := logrus.InfoLevel
	if cfg != nil && cfg.Level != "" {
		if lv, err := logrus.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
			level = lv
		}
	}
	logger.SetLevel(level)

	output := stdout
	if cfg != nil && cfg.File != "" {
		fileLogger := &timberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		output = io.MultiWriter(stdout, fileLogger)
	}
	logger.SetOutput(output)

	logger.SetFormatter(&SourceFormatter{
		Underlying: &logrus.TextFormatter{
			FullTimestamp: true,
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				return "", ""
			},
		},
	})
	logger.SetReportCaller(true)

	return logger
}

// Discard returns a logger that drops everything; used when callers pass nil.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *logrus.Logger) *logrus.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
