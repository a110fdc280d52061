// package shared defines shared helpers: configuration, logging, errors and the journal database
package shared

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: false}
	return log.NewWithOptions(w, opts)
}

// ConfigureLogger applies the logging section of the config to l.
//
// When debug is set the level is forced to debug and caller reporting is enabled.
// A non-empty cfg.File adds a rotating file sink next to w; the returned closer
// releases it and is never nil.
func ConfigureLogger(l *log.Logger, w io.Writer, cfg LoggingConfig, debug bool) (io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return io.NopCloser(nil), errors.Wrapf(ErrInvalidConfig, "log level %q", cfg.Level)
	}
	if debug {
		level = log.DebugLevel
		l.SetReportCaller(true)
	}
	l.SetLevel(level)

	if cfg.File == "" {
		return io.NopCloser(nil), nil
	}

	rotating := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	if w == nil {
		w = os.Stderr
	}
	l.SetOutput(io.MultiWriter(w, rotating))
	return rotating, nil
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// GenerateState returns a random URL-safe string for the OAuth state parameter.
func GenerateState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "failed to generate state")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
