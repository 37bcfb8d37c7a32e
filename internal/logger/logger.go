package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the process logger. It embeds zerolog.Logger and owns the log
// file, if any.
type Logger struct {
	zerolog.Logger

	file     io.Closer
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warning, error
	Format string // pretty or json
	File   string

	// Console writes to Output, or to stderr when Output is nil. Stdout is
	// left to run results.
	Console bool
	Output  io.Writer
	Pretty  bool

	Redaction bool

	MaxSize    int // MB
	MaxAge     int // days
	MaxBackups int
	Compress   bool
}

// ParseLevel maps config level names onto zerolog levels. "warning" is accepted
// as an alias of "warn"; unknown names fall back to info.
func ParseLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		return zerolog.InfoLevel
	}
	return level
}

// New builds the logger and installs it as the zerolog global.
func New(cfg Config) (*Logger, error) {
	l := &Logger{}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, cfg.console())
	}
	if cfg.File != "" {
		rw, err := OpenRotating(cfg.File, cfg.rotation())
		if err != nil {
			return nil, err
		}
		l.file = rw
		sinks = append(sinks, rw)
	}

	var w io.Writer
	switch len(sinks) {
	case 0:
		w = io.Discard
	case 1:
		w = sinks[0]
	default:
		w = zerolog.MultiLevelWriter(sinks...)
	}
	if cfg.Redaction {
		l.redactor = NewRedactor()
		w = l.redactor.Wrap(w)
	}

	l.Logger = zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	log.Logger = l.Logger
	return l, nil
}

func (c Config) console() io.Writer {
	out := c.Output
	if out == nil {
		out = os.Stderr
	}
	if c.Pretty || c.Format == "pretty" {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: out != os.Stderr}
	}
	return out
}

func (c Config) rotation() RotationConfig {
	size := c.MaxSize
	if size <= 0 {
		size = DefaultConfig().MaxSize
	}
	return RotationConfig{
		MaxBytes:   int64(size) << 20,
		MaxAge:     time.Duration(c.MaxAge) * 24 * time.Hour,
		MaxBackups: c.MaxBackups,
		Compress:   c.Compress,
	}
}

// Close closes the log file
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "pretty",
		Console:    true,
		Redaction:  true,
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 5,
		Compress:   true,
	}
}
