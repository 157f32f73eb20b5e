// Package logging builds the process-wide log destination and the
// per-component loggers handed to each package.
package logging

import (
	"io"
	"log"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tasksync/tasksync/internal/config"
)

// Output is where log lines go. Close flushes and releases a log file; it is
// a no-op for stderr.
type Output struct {
	io.Writer
	closer io.Closer
}

// Close releases the underlying file, if any.
func (o *Output) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

// Open returns stderr, or a size-rotated file when cfg.File is set.
func Open(cfg config.LogConfig) *Output {
	if cfg.File == "" {
		return &Output{Writer: os.Stderr}
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	return &Output{Writer: lj, closer: lj}
}

// New returns a logger whose lines start with "[component] ".
func New(w io.Writer, component string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	prefix := ""
	if component = strings.TrimSpace(component); component != "" {
		prefix = "[" + component + "] "
	}
	return log.New(w, prefix, log.LstdFlags)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
