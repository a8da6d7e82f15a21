// Package logging builds the zerolog logger every component derives its own
// from, and adapts it for streams such as hook script output.
package logging

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Options selects the log level and format.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
}

// New returns a logger writing to w. Console output is coloured only when w
// is a terminal.
func New(opts Options, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	out := w
	if opts.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    !isTerminal(w),
			TimeFormat: time.TimeOnly,
		}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// LineWriter returns a writer that logs every complete line written to it at
// level, with the given message field. Call Close to flush a trailing partial
// line.
func LineWriter(logger zerolog.Logger, level zerolog.Level, msg string) io.WriteCloser {
	return &lineWriter{logger: logger, level: level, msg: msg}
}

type lineWriter struct {
	mu     sync.Mutex
	logger zerolog.Logger
	level  zerolog.Level
	msg    string
	buf    bytes.Buffer
}

func (lw *lineWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.buf.Write(p)
	for {
		line, err := lw.buf.ReadString('\n')
		if err != nil {
			// partial line, keep it for the next write
			lw.buf.Reset()
			lw.buf.WriteString(line)
			break
		}
		lw.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (lw *lineWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.buf.Len() > 0 {
		lw.emit(lw.buf.String())
		lw.buf.Reset()
	}
	return nil
}

func (lw *lineWriter) emit(line string) {
	if line == "" {
		return
	}
	lw.logger.WithLevel(lw.level).Str("line", line).Msg(lw.msg)
}
