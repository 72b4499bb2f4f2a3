package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures the rotating log file written next to stdout.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewWithFile is New plus a rotating JSON copy of every line in opts.Path.
// The returned closer releases the file; it is a no-op without a path.
func NewWithFile(environment, level string, opts FileOptions) (zerolog.Logger, io.Closer, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		logger, err := New(environment, level)
		return logger, nopCloser{}, err
	}

	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	var console io.Writer = os.Stdout
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		console = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	// The writer below is already split; "file" keeps NewWithWriter from
	// wrapping it in another console writer.
	logger, err := NewWithWriter("file", level, zerolog.MultiLevelWriter(console, file))
	if err != nil {
		_ = file.Close()
		return zerolog.Logger{}, nopCloser{}, err
	}
	return logger, file, nil
}
