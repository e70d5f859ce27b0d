package build

import (
	"bytes"
	"log/slog"
	"sync"
)

// lineLogger is an io.Writer that logs each complete line it receives.
type lineLogger struct {
	mu     sync.Mutex
	logger *slog.Logger
	source string
	buf    []byte
}

func newLineLogger(logger *slog.Logger, source string) *lineLogger {
	return &lineLogger{logger: logger, source: source}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) > 0 {
		l.emit(l.buf)
		l.buf = nil
	}
}

func (l *lineLogger) emit(line []byte) {
	l.logger.Info(string(bytes.TrimRight(line, "\r")), "source", l.source)
}
