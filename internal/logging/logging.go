package logging

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const prefix = "wanwatch "

// Options selects the writers behind the monitor logger.
type Options struct {
	// Stdout defaults to os.Stdout.
	Stdout io.Writer
	// File, when set, receives every line; the file is reopened for each write.
	File string
}

// New returns the process logger and a tracker holding the most recent line.
func New(opts Options) (*log.Logger, *LastLine) {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	last := &LastLine{}
	writers := []io.Writer{out, last}
	if opts.File != "" {
		writers = append(writers, &AppendFile{Path: opts.File})
	}
	return log.New(io.MultiWriter(writers...), prefix, log.LstdFlags|log.LUTC), last
}

// AppendFile appends each write to Path and closes the handle immediately.
type AppendFile struct {
	Path string

	mu sync.Mutex
}

func (a *AppendFile) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(p)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// LastLine remembers the last line written through it.
type LastLine struct {
	v atomic.Value
}

func (l *LastLine) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\r\n")
	if i := strings.LastIndexByte(line, '\n'); i >= 0 {
		line = line[i+1:]
	}
	l.v.Store(line)
	return len(p), nil
}

// String returns the most recent line, or "" before the first write.
func (l *LastLine) String() string {
	if l == nil {
		return ""
	}
	s, _ := l.v.Load().(string)
	return s
}
