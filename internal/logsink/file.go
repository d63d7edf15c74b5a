package logsink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const (
	DefaultDir  = "logs"
	DefaultFile = "perflog.txt"
)

// File writes JSON records, one per line, to an append-only file.
type File struct {
	path    string
	file    *os.File
	handler slog.Handler

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Open creates dir when missing and opens name inside it for appending.
// Relative directories resolve against the working directory.
func Open(dir, name string) (*File, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if name == "" {
		name = DefaultFile
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, name)
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &File{
		path:    path,
		file:    f,
		handler: slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}, nil
}

// Path reports the file location.
func (s *File) Path() string {
	return s.path
}

// Write appends one record at debug level.
func (s *File) Write(ctx context.Context, message string, fields Fields) error {
	record := newRecord(message, fields)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("log sink closed")
	}
	if err := s.handler.Handle(ctx, record); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Close flushes and closes the file. Safe for repeated use.
func (s *File) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.file.Sync(); err != nil && !errors.Is(err, os.ErrClosed) {
			s.closeErr = err
		}
		if err := s.file.Close(); err != nil {
			s.closeErr = errors.Join(s.closeErr, err)
		}
		s.file = nil
	})
	return s.closeErr
}
