package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// rotateFile is an append-only writer that rotates the underlying file once it
// exceeds a size limit, keeping a bounded number of numbered backups.
type rotateFile struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	written int64
	limit   int64
	backups int
	maxAge  time.Duration
}

func newRotateFile(path string, maxSizeMB, maxBackups, maxAgeDays int) (*rotateFile, error) {
	if path == "" {
		return nil, errors.New("rotate file path is required")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	if maxBackups <= 0 {
		maxBackups = 7
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &rotateFile{
		path:    path,
		limit:   int64(maxSizeMB) * 1024 * 1024,
		backups: maxBackups,
		maxAge:  time.Duration(maxAgeDays) * 24 * time.Hour,
	}, nil
}

func (r *rotateFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.open(); err != nil {
		return 0, err
	}
	if r.written+int64(len(p)) > r.limit {
		if err := r.rotate(); err != nil {
			return 0, err
		}
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.written += int64(n)
	return n, err
}

func (r *rotateFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.written = 0
	return err
}

func (r *rotateFile) open() error {
	if r.file != nil {
		return nil
	}
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	r.file = file
	r.written = info.Size()
	return nil
}

func (r *rotateFile) rotate() error {
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}
	r.written = 0

	for i := r.backups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", r.path, i)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, fmt.Sprintf("%s.%d", r.path, i+1))
		}
	}
	if _, err := os.Stat(r.path); err == nil {
		_ = os.Rename(r.path, r.path+".1")
	}

	r.pruneExpired()
	return nil
}

func (r *rotateFile) pruneExpired() {
	if r.maxAge <= 0 {
		return
	}
	cutoff := time.Now().Add(-r.maxAge)
	for i := 1; i <= r.backups+1; i++ {
		backup := fmt.Sprintf("%s.%d", r.path, i)
		info, err := os.Stat(backup)
		if err != nil {
			continue
		}
		if i > r.backups || info.ModTime().Before(cutoff) {
			_ = os.Remove(backup)
		}
	}
}
