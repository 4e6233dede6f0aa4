// Log file rotation for the driver log
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const rotationStamp = "20060102-150405.000"

// RotationConfig configures log file rotation.
type RotationConfig struct {
	// Filename is the path to the log file.
	Filename string

	// MaxSize is the maximum size in megabytes before rotation.
	// Default is 10 MB.
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain.
	// Default is 5.
	MaxBackups int

	// Compress gzips rotated files.
	Compress bool
}

// RotatingFileWriter is an io.Writer (and zapcore.WriteSyncer) that starts a
// new file once the current one would exceed the size limit.
type RotatingFileWriter struct {
	mu         sync.Mutex
	cfg        RotationConfig
	maxBytes   int64
	size       int64
	file       *os.File
	now        func() time.Time
	compressWG sync.WaitGroup
}

// NewRotatingFileWriter creates a new rotating file writer.
func NewRotatingFileWriter(cfg RotationConfig) (*RotatingFileWriter, error) {
	if cfg.Filename == "" {
		return nil, fmt.Errorf("log: filename is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}

	w := &RotatingFileWriter{
		cfg:      cfg,
		maxBytes: int64(cfg.MaxSize) * 1024 * 1024,
		now:      time.Now,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingFileWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.cfg.Filename), 0755); err != nil {
		return fmt.Errorf("log: create directory: %w", err)
	}
	f, err := os.OpenFile(w.cfg.Filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("log: open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("log: stat file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("log: close file: %w", err)
	}
	w.file = nil

	ext := filepath.Ext(w.cfg.Filename)
	base := strings.TrimSuffix(w.cfg.Filename, ext)
	rotated := fmt.Sprintf("%s.%s%s", base, w.now().Format(rotationStamp), ext)
	if err := os.Rename(w.cfg.Filename, rotated); err != nil {
		if openErr := w.open(); openErr != nil {
			return openErr
		}
		return fmt.Errorf("log: rename file: %w", err)
	}

	if w.cfg.Compress {
		w.compressWG.Add(1)
		go func() {
			defer w.compressWG.Done()
			compressFile(rotated)
		}()
	}
	w.pruneBackups()
	return w.open()
}

func compressFile(name string) {
	src, err := os.Open(name)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(name + ".gz")
	if err != nil {
		return
	}
	gz := gzip.NewWriter(dst)
	_, copyErr := io.Copy(gz, src)
	closeErr := gz.Close()
	dst.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(name + ".gz")
		return
	}
	os.Remove(name)
}

// backups returns rotated files of this log, oldest first. The timestamp in
// the name sorts lexically.
func (w *RotatingFileWriter) backups() []string {
	dir := filepath.Dir(w.cfg.Filename)
	base := filepath.Base(w.cfg.Filename)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if name == base || !strings.HasPrefix(name, prefix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ext)
		stamp = strings.TrimPrefix(stamp, prefix)
		if _, err := time.Parse(rotationStamp, stamp); err != nil {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out
}

func (w *RotatingFileWriter) pruneBackups() {
	backups := w.backups()
	for len(backups) > w.cfg.MaxBackups {
		os.Remove(backups[0])
		backups = backups[1:]
	}
}

// Sync flushes the current file to disk.
func (w *RotatingFileWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the current file and waits for pending compression.
func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()
	w.compressWG.Wait()
	return err
}

// NewFileLogger creates a logger that writes text to a rotating file.
func NewFileLogger(prefix string, level LogLevel, cfg RotationConfig) (*Logger, *RotatingFileWriter, error) {
	w, err := NewRotatingFileWriter(cfg)
	if err != nil {
		return nil, nil, err
	}
	return NewWithWriter(prefix, w, level, FormatText), w, nil
}
