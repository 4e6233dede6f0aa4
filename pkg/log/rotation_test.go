// Log rotation tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFileWriterWrites(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "driver.log")

	w, err := NewRotatingFileWriter(RotationConfig{Filename: logFile})
	require.NoError(t, err)
	defer w.Close()

	n, err := w.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	require.NoError(t, w.Sync())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestRotatingFileWriterRequiresFilename(t *testing.T) {
	_, err := NewRotatingFileWriter(RotationConfig{})
	assert.Error(t, err)
}

func TestRotatingFileWriterRotatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "driver.log")

	w, err := NewRotatingFileWriter(RotationConfig{Filename: logFile, MaxBackups: 2})
	require.NoError(t, err)
	defer w.Close()

	w.maxBytes = 10
	stamp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time {
		stamp = stamp.Add(time.Second)
		return stamp
	}

	for i := 0; i < 5; i++ {
		_, err := w.Write([]byte("0123456789"))
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var rotated int
	for _, e := range entries {
		if e.Name() != "driver.log" && strings.HasPrefix(e.Name(), "driver.") {
			rotated++
		}
	}
	assert.Equal(t, 2, rotated)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}

func TestRotatingFileWriterClosed(t *testing.T) {
	w, err := NewRotatingFileWriter(RotationConfig{Filename: filepath.Join(t.TempDir(), "x.log")})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestNewFileLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "driver.log")

	l, w, err := NewFileLogger("driver", INFO, RotationConfig{Filename: logFile})
	require.NoError(t, err)
	l.Info("to file")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
