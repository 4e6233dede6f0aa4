// Run-to-completion tasks on a dedicated real-time thread
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package rt runs time-critical work on a dedicated OS thread and provides
// the fixed-period sleep used by the control loop.
package rt

import (
	"context"
	"runtime"
	"time"

	"blmc-robot-go/pkg/errors"
	"blmc-robot-go/pkg/log"
)

// DefaultPriority is the SCHED_FIFO priority used for motion tasks.
const DefaultPriority = 80

// Config configures a real-time task.
type Config struct {
	// Priority is the SCHED_FIFO priority (1-99). 0 keeps the default
	// scheduler.
	Priority int

	// Logger receives a warning when real-time scheduling is unavailable.
	Logger *log.Logger
}

// RunToCompletion runs fn on a goroutine locked to its own OS thread and
// blocks until fn returns. The thread is raised to real-time priority when
// cfg.Priority is set; if that is not permitted, fn still runs and a warning
// is logged. A panic in fn is returned as a RUNTIME error.
//
// The thread is not unlocked afterwards, so the runtime discards it instead
// of reusing a thread with changed scheduling attributes.
func RunToCompletion(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLogger("rt")
	}

	done := make(chan error, 1)
	go func() {
		runtime.LockOSThread()

		var err error
		defer func() {
			if perr := errors.RecoverPanic(recover()); perr != nil {
				err = perr
			}
			done <- err
		}()

		if cfg.Priority > 0 {
			if serr := setRealtime(cfg.Priority); serr != nil {
				logger.WithError(serr).WithField("priority", cfg.Priority).
					Warn("real-time scheduling unavailable, running with default priority")
			} else {
				logger.Debug("running task with SCHED_FIFO priority %d", cfg.Priority)
			}
		}
		err = fn(ctx)
	}()
	return <-done
}

// SleepUntil sleeps until deadline or until ctx is done, whichever comes
// first. It returns immediately if the deadline has passed.
func SleepUntil(ctx context.Context, deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
