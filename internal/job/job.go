// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package job

import (
	"context"
	"sync"
	"time"
)

// Job represents a repeating task. The task runs once right after Start and then again after
// each interval has passed since the previous run finished, so runs never overlap.
// At most one run loop is active per Job at any time.
type Job struct {
	interval time.Duration
	task     func(context.Context)

	// lifecycle serializes Start and Stop, mu guards the loop handles only
	lifecycle sync.Mutex
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a new Job with the given interval and task.
func New(interval time.Duration, task func(context.Context)) *Job {
	return &Job{
		interval: interval,
		task:     task,
	}
}

// Start launches the run loop in the background. A loop that is already active is cancelled
// and awaited first. Start reports false if the job has no task or a non-positive interval.
// The loop ends when ctx is cancelled or Stop is called.
func (j *Job) Start(ctx context.Context) bool {
	if j.task == nil || j.interval <= 0 {
		return false
	}

	j.lifecycle.Lock()
	defer j.lifecycle.Unlock()
	j.stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	j.mu.Lock()
	j.cancel, j.done = cancel, done
	j.mu.Unlock()
	go j.run(runCtx, done)

	return true
}

// Stop cancels the active run loop and waits for it to return. Calling Stop on a job that is
// not running is a no-op.
func (j *Job) Stop() {
	j.lifecycle.Lock()
	defer j.lifecycle.Unlock()
	j.stop()
}

// Running reports whether the run loop is currently active. It does not wait for a pending Stop.
func (j *Job) Running() bool {
	j.mu.Lock()
	done := j.done
	j.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// stop must be called with the lifecycle lock held.
func (j *Job) stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	j.mu.Lock()
	j.cancel, j.done = nil, nil
	j.mu.Unlock()
}

func (j *Job) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(j.interval)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		j.task(ctx)

		timer.Reset(j.interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}
