// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package timer runs scheduled tasks, one-shot and periodic, on a bounded
// worker pool shared by all connections of a manager.
package timer

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultPoolSize is the worker count used if the configuration names none.
const DefaultPoolSize = 5

// Task is a scheduled function. Tasks run on pool workers and must not
// block indefinitely, as they would starve the pool.
type Task func()

// Handle cancels a scheduled task. Cancellation is best-effort and
// idempotent; an already dispatched task still runs at most once.
type Handle struct {
	cancelSyn  chan struct{}
	cancelOnce sync.Once
}

// Cancel the scheduled task.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		close(h.cancelSyn)
	})
}

func (h *Handle) cancelled() bool {
	select {
	case <-h.cancelSyn:
		return true
	default:
		return false
	}
}

// Service schedules tasks onto its worker pool.
type Service struct {
	queue chan Task

	stopSyn  chan struct{}
	stopOnce sync.Once

	workersAck sync.WaitGroup
}

// NewService starts a Service with the given amount of pool workers.
func NewService(poolSize int) *Service {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	s := &Service{
		queue:   make(chan Task, 64),
		stopSyn: make(chan struct{}),
	}

	s.workersAck.Add(poolSize)
	for i := 0; i < poolSize; i++ {
		go s.worker()
	}

	log.WithField("workers", poolSize).Debug("Timer service started")

	return s
}

func (s *Service) worker() {
	defer s.workersAck.Done()

	for {
		select {
		case <-s.stopSyn:
			return

		case task := <-s.queue:
			task()
		}
	}
}

// dispatch hands a task to the pool unless the Service was closed.
func (s *Service) dispatch(task Task) {
	select {
	case <-s.stopSyn:
	case s.queue <- task:
	}
}

// ScheduleAfter runs the task once after the delay has passed.
func (s *Service) ScheduleAfter(delay time.Duration, task Task) *Handle {
	handle := &Handle{cancelSyn: make(chan struct{})}

	go func() {
		delayTimer := time.NewTimer(delay)
		defer delayTimer.Stop()

		select {
		case <-handle.cancelSyn:
		case <-s.stopSyn:
		case <-delayTimer.C:
			s.dispatch(task)
		}
	}()

	return handle
}

// ScheduleAtFixedRate runs the task every period until cancelled.
func (s *Service) ScheduleAtFixedRate(period time.Duration, task Task) *Handle {
	handle := &Handle{cancelSyn: make(chan struct{})}

	go func() {
		periodTicker := time.NewTicker(period)
		defer periodTicker.Stop()

		for {
			select {
			case <-handle.cancelSyn:
				return
			case <-s.stopSyn:
				return
			case <-periodTicker.C:
				if !handle.cancelled() {
					s.dispatch(task)
				}
			}
		}
	}()

	return handle
}

// Close stops the workers. Pending tasks are dropped; running tasks finish.
func (s *Service) Close() {
	s.stopOnce.Do(func() {
		close(s.stopSyn)
		s.workersAck.Wait()

		log.Debug("Timer service closed")
	})
}
