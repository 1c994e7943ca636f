// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleAfter(t *testing.T) {
	service := NewService(2)
	defer service.Close()

	fired := make(chan struct{})
	service.ScheduleAfter(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timeout")
	}
}

func TestScheduleAfterCancelled(t *testing.T) {
	service := NewService(2)
	defer service.Close()

	var fired int32
	handle := service.ScheduleAfter(50*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	handle.Cancel()
	handle.Cancel()

	time.Sleep(150 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("cancelled task fired")
	}
}

func TestScheduleAtFixedRate(t *testing.T) {
	service := NewService(2)
	defer service.Close()

	var fired int32
	handle := service.ScheduleAtFixedRate(20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(150 * time.Millisecond)
	handle.Cancel()

	if count := atomic.LoadInt32(&fired); count < 3 {
		t.Fatalf("periodic task fired %d times, expected at least 3", count)
	}

	settled := atomic.LoadInt32(&fired)
	time.Sleep(100 * time.Millisecond)
	if count := atomic.LoadInt32(&fired); count > settled+1 {
		t.Fatalf("cancelled periodic task kept firing, %d after %d", count, settled)
	}
}

func TestServiceClose(t *testing.T) {
	service := NewService(2)

	var fired int32
	service.ScheduleAtFixedRate(10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(50 * time.Millisecond)
	service.Close()
	service.Close()

	settled := atomic.LoadInt32(&fired)
	time.Sleep(100 * time.Millisecond)
	if count := atomic.LoadInt32(&fired); count != settled {
		t.Fatalf("task fired after close, %d after %d", count, settled)
	}
}
