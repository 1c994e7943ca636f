// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package connection

import (
	"math"
	"sync"
)

const (
	// sessionIDStart is the first issued console session ID. The IDs below
	// are left alone, zero being the null session ID of sessionless traffic.
	sessionIDStart uint32 = 100

	// sessionIDBound wraps the counter early, leaving headroom towards the
	// managed system's ID space.
	sessionIDBound uint32 = math.MaxInt32 / 4
)

// SessionIDGenerator issues the console-side session IDs. IDs of live
// sessions are tracked, so an ID survives the counter wrapping around
// without being issued twice.
type SessionIDGenerator struct {
	mutex sync.Mutex
	next  uint32
	inUse map[uint32]struct{}
}

// NewSessionIDGenerator creates a SessionIDGenerator starting at 100.
func NewSessionIDGenerator() *SessionIDGenerator {
	return &SessionIDGenerator{
		next:  sessionIDStart,
		inUse: make(map[uint32]struct{}),
	}
}

// Acquire issues the next free session ID.
func (sg *SessionIDGenerator) Acquire() uint32 {
	sg.mutex.Lock()
	defer sg.mutex.Unlock()

	for {
		id := sg.next

		sg.next++
		if sg.next >= sessionIDBound {
			sg.next = sessionIDStart
		}

		if _, taken := sg.inUse[id]; !taken {
			sg.inUse[id] = struct{}{}
			return id
		}
	}
}

// Release returns a session ID after its session ended.
func (sg *SessionIDGenerator) Release(id uint32) {
	sg.mutex.Lock()
	defer sg.mutex.Unlock()

	delete(sg.inUse, id)
}
