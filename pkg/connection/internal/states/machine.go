// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package states

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// transitions is the deterministic transition table. A pair absent from it
// is a protocol violation, sending the Machine into Failed.
var transitions = map[State]map[Event]State{
	Uninitialized: {
		Default:               CiphersRetrieved,
		Timeout:               Failed,
		SessionCloseRequested: Closed,
	},
	CiphersRetrieved: {
		AuthenticationCapabilitiesReceived: AuthCapabilitiesReceived,
		Timeout:                            Failed,
		SessionCloseRequested:              Closed,
	},
	AuthCapabilitiesReceived: {
		Default:               OpenSessionSent,
		Timeout:               Failed,
		SessionCloseRequested: Closed,
	},
	OpenSessionSent: {
		OpenSessionAck:        OpenSessionComplete,
		Timeout:               Failed,
		SessionCloseRequested: Closed,
	},
	OpenSessionComplete: {
		Default:               Rakp1Sent,
		Timeout:               Failed,
		SessionCloseRequested: Closed,
	},
	Rakp1Sent: {
		Rakp2Ack:              Rakp3Waiting,
		Timeout:               Failed,
		SessionCloseRequested: Closed,
	},
	Rakp3Waiting: {
		Default:               Rakp3Sent,
		Timeout:               Failed,
		SessionCloseRequested: Closed,
	},
	Rakp3Sent: {
		Rakp4Ack:              SessionValid,
		Timeout:               Failed,
		SessionCloseRequested: Closed,
	},
	SessionValid: {
		Timeout:               Failed,
		SessionCloseRequested: SessionClosing,
	},
	SessionClosing: {
		Default: Closed,
		Timeout: Closed,
	},
}

// Next applies an Event to a State. Unexpected pairs yield Failed together
// with an error; the ProtocolError event yields Failed without one from any
// non-terminal State.
func Next(s State, e Event) (State, error) {
	if e == ProtocolError && !s.Terminal() {
		return Failed, nil
	}

	if successor, ok := transitions[s][e]; ok {
		return successor, nil
	}

	return Failed, fmt.Errorf("event %q is unexpected in state %q", e, s)
}

// Observer is notified after each transition, outside the Machine's lock.
type Observer func(from, to State, e Event)

// Machine guards the current State of one connection.
type Machine struct {
	current State
	mutex   sync.Mutex

	observer Observer
}

// NewMachine creates a Machine in Uninitialized.
func NewMachine(observer Observer) *Machine {
	return &Machine{
		current:  Uninitialized,
		observer: observer,
	}
}

// Current returns the current State.
func (m *Machine) Current() State {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.current
}

// Fire applies an Event, returning the successor State. The error of an
// unexpected pair is returned after the transition into Failed happened.
func (m *Machine) Fire(e Event) (State, error) {
	m.mutex.Lock()

	from := m.current
	to, err := Next(from, e)
	m.current = to

	m.mutex.Unlock()

	log.WithFields(log.Fields{
		"from":  from,
		"to":    to,
		"event": e,
	}).Debug("Session state machine transitioned")

	if m.observer != nil && from != to {
		m.observer(from, to, e)
	}

	return to, err
}

// Expect errors unless the current State is the given one.
func (m *Machine) Expect(s State) error {
	if current := m.Current(); current != s {
		return fmt.Errorf("state is %q, expected %q", current, s)
	}
	return nil
}
