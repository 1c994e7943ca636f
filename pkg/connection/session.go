// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package connection

import (
	"sync"
	"time"

	"github.com/rmcplus/rmcplus-go/pkg/security"
)

// Session is the record of one established RMCP+ session. It is created
// after a validated RAKP4, mutated only by the message handler, and
// destroyed on close, fatal error or a BMC-reported expiry.
type Session struct {
	// ManagedSystemSessionID was issued by the BMC in its Open Session Response.
	ManagedSystemSessionID uint32

	// ConsoleSessionID was issued by the local session ID generator.
	ConsoleSessionID uint32

	// Suite is the negotiated cipher suite.
	Suite security.CipherSuite

	// IntegrityKey is K1, keying the per-packet AuthCode.
	IntegrityKey []byte

	// ConfidentialityKey is cut from K2 for the suite's cipher.
	ConfidentialityKey []byte

	// AuthCode is the RAKP2 key exchange authentication code the session
	// was established with.
	AuthCode []byte

	mutex sync.Mutex

	// The outbound sequence pairs, for authenticated and unauthenticated
	// packets. Issued strictly increasing under the mutex.
	outboundAuth   uint32
	outboundUnauth uint32

	// The inbound acceptance windows over the BMC's two sequence pairs.
	inboundAuth   replayWindow
	inboundUnauth replayWindow

	lastActivity time.Time
}

// NextOutbound issues the next outbound session sequence number.
func (s *Session) NextOutbound(authenticated bool) uint32 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if authenticated {
		s.outboundAuth++
		return s.outboundAuth
	}

	s.outboundUnauth++
	return s.outboundUnauth
}

// AcceptInbound checks a received session sequence number against the
// matching acceptance window.
func (s *Session) AcceptInbound(authenticated bool, sequence uint32) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if authenticated {
		return s.inboundAuth.Accept(sequence)
	}
	return s.inboundUnauth.Accept(sequence)
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.lastActivity = time.Now()
}

// LastActivity returns the time of the last session traffic.
func (s *Session) LastActivity() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.lastActivity
}
