// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package states

// Event advances a connection's State.
type Event uint8

const (
	// Default acknowledges a successful response without a dedicated event,
	// advancing to the next protocol position.
	Default Event = iota

	// AuthenticationCapabilitiesReceived follows a successful Get Channel
	// Authentication Capabilities response.
	AuthenticationCapabilitiesReceived

	// OpenSessionAck follows a validated Open Session Response.
	OpenSessionAck

	// Rakp2Ack follows a validated RAKP2.
	Rakp2Ack

	// Rakp4Ack follows a validated RAKP4.
	Rakp4Ack

	// Timeout marks an outstanding request's exhausted retry budget.
	Timeout

	// SessionCloseRequested marks a local close.
	SessionCloseRequested

	// ProtocolError marks an invalid or unexpected message.
	ProtocolError
)

func (e Event) String() string {
	switch e {
	case Default:
		return "default ack"
	case AuthenticationCapabilitiesReceived:
		return "authentication capabilities received"
	case OpenSessionAck:
		return "open session ack"
	case Rakp2Ack:
		return "RAKP2 ack"
	case Rakp4Ack:
		return "RAKP4 ack"
	case Timeout:
		return "timeout"
	case SessionCloseRequested:
		return "session close requested"
	case ProtocolError:
		return "protocol error"
	default:
		return "INVALID"
	}
}
