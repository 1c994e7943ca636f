// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package connection

import "errors"

// The error kinds surfaced to callers. Errors returned from this package
// wrap one of these, to be inspected through errors.Is.
var (
	// ErrTransportClosed signals a send over an already closed messenger.
	ErrTransportClosed = errors.New("transport is closed")

	// ErrResponseTimeout signals an exhausted retry budget without a response.
	ErrResponseTimeout = errors.New("response timed out")

	// ErrIllegalState signals an operation invoked outside its protocol position.
	ErrIllegalState = errors.New("operation is illegal in the current state")

	// ErrProtocolViolation signals an event the state machine does not expect.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrAuthenticationFailed signals an Open Session or RAKP status code
	// other than no-error, or a RAKP2 authentication code or RAKP4 integrity
	// check value that does not match the locally derived one.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrIntegrityCheckFailed signals a bad AuthCode on an in-session response,
	// or an in-session payload that fails to decrypt.
	ErrIntegrityCheckFailed = errors.New("integrity check failed")

	// ErrSessionExpired signals a session the managed system no longer knows.
	ErrSessionExpired = errors.New("session expired")

	// ErrConnectionClosed completes the pending requests of a torn down connection.
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrConfigurationMissing signals an unusable manager configuration.
	ErrConfigurationMissing = errors.New("configuration is missing")
)
