// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package connection

// Listener receives asynchronous notifications from a Connection. The
// methods are called from their own goroutine and may block without
// stalling the connection.
type Listener interface {
	// SessionEstablished is called once the RAKP handshake completed.
	SessionEstablished(handle int)

	// SessionClosed is called after a local disconnect finished.
	SessionClosed(handle int)

	// SessionFailed is called when the connection entered its failed state.
	SessionFailed(handle int, err error)

	// UnsolicitedResponse is called for a response, sessionless or
	// in-session, matching no pending request.
	UnsolicitedResponse(handle int, payload []byte)
}
