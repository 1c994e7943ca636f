// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package transport provides the shared UDP endpoint below all connections.
// It moves raw datagrams only; session demultiplexing happens above, where
// the session IDs are known.
package transport

import (
	"errors"
	"net"
)

// ErrClosed is returned when sending over an already closed Messenger.
var ErrClosed = errors.New("messenger is closed")

// Handler is a subscriber's callback, invoked sequentially in receive order
// for every inbound datagram. Implementations decide themselves if a
// datagram concerns them; the Messenger does not demultiplex.
type Handler func(source *net.UDPAddr, datagram []byte)

// Messenger is a datagram endpoint shared by all connections of a manager.
type Messenger interface {
	// Send a datagram towards the target, best-effort.
	Send(target *net.UDPAddr, datagram []byte) error

	// Subscribe registers a Handler for all future inbound datagrams.
	Subscribe(handler Handler)

	// Close stops receiving and releases the endpoint.
	Close() error
}
