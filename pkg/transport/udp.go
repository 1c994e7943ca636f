// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
)

// maxDatagramSize bounds inbound datagrams. RMCP+ packets stay well below
// this, even with a full integrity trailer.
const maxDatagramSize = 8192

// UdpMessenger is the Messenger over one UDP socket. A background reader
// fans every inbound datagram out to all subscribed handlers.
type UdpMessenger struct {
	conn *net.UDPConn

	handlers      []Handler
	handlersMutex sync.RWMutex

	stopFlag      bool
	stopFlagMutex sync.Mutex

	readerAck chan struct{}
}

// NewUdpMessenger binds a UDP socket to the given listen address, e.g.,
// ":0" for an ephemeral port, and starts its reader.
func NewUdpMessenger(listenAddress string) (*UdpMessenger, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", listenAddress)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	um := &UdpMessenger{
		conn:      conn,
		readerAck: make(chan struct{}),
	}

	go um.reader()

	log.WithField("address", conn.LocalAddr()).Debug("UDP messenger started")

	return um, nil
}

// LocalAddr of the underlying socket.
func (um *UdpMessenger) LocalAddr() net.Addr {
	return um.conn.LocalAddr()
}

// reader receives datagrams until the socket is closed.
func (um *UdpMessenger) reader() {
	defer close(um.readerAck)

	buffer := make([]byte, maxDatagramSize)
	for {
		n, source, err := um.conn.ReadFromUDP(buffer)
		if err != nil {
			if !um.isStopped() {
				log.WithError(err).Error("UDP messenger failed to receive")
			}
			return
		}

		datagram := make([]byte, n)
		copy(datagram, buffer[:n])

		log.WithFields(log.Fields{
			"source": source,
			"length": n,
		}).Debug("UDP messenger received datagram")

		um.handlersMutex.RLock()
		for _, handler := range um.handlers {
			handler(source, datagram)
		}
		um.handlersMutex.RUnlock()
	}
}

func (um *UdpMessenger) isStopped() bool {
	um.stopFlagMutex.Lock()
	defer um.stopFlagMutex.Unlock()

	return um.stopFlag
}

// Send a datagram towards the target, best-effort.
func (um *UdpMessenger) Send(target *net.UDPAddr, datagram []byte) error {
	if um.isStopped() {
		return ErrClosed
	}

	_, err := um.conn.WriteToUDP(datagram, target)
	return err
}

// Subscribe registers a Handler for all future inbound datagrams.
func (um *UdpMessenger) Subscribe(handler Handler) {
	um.handlersMutex.Lock()
	defer um.handlersMutex.Unlock()

	um.handlers = append(um.handlers, handler)
}

// Close stops the reader and closes the socket. Subsequent Sends fail.
func (um *UdpMessenger) Close() error {
	um.stopFlagMutex.Lock()
	if um.stopFlag {
		um.stopFlagMutex.Unlock()
		return ErrClosed
	}
	um.stopFlag = true
	um.stopFlagMutex.Unlock()

	err := um.conn.Close()
	<-um.readerAck

	log.WithField("address", um.conn.LocalAddr()).Debug("UDP messenger closed")

	return err
}
