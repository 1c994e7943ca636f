// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestUdpMessengerExchange(t *testing.T) {
	alice, err := NewUdpMessenger("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = alice.Close() }()

	bob, err := NewUdpMessenger("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = bob.Close() }()

	received := make(chan []byte, 1)
	bob.Subscribe(func(_ *net.UDPAddr, datagram []byte) {
		received <- datagram
	})

	payload := []byte{0x06, 0x00, 0xFF, 0x07, 0x13, 0x37}
	if err := alice.Send(bob.LocalAddr().(*net.UDPAddr), payload); err != nil {
		t.Fatal(err)
	}

	select {
	case datagram := <-received:
		if !bytes.Equal(datagram, payload) {
			t.Fatalf("received %x, expected %x", datagram, payload)
		}
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timeout")
	}
}

func TestUdpMessengerFanout(t *testing.T) {
	alice, err := NewUdpMessenger("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = alice.Close() }()

	bob, err := NewUdpMessenger("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = bob.Close() }()

	first := make(chan []byte, 1)
	second := make(chan []byte, 1)
	bob.Subscribe(func(_ *net.UDPAddr, datagram []byte) { first <- datagram })
	bob.Subscribe(func(_ *net.UDPAddr, datagram []byte) { second <- datagram })

	if err := alice.Send(bob.LocalAddr().(*net.UDPAddr), []byte{0x42}); err != nil {
		t.Fatal(err)
	}

	for i, subscriber := range []chan []byte{first, second} {
		select {
		case <-subscriber:
		case <-time.After(250 * time.Millisecond):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestUdpMessengerClosed(t *testing.T) {
	messenger, err := NewUdpMessenger("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	target := messenger.LocalAddr().(*net.UDPAddr)

	if err := messenger.Close(); err != nil {
		t.Fatal(err)
	}

	if err := messenger.Send(target, []byte{0x00}); err != ErrClosed {
		t.Fatalf("sending over a closed messenger returned %v", err)
	}
	if err := messenger.Close(); err != ErrClosed {
		t.Fatalf("double close returned %v", err)
	}
}
