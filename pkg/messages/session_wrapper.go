// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// AuthTypeNone is the IPMI v1.5 session authentication type used for
	// sessionless commands like Get Channel Authentication Capabilities.
	AuthTypeNone uint8 = 0x00

	// AuthTypeRmcpPlus marks an IPMI v2.0 / RMCP+ session wrapper.
	AuthTypeRmcpPlus uint8 = 0x06

	// payloadEncrypted is set in the payload type byte if the payload is encrypted.
	payloadEncrypted uint8 = 0x80

	// payloadAuthenticated is set in the payload type byte if the wrapper carries an AuthCode trailer.
	payloadAuthenticated uint8 = 0x40
)

// SessionWrapperV15 is the IPMI v1.5 session header used for the sessionless
// commands preceding an RMCP+ session. Neither authentication nor a non-zero
// session are supported, both being superseded by RMCP+.
type SessionWrapperV15 struct {
	Sequence  uint32
	SessionID uint32
	Payload   []byte
}

func (sw SessionWrapperV15) String() string {
	return fmt.Sprintf("SessionV15(Sequence=%d, SessionID=%#x, len=%d)",
		sw.Sequence, sw.SessionID, len(sw.Payload))
}

// Marshal writes the binary representation of this SessionWrapperV15.
func (sw SessionWrapperV15) Marshal(w io.Writer) error {
	if len(sw.Payload) > 0xFF {
		return fmt.Errorf("v1.5 payload length %d exceeds one byte", len(sw.Payload))
	}

	var header [10]byte
	header[0] = AuthTypeNone
	binary.LittleEndian.PutUint32(header[1:5], sw.Sequence)
	binary.LittleEndian.PutUint32(header[5:9], sw.SessionID)
	header[9] = uint8(len(sw.Payload))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	_, err := w.Write(sw.Payload)
	return err
}

// Unmarshal reads a SessionWrapperV15 from its binary representation.
func (sw *SessionWrapperV15) Unmarshal(r io.Reader) error {
	var header [10]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}

	if header[0] != AuthTypeNone {
		return fmt.Errorf("unsupported v1.5 authentication type %#x", header[0])
	}

	sw.Sequence = binary.LittleEndian.Uint32(header[1:5])
	sw.SessionID = binary.LittleEndian.Uint32(header[5:9])

	sw.Payload = make([]byte, header[9])
	if _, err := io.ReadFull(r, sw.Payload); err != nil {
		return err
	}

	return nil
}

// SessionWrapperV20 is the RMCP+ session wrapper. Marshal emits the header
// and the payload; the integrity trailer of authenticated packets is appended
// afterwards by the security layer, which also strips it before Unmarshal.
type SessionWrapperV20 struct {
	PayloadType   uint8
	Encrypted     bool
	Authenticated bool
	SessionID     uint32
	Sequence      uint32
	Payload       []byte
}

func (sw SessionWrapperV20) String() string {
	return fmt.Sprintf("SessionV20(PayloadType=%#x, SessionID=%#x, Sequence=%d, Encrypted=%t, Authenticated=%t, len=%d)",
		sw.PayloadType, sw.SessionID, sw.Sequence, sw.Encrypted, sw.Authenticated, len(sw.Payload))
}

// Marshal writes the binary representation of this SessionWrapperV20.
func (sw SessionWrapperV20) Marshal(w io.Writer) error {
	if len(sw.Payload) > 0xFFFF {
		return fmt.Errorf("v2.0 payload length %d exceeds two bytes", len(sw.Payload))
	}

	payloadType := sw.PayloadType & 0x3F
	if sw.Encrypted {
		payloadType |= payloadEncrypted
	}
	if sw.Authenticated {
		payloadType |= payloadAuthenticated
	}

	var header [12]byte
	header[0] = AuthTypeRmcpPlus
	header[1] = payloadType
	binary.LittleEndian.PutUint32(header[2:6], sw.SessionID)
	binary.LittleEndian.PutUint32(header[6:10], sw.Sequence)
	binary.LittleEndian.PutUint16(header[10:12], uint16(len(sw.Payload)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	_, err := w.Write(sw.Payload)
	return err
}

// Unmarshal reads a SessionWrapperV20 from its binary representation.
func (sw *SessionWrapperV20) Unmarshal(r io.Reader) error {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}

	if header[0] != AuthTypeRmcpPlus {
		return fmt.Errorf("expected RMCP+ authentication type %#x, got %#x", AuthTypeRmcpPlus, header[0])
	}

	sw.PayloadType = header[1] & 0x3F
	sw.Encrypted = header[1]&payloadEncrypted != 0
	sw.Authenticated = header[1]&payloadAuthenticated != 0
	sw.SessionID = binary.LittleEndian.Uint32(header[2:6])
	sw.Sequence = binary.LittleEndian.Uint32(header[6:10])

	sw.Payload = make([]byte, binary.LittleEndian.Uint16(header[10:12]))
	if _, err := io.ReadFull(r, sw.Payload); err != nil {
		return err
	}

	return nil
}
