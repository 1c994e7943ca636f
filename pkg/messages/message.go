// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package messages implements the RMCP and IPMI v2.0 wire formats used when
// talking to a BMC: the RMCP header, the ASF presence ping, both session
// wrappers and the RMCP+ session establishment payloads.
package messages

import (
	"fmt"
	"io"
	"reflect"
)

// Message describes all kind of RMCP+ messages, which have their serialization and deserialization in common.
type Message interface {
	Marshal(w io.Writer) error
	Unmarshal(r io.Reader) error
}

// RMCP+ payload types carried in the v2.0 session wrapper.
const (
	// PayloadTypeIpmi is a regular IPMI message within an established session.
	PayloadTypeIpmi uint8 = 0x00

	// PayloadTypeGetChannelCipherSuites requests the cipher suite records, outside a session.
	PayloadTypeGetChannelCipherSuites uint8 = 0x10

	// PayloadTypeOpenSession is the RMCP+ Open Session Request and Response.
	PayloadTypeOpenSession uint8 = 0x11

	// PayloadTypeRakp1 to PayloadTypeRakp4 are the four RAKP handshake messages.
	PayloadTypeRakp1 uint8 = 0x12
	PayloadTypeRakp2 uint8 = 0x13
	PayloadTypeRakp3 uint8 = 0x14
	PayloadTypeRakp4 uint8 = 0x15
)

// payloads maps the payload type codes of BMC-originated messages to an example instance of their type.
var payloads = map[uint8]Message{
	PayloadTypeOpenSession: &OpenSessionResponse{},
	PayloadTypeRakp2:       &Rakp2{},
	PayloadTypeRakp4:       &Rakp4{},
}

// NewPayload creates a new Message for a BMC-originated payload type code.
func NewPayload(payloadType uint8) (msg Message, err error) {
	msgType, exists := payloads[payloadType]
	if !exists {
		err = fmt.Errorf("no RMCP+ payload registered for type code %#x", payloadType)
		return
	}

	msgElem := reflect.TypeOf(msgType).Elem()
	msg = reflect.New(msgElem).Interface().(Message)
	return
}

// ReadPayload parses a BMC-originated payload of the given type from the Reader.
func ReadPayload(payloadType uint8, r io.Reader) (msg Message, err error) {
	if msg, err = NewPayload(payloadType); err != nil {
		return
	}

	err = msg.Unmarshal(r)
	return
}
