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
	// AsfEnterprise is the IANA-assigned enterprise number of the ASF-RMCP.
	AsfEnterprise uint32 = 4542

	// AsfTypePresencePing solicits a Presence Pong from a managed system.
	AsfTypePresencePing uint8 = 0x80

	// AsfTypePresencePong is the managed system's answer to a Presence Ping.
	AsfTypePresencePong uint8 = 0x40
)

// AsfMessage is the ASF data block of an RMCP class 0x06 datagram. The
// presence ping and pong used here carry no data beyond the header.
type AsfMessage struct {
	Enterprise uint32
	Type       uint8
	Tag        uint8
	Data       []byte
}

// NewPresencePing creates an ASF Presence Ping with the given message tag.
func NewPresencePing(tag uint8) AsfMessage {
	return AsfMessage{
		Enterprise: AsfEnterprise,
		Type:       AsfTypePresencePing,
		Tag:        tag,
	}
}

func (am AsfMessage) String() string {
	return fmt.Sprintf("ASF(Enterprise=%d, Type=%#x, Tag=%d)", am.Enterprise, am.Type, am.Tag)
}

// Marshal writes the binary representation of this AsfMessage.
func (am AsfMessage) Marshal(w io.Writer) error {
	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], am.Enterprise)
	header[4] = am.Type
	header[5] = am.Tag
	header[6] = 0x00
	header[7] = uint8(len(am.Data))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	_, err := w.Write(am.Data)
	return err
}

// Unmarshal reads an AsfMessage from its binary representation.
func (am *AsfMessage) Unmarshal(r io.Reader) error {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}

	am.Enterprise = binary.BigEndian.Uint32(header[:4])
	am.Type = header[4]
	am.Tag = header[5]

	if dataLen := int(header[7]); dataLen > 0 {
		am.Data = make([]byte, dataLen)
		if _, err := io.ReadFull(r, am.Data); err != nil {
			return err
		}
	} else {
		am.Data = nil
	}

	return nil
}
