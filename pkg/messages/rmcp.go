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
	// RmcpVersion1 identifies RMCP v1.0 in the version header field.
	RmcpVersion1 uint8 = 0x06

	// RmcpNoAckSequence indicates the receiver must not send an RMCP ACK.
	RmcpNoAckSequence uint8 = 0xFF

	// RmcpClassAsf marks an ASF payload following the RMCP header.
	RmcpClassAsf uint8 = 0x06

	// RmcpClassIpmi marks an IPMI payload following the RMCP header.
	RmcpClassIpmi uint8 = 0x07
)

// RmcpHeader is the four byte RMCP header starting every datagram.
type RmcpHeader struct {
	Version  uint8
	Sequence uint8
	Class    uint8
}

// NewRmcpHeaderIpmi creates an RmcpHeader for an IPMI class message.
func NewRmcpHeaderIpmi() RmcpHeader {
	return RmcpHeader{
		Version:  RmcpVersion1,
		Sequence: RmcpNoAckSequence,
		Class:    RmcpClassIpmi,
	}
}

// NewRmcpHeaderAsf creates an RmcpHeader for an ASF class message.
func NewRmcpHeaderAsf() RmcpHeader {
	return RmcpHeader{
		Version:  RmcpVersion1,
		Sequence: RmcpNoAckSequence,
		Class:    RmcpClassAsf,
	}
}

func (rh RmcpHeader) String() string {
	return fmt.Sprintf("RMCP(Version=%#x, Sequence=%d, Class=%#x)", rh.Version, rh.Sequence, rh.Class)
}

// Marshal writes the binary representation of this RmcpHeader.
func (rh RmcpHeader) Marshal(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, []byte{rh.Version, 0x00, rh.Sequence, rh.Class})
}

// Unmarshal reads an RmcpHeader from its binary representation.
func (rh *RmcpHeader) Unmarshal(r io.Reader) error {
	var data [4]byte
	if _, err := io.ReadFull(r, data[:]); err != nil {
		return err
	}

	rh.Version = data[0]
	rh.Sequence = data[2]
	rh.Class = data[3] & 0x0F

	if rh.Version != RmcpVersion1 {
		return fmt.Errorf("unsupported RMCP version %#x", rh.Version)
	}

	return nil
}
