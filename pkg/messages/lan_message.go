// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	"fmt"
	"io"
)

// Network function codes as unshifted request values; Marshal moves them into
// the upper six bits of their byte. A response uses the request's network
// function plus one.
const (
	NetFnApp uint8 = 0x06
)

// IPMI command codes of the commands this library emits itself.
const (
	CmdGetChannelAuthenticationCapabilities uint8 = 0x38
	CmdGetChannelCipherSuites               uint8 = 0x54
	CmdCloseSession                         uint8 = 0x3C
)

// Well known slave addresses.
const (
	AddressBmc           uint8 = 0x20
	AddressRemoteConsole uint8 = 0x81
)

// Completion codes of IPMI responses.
const (
	CompletionOk                 uint8 = 0x00
	CompletionInvalidSessionId   uint8 = 0x87
	CompletionInsufficientPrivs  uint8 = 0xD4
	CompletionIllegalCommand     uint8 = 0xD5
	CompletionUnspecified        uint8 = 0xFF
)

// LanMessage is an IPMI message in its LAN framing, nested inside a session
// wrapper. Requests carry no completion code; in a response it is the first
// data byte, read through CompletionCode.
type LanMessage struct {
	TargetAddress  uint8
	NetFn          uint8
	SourceAddress  uint8
	SequenceAndLun uint8
	Command        uint8
	Data           []byte
}

// NewLanRequest creates a LanMessage addressed from the remote console to the
// BMC, with the given sequence number in the upper six bits of rqSeq/LUN.
func NewLanRequest(netFn, command, sequence uint8, data []byte) LanMessage {
	return LanMessage{
		TargetAddress:  AddressBmc,
		NetFn:          netFn,
		SourceAddress:  AddressRemoteConsole,
		SequenceAndLun: sequence << 2,
		Command:        command,
		Data:           data,
	}
}

// Sequence returns the rqSeq part of the sequence/LUN byte.
func (lm LanMessage) Sequence() uint8 {
	return lm.SequenceAndLun >> 2
}

// IsResponse reports whether the network function marks a response.
func (lm LanMessage) IsResponse() bool {
	return lm.NetFn&0x01 != 0
}

// CompletionCode of a response, being its first data byte.
func (lm LanMessage) CompletionCode() (uint8, error) {
	if !lm.IsResponse() || len(lm.Data) == 0 {
		return 0, fmt.Errorf("message is no response carrying a completion code")
	}
	return lm.Data[0], nil
}

func (lm LanMessage) String() string {
	return fmt.Sprintf("IPMI(NetFn=%#x, Cmd=%#x, Seq=%d, len=%d)",
		lm.NetFn, lm.Command, lm.Sequence(), len(lm.Data))
}

// checksum is the two's complement checksum over the given bytes.
func checksum(data ...uint8) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return -sum
}

// Marshal writes the binary representation of this LanMessage.
func (lm LanMessage) Marshal(w io.Writer) error {
	header := []byte{
		lm.TargetAddress,
		lm.NetFn << 2,
		checksum(lm.TargetAddress, lm.NetFn<<2),
		lm.SourceAddress,
		lm.SequenceAndLun,
		lm.Command,
	}

	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(lm.Data); err != nil {
		return err
	}

	sum := checksum(append([]byte{lm.SourceAddress, lm.SequenceAndLun, lm.Command}, lm.Data...)...)
	_, err := w.Write([]byte{sum})
	return err
}

// Unmarshal reads a LanMessage from its binary representation. The reader
// must be limited to exactly one message, as the data field takes all bytes
// up to the trailing checksum.
func (lm *LanMessage) Unmarshal(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(raw) < 7 {
		return fmt.Errorf("IPMI LAN message of %d bytes is undersized", len(raw))
	}

	lm.TargetAddress = raw[0]
	lm.NetFn = raw[1] >> 2
	if sum := checksum(raw[0], raw[1]); sum != raw[2] {
		return fmt.Errorf("IPMI header checksum mismatch: %#x != %#x", sum, raw[2])
	}

	lm.SourceAddress = raw[3]
	lm.SequenceAndLun = raw[4]
	lm.Command = raw[5]
	lm.Data = raw[6 : len(raw)-1]

	if sum := checksum(raw[3 : len(raw)-1]...); sum != raw[len(raw)-1] {
		return fmt.Errorf("IPMI data checksum mismatch: %#x != %#x", sum, raw[len(raw)-1])
	}

	return nil
}
