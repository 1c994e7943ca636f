// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Algorithm payload type fields of the Open Session messages.
const (
	algorithmPayloadAuthentication  uint8 = 0x00
	algorithmPayloadIntegrity       uint8 = 0x01
	algorithmPayloadConfidentiality uint8 = 0x02
)

// marshalAlgorithmPayload writes one eight byte algorithm payload.
func marshalAlgorithmPayload(w io.Writer, payloadType, algorithm uint8) error {
	_, err := w.Write([]byte{payloadType, 0x00, 0x00, 0x08, algorithm & 0x3F, 0x00, 0x00, 0x00})
	return err
}

// unmarshalAlgorithmPayload reads one eight byte algorithm payload, checking
// its type field.
func unmarshalAlgorithmPayload(r io.Reader, payloadType uint8) (algorithm uint8, err error) {
	var data [8]byte
	if _, err = io.ReadFull(r, data[:]); err != nil {
		return
	}

	if data[0] != payloadType {
		err = fmt.Errorf("algorithm payload type is %#x, expected %#x", data[0], payloadType)
		return
	}

	algorithm = data[4] & 0x3F
	return
}

// OpenSessionRequest is the RMCP+ Open Session Request, proposing a console
// session ID and the three security algorithms of the chosen cipher suite.
type OpenSessionRequest struct {
	Tag                     uint8
	MaxPrivilegeLevel       PrivilegeLevel
	RemoteConsoleSessionID  uint32
	AuthenticationAlgorithm uint8
	IntegrityAlgorithm      uint8
	ConfidentialityAlgorithm uint8
}

func (osr OpenSessionRequest) String() string {
	return fmt.Sprintf("OpenSessionRequest(Tag=%d, SessionID=%#x, Algorithms=%d/%d/%d)",
		osr.Tag, osr.RemoteConsoleSessionID,
		osr.AuthenticationAlgorithm, osr.IntegrityAlgorithm, osr.ConfidentialityAlgorithm)
}

// Marshal writes the binary representation of this OpenSessionRequest.
func (osr OpenSessionRequest) Marshal(w io.Writer) error {
	var header [8]byte
	header[0] = osr.Tag
	header[1] = uint8(osr.MaxPrivilegeLevel)
	binary.LittleEndian.PutUint32(header[4:8], osr.RemoteConsoleSessionID)

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	if err := marshalAlgorithmPayload(w, algorithmPayloadAuthentication, osr.AuthenticationAlgorithm); err != nil {
		return err
	}
	if err := marshalAlgorithmPayload(w, algorithmPayloadIntegrity, osr.IntegrityAlgorithm); err != nil {
		return err
	}
	return marshalAlgorithmPayload(w, algorithmPayloadConfidentiality, osr.ConfidentialityAlgorithm)
}

// Unmarshal reads an OpenSessionRequest from its binary representation.
func (osr *OpenSessionRequest) Unmarshal(r io.Reader) (err error) {
	var header [8]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return
	}

	osr.Tag = header[0]
	osr.MaxPrivilegeLevel = PrivilegeLevel(header[1])
	osr.RemoteConsoleSessionID = binary.LittleEndian.Uint32(header[4:8])

	if osr.AuthenticationAlgorithm, err = unmarshalAlgorithmPayload(r, algorithmPayloadAuthentication); err != nil {
		return
	}
	if osr.IntegrityAlgorithm, err = unmarshalAlgorithmPayload(r, algorithmPayloadIntegrity); err != nil {
		return
	}
	osr.ConfidentialityAlgorithm, err = unmarshalAlgorithmPayload(r, algorithmPayloadConfidentiality)
	return
}

// OpenSessionResponse is the BMC's answer to an OpenSessionRequest. On a
// non-zero status, the message is truncated after the console session ID.
type OpenSessionResponse struct {
	Tag                      uint8
	Status                   StatusCode
	MaxPrivilegeLevel        PrivilegeLevel
	RemoteConsoleSessionID   uint32
	ManagedSystemSessionID   uint32
	AuthenticationAlgorithm  uint8
	IntegrityAlgorithm       uint8
	ConfidentialityAlgorithm uint8
}

func (osr OpenSessionResponse) String() string {
	return fmt.Sprintf("OpenSessionResponse(Tag=%d, Status=%v, ManagedSystemSessionID=%#x)",
		osr.Tag, osr.Status, osr.ManagedSystemSessionID)
}

// Marshal writes the binary representation of this OpenSessionResponse.
func (osr OpenSessionResponse) Marshal(w io.Writer) error {
	var header [8]byte
	header[0] = osr.Tag
	header[1] = uint8(osr.Status)
	header[2] = uint8(osr.MaxPrivilegeLevel)
	binary.LittleEndian.PutUint32(header[4:8], osr.RemoteConsoleSessionID)

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	if osr.Status != StatusNoErrors {
		return nil
	}

	var sessionID [4]byte
	binary.LittleEndian.PutUint32(sessionID[:], osr.ManagedSystemSessionID)
	if _, err := w.Write(sessionID[:]); err != nil {
		return err
	}

	if err := marshalAlgorithmPayload(w, algorithmPayloadAuthentication, osr.AuthenticationAlgorithm); err != nil {
		return err
	}
	if err := marshalAlgorithmPayload(w, algorithmPayloadIntegrity, osr.IntegrityAlgorithm); err != nil {
		return err
	}
	return marshalAlgorithmPayload(w, algorithmPayloadConfidentiality, osr.ConfidentialityAlgorithm)
}

// Unmarshal reads an OpenSessionResponse from its binary representation.
func (osr *OpenSessionResponse) Unmarshal(r io.Reader) (err error) {
	var header [8]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return
	}

	osr.Tag = header[0]
	osr.Status = StatusCode(header[1])
	osr.MaxPrivilegeLevel = PrivilegeLevel(header[2])
	osr.RemoteConsoleSessionID = binary.LittleEndian.Uint32(header[4:8])

	if osr.Status != StatusNoErrors {
		return
	}

	var sessionID [4]byte
	if _, err = io.ReadFull(r, sessionID[:]); err != nil {
		return
	}
	osr.ManagedSystemSessionID = binary.LittleEndian.Uint32(sessionID[:])

	if osr.AuthenticationAlgorithm, err = unmarshalAlgorithmPayload(r, algorithmPayloadAuthentication); err != nil {
		return
	}
	if osr.IntegrityAlgorithm, err = unmarshalAlgorithmPayload(r, algorithmPayloadIntegrity); err != nil {
		return
	}
	osr.ConfidentialityAlgorithm, err = unmarshalAlgorithmPayload(r, algorithmPayloadConfidentiality)
	return
}
