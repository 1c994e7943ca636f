// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	"encoding/binary"
	"fmt"
	"io"
)

// CloseSessionRequest is the command data of a Close Session request,
// naming the managed system's session ID to tear down.
type CloseSessionRequest struct {
	SessionID uint32
}

func (cs CloseSessionRequest) String() string {
	return fmt.Sprintf("CloseSessionRequest(SessionID=%#x)", cs.SessionID)
}

// Marshal writes the binary representation of this CloseSessionRequest.
func (cs CloseSessionRequest) Marshal(w io.Writer) error {
	var data [4]byte
	binary.LittleEndian.PutUint32(data[:], cs.SessionID)

	_, err := w.Write(data[:])
	return err
}

// Unmarshal reads a CloseSessionRequest from its binary representation.
func (cs *CloseSessionRequest) Unmarshal(r io.Reader) error {
	var data [4]byte
	if _, err := io.ReadFull(r, data[:]); err != nil {
		return err
	}

	cs.SessionID = binary.LittleEndian.Uint32(data[:])
	return nil
}
