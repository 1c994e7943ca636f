// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Rakp3 is sent by the remote console after validating a Rakp2, proving
// knowledge of the user's key to the managed system.
type Rakp3 struct {
	Tag                    uint8
	Status                 StatusCode
	ManagedSystemSessionID uint32
	AuthCode               []byte
}

func (r3 Rakp3) String() string {
	return fmt.Sprintf("RAKP3(Tag=%d, Status=%v, ManagedSystemSessionID=%#x)",
		r3.Tag, r3.Status, r3.ManagedSystemSessionID)
}

// Marshal writes the binary representation of this Rakp3.
func (r3 Rakp3) Marshal(w io.Writer) error {
	var header [8]byte
	header[0] = r3.Tag
	header[1] = uint8(r3.Status)
	binary.LittleEndian.PutUint32(header[4:8], r3.ManagedSystemSessionID)

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	if r3.Status != StatusNoErrors {
		return nil
	}

	_, err := w.Write(r3.AuthCode)
	return err
}

// Unmarshal reads a Rakp3 from its binary representation. The reader must be
// limited to one message, as the auth code takes all remaining bytes.
func (r3 *Rakp3) Unmarshal(r io.Reader) error {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}

	r3.Tag = header[0]
	r3.Status = StatusCode(header[1])
	r3.ManagedSystemSessionID = binary.LittleEndian.Uint32(header[4:8])

	if r3.Status != StatusNoErrors {
		r3.AuthCode = nil
		return nil
	}

	authCode, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(authCode) == 0 {
		authCode = nil
	}
	r3.AuthCode = authCode

	return nil
}
