// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Rakp2 is the managed system's answer to a Rakp1, carrying its own nonce,
// its GUID and the key exchange authentication code. On a non-zero status,
// the message is truncated after the console session ID.
type Rakp2 struct {
	Tag                    uint8
	Status                 StatusCode
	RemoteConsoleSessionID uint32
	ManagedSystemRandom    [16]byte
	ManagedSystemGuid      [16]byte
	AuthCode               []byte
}

func (r2 Rakp2) String() string {
	return fmt.Sprintf("RAKP2(Tag=%d, Status=%v, RemoteConsoleSessionID=%#x)",
		r2.Tag, r2.Status, r2.RemoteConsoleSessionID)
}

// Marshal writes the binary representation of this Rakp2.
func (r2 Rakp2) Marshal(w io.Writer) error {
	var header [8]byte
	header[0] = r2.Tag
	header[1] = uint8(r2.Status)
	binary.LittleEndian.PutUint32(header[4:8], r2.RemoteConsoleSessionID)

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	if r2.Status != StatusNoErrors {
		return nil
	}

	if _, err := w.Write(r2.ManagedSystemRandom[:]); err != nil {
		return err
	}
	if _, err := w.Write(r2.ManagedSystemGuid[:]); err != nil {
		return err
	}

	_, err := w.Write(r2.AuthCode)
	return err
}

// Unmarshal reads a Rakp2 from its binary representation. The reader must be
// limited to one message, as the auth code takes all remaining bytes.
func (r2 *Rakp2) Unmarshal(r io.Reader) error {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}

	r2.Tag = header[0]
	r2.Status = StatusCode(header[1])
	r2.RemoteConsoleSessionID = binary.LittleEndian.Uint32(header[4:8])

	if r2.Status != StatusNoErrors {
		r2.ManagedSystemRandom = [16]byte{}
		r2.ManagedSystemGuid = [16]byte{}
		r2.AuthCode = nil
		return nil
	}

	if _, err := io.ReadFull(r, r2.ManagedSystemRandom[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, r2.ManagedSystemGuid[:]); err != nil {
		return err
	}

	authCode, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(authCode) == 0 {
		authCode = nil
	}
	r2.AuthCode = authCode

	return nil
}
