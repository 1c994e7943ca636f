// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Rakp1 is sent by the remote console to start the authenticated key
// exchange, carrying its random nonce and the login parameters.
type Rakp1 struct {
	Tag                    uint8
	ManagedSystemSessionID uint32
	RemoteConsoleRandom    [16]byte
	MaxPrivilegeLevel      PrivilegeLevel
	Username               string
}

func (r1 Rakp1) String() string {
	return fmt.Sprintf("RAKP1(Tag=%d, ManagedSystemSessionID=%#x, Privilege=%v, Username=%s)",
		r1.Tag, r1.ManagedSystemSessionID, r1.MaxPrivilegeLevel, r1.Username)
}

// Marshal writes the binary representation of this Rakp1.
func (r1 Rakp1) Marshal(w io.Writer) error {
	if len(r1.Username) > 16 {
		return fmt.Errorf("username of %d bytes exceeds the 16 byte maximum", len(r1.Username))
	}

	var header [28]byte
	header[0] = r1.Tag
	binary.LittleEndian.PutUint32(header[4:8], r1.ManagedSystemSessionID)
	copy(header[8:24], r1.RemoteConsoleRandom[:])
	header[24] = uint8(r1.MaxPrivilegeLevel) & 0x0F
	header[27] = uint8(len(r1.Username))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	_, err := io.WriteString(w, r1.Username)
	return err
}

// Unmarshal reads a Rakp1 from its binary representation.
func (r1 *Rakp1) Unmarshal(r io.Reader) error {
	var header [28]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}

	r1.Tag = header[0]
	r1.ManagedSystemSessionID = binary.LittleEndian.Uint32(header[4:8])
	copy(r1.RemoteConsoleRandom[:], header[8:24])
	r1.MaxPrivilegeLevel = PrivilegeLevel(header[24] & 0x0F)

	username := make([]byte, header[27])
	if _, err := io.ReadFull(r, username); err != nil {
		return err
	}
	r1.Username = string(username)

	return nil
}
