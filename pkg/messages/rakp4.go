// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Rakp4 closes the key exchange. Its integrity check value is keyed with the
// session integrity key, proving both sides derived the same keys.
type Rakp4 struct {
	Tag                    uint8
	Status                 StatusCode
	RemoteConsoleSessionID uint32
	IntegrityCheckValue    []byte
}

func (r4 Rakp4) String() string {
	return fmt.Sprintf("RAKP4(Tag=%d, Status=%v, RemoteConsoleSessionID=%#x)",
		r4.Tag, r4.Status, r4.RemoteConsoleSessionID)
}

// Marshal writes the binary representation of this Rakp4.
func (r4 Rakp4) Marshal(w io.Writer) error {
	var header [8]byte
	header[0] = r4.Tag
	header[1] = uint8(r4.Status)
	binary.LittleEndian.PutUint32(header[4:8], r4.RemoteConsoleSessionID)

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	if r4.Status != StatusNoErrors {
		return nil
	}

	_, err := w.Write(r4.IntegrityCheckValue)
	return err
}

// Unmarshal reads a Rakp4 from its binary representation. The reader must be
// limited to one message, as the check value takes all remaining bytes.
func (r4 *Rakp4) Unmarshal(r io.Reader) error {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}

	r4.Tag = header[0]
	r4.Status = StatusCode(header[1])
	r4.RemoteConsoleSessionID = binary.LittleEndian.Uint32(header[4:8])

	if r4.Status != StatusNoErrors {
		r4.IntegrityCheckValue = nil
		return nil
	}

	checkValue, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(checkValue) == 0 {
		checkValue = nil
	}
	r4.IntegrityCheckValue = checkValue

	return nil
}
