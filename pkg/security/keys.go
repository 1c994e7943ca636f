// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package security

import (
	"encoding/binary"
	"fmt"
)

// The constants keying the additional key material derived from the SIK.
var (
	k1Constant = [20]byte{0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01,
		0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01}
	k2Constant = [20]byte{0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x02,
		0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x02, 0x02}
)

// KeyExchange bundles the parameters of one RAKP key exchange. The nonces
// and session IDs fill up as the handshake progresses.
type KeyExchange struct {
	Suite    CipherSuite
	Username string
	Password []byte

	// BmcKey is the K_g key of two-key authentication, nil otherwise.
	BmcKey []byte

	Privilege uint8

	ConsoleSessionID uint32
	ManagedSessionID uint32
	ConsoleRandom    [16]byte
	ManagedRandom    [16]byte
	ManagedGuid      [16]byte
}

// generationKey is K_g if two-key authentication is in use, K_uid otherwise.
func (kex *KeyExchange) generationKey() []byte {
	if len(kex.BmcKey) > 0 {
		return kex.BmcKey
	}
	return kex.Password
}

// usernameBytes is the length-prefixed username of the key derivation inputs.
func (kex *KeyExchange) usernameBytes() []byte {
	return append([]byte{uint8(len(kex.Username))}, kex.Username...)
}

// Sik derives the session integrity key from the exchanged nonces.
func (kex *KeyExchange) Sik() ([]byte, error) {
	return kex.Suite.Authentication.Mac(kex.generationKey(),
		kex.ManagedRandom[:],
		kex.ConsoleRandom[:],
		[]byte{kex.Privilege},
		kex.usernameBytes())
}

// K1 derives the integrity key from the session integrity key.
func (kex *KeyExchange) K1() ([]byte, error) {
	sik, err := kex.Sik()
	if err != nil {
		return nil, err
	}
	return kex.Suite.Authentication.Mac(sik, k1Constant[:])
}

// K2 derives the confidentiality key from the session integrity key.
func (kex *KeyExchange) K2() ([]byte, error) {
	sik, err := kex.Sik()
	if err != nil {
		return nil, err
	}
	return kex.Suite.Authentication.Mac(sik, k2Constant[:])
}

// ConfidentialityKey cuts the cipher key of the suite's confidentiality
// algorithm from K2.
func (kex *KeyExchange) ConfidentialityKey() ([]byte, error) {
	k2, err := kex.K2()
	if err != nil {
		return nil, err
	}

	keyLen := kex.Suite.Confidentiality.KeyLength()
	if keyLen > len(k2) {
		return nil, fmt.Errorf("K2 of %d bytes is too short for a %d byte cipher key", len(k2), keyLen)
	}
	return k2[:keyLen], nil
}

// Rakp2AuthCode is the managed system's key exchange authentication code,
// verified by the remote console against a received RAKP2.
func (kex *KeyExchange) Rakp2AuthCode() ([]byte, error) {
	var sessionIDs [8]byte
	binary.LittleEndian.PutUint32(sessionIDs[0:4], kex.ConsoleSessionID)
	binary.LittleEndian.PutUint32(sessionIDs[4:8], kex.ManagedSessionID)

	return kex.Suite.Authentication.Mac(kex.Password,
		sessionIDs[:],
		kex.ConsoleRandom[:],
		kex.ManagedRandom[:],
		kex.ManagedGuid[:],
		[]byte{kex.Privilege},
		kex.usernameBytes())
}

// Rakp3AuthCode is the remote console's key exchange authentication code,
// sent within a RAKP3.
func (kex *KeyExchange) Rakp3AuthCode() ([]byte, error) {
	var sessionID [4]byte
	binary.LittleEndian.PutUint32(sessionID[:], kex.ConsoleSessionID)

	return kex.Suite.Authentication.Mac(kex.Password,
		kex.ManagedRandom[:],
		sessionID[:],
		[]byte{kex.Privilege},
		kex.usernameBytes())
}

// Rakp4Icv is the SIK-keyed integrity check value closing the handshake,
// verified by the remote console against a received RAKP4.
func (kex *KeyExchange) Rakp4Icv() ([]byte, error) {
	sik, err := kex.Sik()
	if err != nil {
		return nil, err
	}

	var sessionID [4]byte
	binary.LittleEndian.PutUint32(sessionID[:], kex.ManagedSessionID)

	icv, err := kex.Suite.Authentication.Mac(sik,
		kex.ConsoleRandom[:],
		sessionID[:],
		kex.ManagedGuid[:])
	if err != nil {
		return nil, err
	}

	return icv[:kex.Suite.Authentication.IcvLength()], nil
}
