// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package security

import (
	"bytes"
	"testing"
)

func TestIntegrityTrailer(t *testing.T) {
	suite, _ := SuiteByID(3)
	k1 := bytes.Repeat([]byte{0x11}, 20)

	packet := []byte{0x06, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x02, 0x00, 0xAA, 0xBB}

	authenticated, err := AppendIntegrity(suite, k1, append([]byte{}, packet...))
	if err != nil {
		t.Fatal(err)
	}

	trailerLen := len(authenticated) - suite.Integrity.MacLength()
	if trailerLen%4 != 0 {
		t.Fatalf("authenticated body of %d bytes misses the four byte alignment", trailerLen)
	}

	stripped, err := VerifyIntegrity(suite, k1, authenticated)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(stripped, packet) {
		t.Fatalf("stripped packet is %x, expected %x", stripped, packet)
	}
}

func TestIntegrityTrailerTampered(t *testing.T) {
	suite, _ := SuiteByID(3)
	k1 := bytes.Repeat([]byte{0x11}, 20)

	authenticated, err := AppendIntegrity(suite, k1, []byte{0x06, 0x00, 0x01, 0x02})
	if err != nil {
		t.Fatal(err)
	}

	authenticated[2] ^= 0xFF
	if _, err := VerifyIntegrity(suite, k1, authenticated); err == nil {
		t.Fatal("verifying a tampered packet succeeded")
	}
}

func TestIntegrityNone(t *testing.T) {
	suite, _ := SuiteByID(0)

	packet := []byte{0x06, 0x00, 0x01}
	authenticated, err := AppendIntegrity(suite, nil, packet)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(authenticated, packet) {
		t.Fatal("suite 0 altered the packet")
	}
}

func TestEncryptAesCbc(t *testing.T) {
	suite, _ := SuiteByID(3)
	key := bytes.Repeat([]byte{0x22}, 16)

	for _, payloadLen := range []int{0, 1, 15, 16, 17, 64} {
		payload := bytes.Repeat([]byte{0x5A}, payloadLen)

		encrypted, err := Encrypt(suite, key, payload)
		if err != nil {
			t.Fatal(err)
		}
		if len(encrypted)%16 != 0 {
			t.Fatalf("ciphertext of %d bytes misses the block alignment", len(encrypted))
		}
		if payloadLen >= 16 && bytes.Contains(encrypted, payload) {
			t.Fatal("ciphertext contains the plaintext")
		}

		decrypted, err := Decrypt(suite, key, encrypted)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(decrypted, payload) {
			t.Fatalf("decrypted %x, expected %x", decrypted, payload)
		}
	}
}

func TestDecryptAesCbcMalformed(t *testing.T) {
	suite, _ := SuiteByID(3)
	key := bytes.Repeat([]byte{0x22}, 16)

	if _, err := Decrypt(suite, key, bytes.Repeat([]byte{0x00}, 17)); err == nil {
		t.Fatal("decrypting an unaligned payload succeeded")
	}
	if _, err := Decrypt(suite, key, bytes.Repeat([]byte{0x00}, 16)); err == nil {
		t.Fatal("decrypting a payload without a ciphertext block succeeded")
	}
}

func TestEncryptXRc4(t *testing.T) {
	suite, _ := SuiteByID(14)
	key := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	payload := []byte("in-session command")
	encrypted, err := Encrypt(suite, key, payload)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(encrypted, payload) {
		t.Fatal("xRC4 left the payload unchanged")
	}

	decrypted, err := Decrypt(suite, key, encrypted)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decrypted, payload) {
		t.Fatalf("decrypted %x, expected %x", decrypted, payload)
	}
}
