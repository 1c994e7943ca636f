// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package security enumerates the IPMI v2.0 cipher suites and implements
// their key derivation, message authentication and payload encryption.
package security

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
)

// AuthenticationAlgorithm is the RAKP authentication algorithm of a cipher suite.
type AuthenticationAlgorithm uint8

const (
	AuthenticationNone       AuthenticationAlgorithm = 0x00
	AuthenticationHmacSha1   AuthenticationAlgorithm = 0x01
	AuthenticationHmacMd5    AuthenticationAlgorithm = 0x02
	AuthenticationHmacSha256 AuthenticationAlgorithm = 0x03
)

func (aa AuthenticationAlgorithm) String() string {
	switch aa {
	case AuthenticationNone:
		return "RAKP-none"
	case AuthenticationHmacSha1:
		return "RAKP-HMAC-SHA1"
	case AuthenticationHmacMd5:
		return "RAKP-HMAC-MD5"
	case AuthenticationHmacSha256:
		return "RAKP-HMAC-SHA256"
	default:
		return "INVALID"
	}
}

// hashFactory returns the constructor of the underlying hash function.
func (aa AuthenticationAlgorithm) hashFactory() (func() hash.Hash, error) {
	switch aa {
	case AuthenticationHmacSha1:
		return sha1.New, nil
	case AuthenticationHmacMd5:
		return md5.New, nil
	case AuthenticationHmacSha256:
		return sha256.New, nil
	default:
		return nil, fmt.Errorf("authentication algorithm %v has no hash function", aa)
	}
}

// Mac computes this algorithm's keyed MAC over the concatenated data. For
// AuthenticationNone, an empty MAC is returned.
func (aa AuthenticationAlgorithm) Mac(key []byte, data ...[]byte) ([]byte, error) {
	if aa == AuthenticationNone {
		return nil, nil
	}

	factory, err := aa.hashFactory()
	if err != nil {
		return nil, err
	}

	mac := hmac.New(factory, key)
	for _, d := range data {
		mac.Write(d)
	}
	return mac.Sum(nil), nil
}

// IcvLength is the length of a RAKP4 integrity check value under this algorithm.
func (aa AuthenticationAlgorithm) IcvLength() int {
	switch aa {
	case AuthenticationHmacSha1:
		return 12
	case AuthenticationHmacMd5:
		return 16
	case AuthenticationHmacSha256:
		return 16
	default:
		return 0
	}
}

// IntegrityAlgorithm is the per-packet integrity algorithm of a cipher suite.
type IntegrityAlgorithm uint8

const (
	IntegrityNone          IntegrityAlgorithm = 0x00
	IntegrityHmacSha1_96   IntegrityAlgorithm = 0x01
	IntegrityHmacMd5_128   IntegrityAlgorithm = 0x02
	IntegrityMd5_128       IntegrityAlgorithm = 0x03
	IntegrityHmacSha256_128 IntegrityAlgorithm = 0x04
)

func (ia IntegrityAlgorithm) String() string {
	switch ia {
	case IntegrityNone:
		return "none"
	case IntegrityHmacSha1_96:
		return "HMAC-SHA1-96"
	case IntegrityHmacMd5_128:
		return "HMAC-MD5-128"
	case IntegrityMd5_128:
		return "MD5-128"
	case IntegrityHmacSha256_128:
		return "HMAC-SHA256-128"
	default:
		return "INVALID"
	}
}

// MacLength is the length of the AuthCode trailer under this algorithm.
func (ia IntegrityAlgorithm) MacLength() int {
	switch ia {
	case IntegrityHmacSha1_96:
		return 12
	case IntegrityHmacMd5_128, IntegrityMd5_128:
		return 16
	case IntegrityHmacSha256_128:
		return 16
	default:
		return 0
	}
}

// Mac computes the truncated AuthCode over the given packet bytes.
func (ia IntegrityAlgorithm) Mac(key, data []byte) ([]byte, error) {
	switch ia {
	case IntegrityNone:
		return nil, nil

	case IntegrityHmacSha1_96:
		mac := hmac.New(sha1.New, key)
		mac.Write(data)
		return mac.Sum(nil)[:12], nil

	case IntegrityHmacMd5_128:
		mac := hmac.New(md5.New, key)
		mac.Write(data)
		return mac.Sum(nil), nil

	case IntegrityMd5_128:
		// the legacy non-HMAC construction, keyed by enclosure
		sum := md5.New()
		sum.Write(key)
		sum.Write(data)
		sum.Write(key)
		return sum.Sum(nil), nil

	case IntegrityHmacSha256_128:
		mac := hmac.New(sha256.New, key)
		mac.Write(data)
		return mac.Sum(nil)[:16], nil

	default:
		return nil, fmt.Errorf("integrity algorithm %v cannot authenticate", ia)
	}
}

// ConfidentialityAlgorithm is the payload encryption algorithm of a cipher suite.
type ConfidentialityAlgorithm uint8

const (
	ConfidentialityNone      ConfidentialityAlgorithm = 0x00
	ConfidentialityAesCbc128 ConfidentialityAlgorithm = 0x01
	ConfidentialityXRc4_128  ConfidentialityAlgorithm = 0x02
	ConfidentialityXRc4_40   ConfidentialityAlgorithm = 0x03
)

func (ca ConfidentialityAlgorithm) String() string {
	switch ca {
	case ConfidentialityNone:
		return "none"
	case ConfidentialityAesCbc128:
		return "AES-CBC-128"
	case ConfidentialityXRc4_128:
		return "xRC4-128"
	case ConfidentialityXRc4_40:
		return "xRC4-40"
	default:
		return "INVALID"
	}
}

// KeyLength is the length of the confidentiality key cut from K2.
func (ca ConfidentialityAlgorithm) KeyLength() int {
	switch ca {
	case ConfidentialityAesCbc128, ConfidentialityXRc4_128:
		return 16
	case ConfidentialityXRc4_40:
		return 5
	default:
		return 0
	}
}
