// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package security

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// CipherSuite is one of the standard IPMI v2.0 triples of authentication,
// integrity and confidentiality algorithms, identified by its suite ID.
type CipherSuite struct {
	ID              uint8
	Authentication  AuthenticationAlgorithm
	Integrity       IntegrityAlgorithm
	Confidentiality ConfidentialityAlgorithm
}

func (cs CipherSuite) String() string {
	return fmt.Sprintf("CipherSuite(%d: %v, %v, %v)", cs.ID, cs.Authentication, cs.Integrity, cs.Confidentiality)
}

// suites are the cipher suites this library supports: the standard suites
// except the xRC4 suites 4, 5, 9, 10 and 13. Suite 14 (xRC4-40) is included.
var suites = []CipherSuite{
	{0, AuthenticationNone, IntegrityNone, ConfidentialityNone},
	{1, AuthenticationHmacSha1, IntegrityNone, ConfidentialityNone},
	{2, AuthenticationHmacSha1, IntegrityHmacSha1_96, ConfidentialityNone},
	{3, AuthenticationHmacSha1, IntegrityHmacSha1_96, ConfidentialityAesCbc128},
	{6, AuthenticationHmacMd5, IntegrityNone, ConfidentialityNone},
	{7, AuthenticationHmacMd5, IntegrityHmacMd5_128, ConfidentialityNone},
	{8, AuthenticationHmacMd5, IntegrityHmacMd5_128, ConfidentialityAesCbc128},
	{11, AuthenticationHmacMd5, IntegrityMd5_128, ConfidentialityNone},
	{12, AuthenticationHmacMd5, IntegrityMd5_128, ConfidentialityAesCbc128},
	{14, AuthenticationHmacMd5, IntegrityMd5_128, ConfidentialityXRc4_40},
	{15, AuthenticationHmacSha256, IntegrityNone, ConfidentialityNone},
	{16, AuthenticationHmacSha256, IntegrityHmacSha256_128, ConfidentialityNone},
	{17, AuthenticationHmacSha256, IntegrityHmacSha256_128, ConfidentialityAesCbc128},
}

// Suites returns all supported cipher suites, ordered by ID.
func Suites() []CipherSuite {
	duplicate := make([]CipherSuite, len(suites))
	copy(duplicate, suites)
	return duplicate
}

// SuiteByID looks a supported cipher suite up.
func SuiteByID(id uint8) (CipherSuite, error) {
	for _, suite := range suites {
		if suite.ID == id {
			return suite, nil
		}
	}
	return CipherSuite{}, fmt.Errorf("cipher suite %d is not supported", id)
}

// Cipher suite record tags of the Get Channel Cipher Suites record data.
const (
	recordTagStandard uint8 = 0xC0
	recordTagOem      uint8 = 0xC1
)

// skipAlgorithmBytes advances past a record's algorithm bytes, stopping at
// the next record tag or the end of the data.
func skipAlgorithmBytes(records []byte, i int) int {
	for i < len(records) && records[i] != recordTagStandard && records[i] != recordTagOem {
		i++
	}
	return i
}

// ParseSuiteRecords extracts the suite IDs from concatenated cipher suite
// record data and resolves those this library supports. Unsupported and OEM
// suites are skipped; malformed records are collected into the returned
// error while parsing continues with the next record.
func ParseSuiteRecords(records []byte) (parsed []CipherSuite, err error) {
	for i := 0; i < len(records); {
		switch records[i] {
		case recordTagStandard:
			if i+1 >= len(records) {
				err = multierror.Append(err, fmt.Errorf("standard record at offset %d is truncated", i))
				return
			}

			if suite, suiteErr := SuiteByID(records[i+1]); suiteErr == nil {
				parsed = append(parsed, suite)
			}
			i = skipAlgorithmBytes(records, i+2)

		case recordTagOem:
			if i+4 >= len(records) {
				err = multierror.Append(err, fmt.Errorf("OEM record at offset %d is truncated", i))
				return
			}

			// suite ID plus a three byte IANA enterprise number
			i = skipAlgorithmBytes(records, i+5)

		default:
			err = multierror.Append(err, fmt.Errorf("unknown record tag %#x at offset %d", records[i], i))
			i++
		}
	}

	return
}
