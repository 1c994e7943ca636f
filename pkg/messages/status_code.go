// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package messages

// StatusCode reports the outcome of an RMCP+ open session or RAKP message.
type StatusCode uint8

const (
	StatusNoErrors                  StatusCode = 0x00
	StatusInsufficientResources     StatusCode = 0x01
	StatusInvalidSessionId          StatusCode = 0x02
	StatusInvalidPayloadType        StatusCode = 0x03
	StatusInvalidAuthAlgorithm      StatusCode = 0x04
	StatusInvalidIntegrityAlgorithm StatusCode = 0x05
	StatusNoMatchingAuthPayload     StatusCode = 0x06
	StatusNoMatchingIntegrityPair   StatusCode = 0x07
	StatusInactiveSessionId         StatusCode = 0x08
	StatusInvalidRole               StatusCode = 0x09
	StatusUnauthorizedRole          StatusCode = 0x0A
	StatusInsufficientRoleResources StatusCode = 0x0B
	StatusInvalidNameLength         StatusCode = 0x0C
	StatusUnauthorizedName          StatusCode = 0x0D
	StatusUnauthorizedGuid          StatusCode = 0x0E
	StatusInvalidIntegrityValue     StatusCode = 0x0F
	StatusInvalidConfAlgorithm      StatusCode = 0x10
	StatusNoCipherSuiteMatch        StatusCode = 0x11
	StatusIllegalParameter          StatusCode = 0x12
)

func (sc StatusCode) String() string {
	switch sc {
	case StatusNoErrors:
		return "no errors"
	case StatusInsufficientResources:
		return "insufficient resources to create a session"
	case StatusInvalidSessionId:
		return "invalid session ID"
	case StatusInvalidPayloadType:
		return "invalid payload type"
	case StatusInvalidAuthAlgorithm:
		return "invalid authentication algorithm"
	case StatusInvalidIntegrityAlgorithm:
		return "invalid integrity algorithm"
	case StatusNoMatchingAuthPayload:
		return "no matching authentication payload"
	case StatusNoMatchingIntegrityPair:
		return "no matching integrity payload"
	case StatusInactiveSessionId:
		return "inactive session ID"
	case StatusInvalidRole:
		return "invalid role"
	case StatusUnauthorizedRole:
		return "unauthorized role or privilege level requested"
	case StatusInsufficientRoleResources:
		return "insufficient resources to create a session at the requested role"
	case StatusInvalidNameLength:
		return "invalid name length"
	case StatusUnauthorizedName:
		return "unauthorized name"
	case StatusUnauthorizedGuid:
		return "unauthorized GUID"
	case StatusInvalidIntegrityValue:
		return "invalid integrity check value"
	case StatusInvalidConfAlgorithm:
		return "invalid confidentiality algorithm"
	case StatusNoCipherSuiteMatch:
		return "no cipher suite match with proposed security algorithms"
	case StatusIllegalParameter:
		return "illegal or unrecognized parameter"
	default:
		return "UNKNOWN"
	}
}
