// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package messages

// PrivilegeLevel is the IPMI privilege level requested for a session.
type PrivilegeLevel uint8

const (
	PrivilegeCallback      PrivilegeLevel = 0x01
	PrivilegeUser          PrivilegeLevel = 0x02
	PrivilegeOperator      PrivilegeLevel = 0x03
	PrivilegeAdministrator PrivilegeLevel = 0x04
	PrivilegeOem           PrivilegeLevel = 0x05
)

func (pl PrivilegeLevel) String() string {
	switch pl {
	case PrivilegeCallback:
		return "callback"
	case PrivilegeUser:
		return "user"
	case PrivilegeOperator:
		return "operator"
	case PrivilegeAdministrator:
		return "administrator"
	case PrivilegeOem:
		return "OEM"
	default:
		return "INVALID"
	}
}
