// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	"fmt"
	"io"
)

// AuthenticationCapabilities is the decoded response data of a Get Channel
// Authentication Capabilities command.
type AuthenticationCapabilities struct {
	Channel               uint8
	Ipmi20Supported       bool
	AuthenticationTypes   uint8
	KgStatus              bool
	PerMessageDisabled    bool
	UserLevelDisabled     bool
	NonNullUsersEnabled   bool
	NullUsersEnabled      bool
	AnonymousLoginEnabled bool
	OemID                 uint32
}

func (ac AuthenticationCapabilities) String() string {
	return fmt.Sprintf("AuthenticationCapabilities(Channel=%#x, IPMI2.0=%t, KG=%t)",
		ac.Channel, ac.Ipmi20Supported, ac.KgStatus)
}

// NewAuthCapsRequestData builds the two byte command data of a Get Channel
// Authentication Capabilities request, asking for IPMI v2.0+ information.
func NewAuthCapsRequestData(channel uint8, privilegeLevel PrivilegeLevel) []byte {
	return []byte{
		1<<7 | channel&0x0F,
		uint8(privilegeLevel) & 0x0F,
	}
}

// Marshal writes the response data bytes following the completion code.
func (ac AuthenticationCapabilities) Marshal(w io.Writer) error {
	var data [8]byte
	data[0] = ac.Channel

	data[1] = ac.AuthenticationTypes & 0x3F
	if ac.Ipmi20Supported {
		data[1] |= 1 << 7
	}

	if ac.KgStatus {
		data[2] |= 1 << 5
	}
	if ac.PerMessageDisabled {
		data[2] |= 1 << 4
	}
	if ac.UserLevelDisabled {
		data[2] |= 1 << 3
	}
	if ac.NonNullUsersEnabled {
		data[2] |= 1 << 2
	}
	if ac.NullUsersEnabled {
		data[2] |= 1 << 1
	}
	if ac.AnonymousLoginEnabled {
		data[2] |= 1
	}

	// data[3] are the extended capabilities, of which only IPMI v2.0
	// connections are of interest here.
	if ac.Ipmi20Supported {
		data[3] |= 1 << 1
	}

	data[4] = uint8(ac.OemID)
	data[5] = uint8(ac.OemID >> 8)
	data[6] = uint8(ac.OemID >> 16)

	_, err := w.Write(data[:])
	return err
}

// Unmarshal reads the response data bytes following the completion code.
func (ac *AuthenticationCapabilities) Unmarshal(r io.Reader) error {
	var data [8]byte
	if _, err := io.ReadFull(r, data[:]); err != nil {
		return err
	}

	ac.Channel = data[0]
	ac.Ipmi20Supported = data[1]&(1<<7) != 0
	ac.AuthenticationTypes = data[1] & 0x3F
	ac.KgStatus = data[2]&(1<<5) != 0
	ac.PerMessageDisabled = data[2]&(1<<4) != 0
	ac.UserLevelDisabled = data[2]&(1<<3) != 0
	ac.NonNullUsersEnabled = data[2]&(1<<2) != 0
	ac.NullUsersEnabled = data[2]&(1<<1) != 0
	ac.AnonymousLoginEnabled = data[2]&1 != 0
	ac.OemID = uint32(data[4]) | uint32(data[5])<<8 | uint32(data[6])<<16

	return nil
}
