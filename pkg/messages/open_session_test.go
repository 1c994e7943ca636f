// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	"bytes"
	"reflect"
	"testing"
)

func TestOpenSessionRequest(t *testing.T) {
	request := OpenSessionRequest{
		Tag:                      5,
		MaxPrivilegeLevel:        PrivilegeAdministrator,
		RemoteConsoleSessionID:   0x00000064,
		AuthenticationAlgorithm:  0x01,
		IntegrityAlgorithm:       0x01,
		ConfidentialityAlgorithm: 0x01,
	}

	expected := []byte{
		// Message Tag:
		0x05,
		// Requested Maximum Privilege Level:
		0x04,
		// Reserved:
		0x00, 0x00,
		// Remote Console Session ID, little endian:
		0x64, 0x00, 0x00, 0x00,
		// Authentication Payload:
		0x00, 0x00, 0x00, 0x08, 0x01, 0x00, 0x00, 0x00,
		// Integrity Payload:
		0x01, 0x00, 0x00, 0x08, 0x01, 0x00, 0x00, 0x00,
		// Confidentiality Payload:
		0x02, 0x00, 0x00, 0x08, 0x01, 0x00, 0x00, 0x00,
	}

	var buf bytes.Buffer
	if err := request.Marshal(&buf); err != nil {
		t.Fatal(err)
	}
	if data := buf.Bytes(); !bytes.Equal(data, expected) {
		t.Fatalf("marshalled %x, expected %x", data, expected)
	}

	var request2 OpenSessionRequest
	if err := request2.Unmarshal(&buf); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(request, request2) {
		t.Fatalf("requests differ: %v, %v", request, request2)
	}
}

func TestOpenSessionResponse(t *testing.T) {
	response := OpenSessionResponse{
		Tag:                      5,
		Status:                   StatusNoErrors,
		MaxPrivilegeLevel:        PrivilegeAdministrator,
		RemoteConsoleSessionID:   0x00000064,
		ManagedSystemSessionID:   0xAABBCCDD,
		AuthenticationAlgorithm:  0x01,
		IntegrityAlgorithm:       0x01,
		ConfidentialityAlgorithm: 0x01,
	}

	var buf bytes.Buffer
	if err := response.Marshal(&buf); err != nil {
		t.Fatal(err)
	}

	var response2 OpenSessionResponse
	if err := response2.Unmarshal(&buf); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(response, response2) {
		t.Fatalf("responses differ: %v, %v", response, response2)
	}
}

func TestOpenSessionResponseError(t *testing.T) {
	response := OpenSessionResponse{
		Tag:                    5,
		Status:                 StatusNoCipherSuiteMatch,
		RemoteConsoleSessionID: 0x00000064,
	}

	var buf bytes.Buffer
	if err := response.Marshal(&buf); err != nil {
		t.Fatal(err)
	}
	if l := buf.Len(); l != 8 {
		t.Fatalf("errored response is %d bytes, expected the truncated 8", l)
	}

	var response2 OpenSessionResponse
	if err := response2.Unmarshal(&buf); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(response, response2) {
		t.Fatalf("responses differ: %v, %v", response, response2)
	}
}
