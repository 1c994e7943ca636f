// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rmcplus/rmcplus-go/pkg/config"
	"github.com/rmcplus/rmcplus-go/pkg/connection"
	"github.com/rmcplus/rmcplus-go/pkg/transport"
)

func testManager(t *testing.T) *connection.Manager {
	messenger, err := transport.NewUdpMessenger("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	manager, err := connection.NewManagerWithMessenger(messenger, config.Default())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	return manager
}

func TestConnectionListing(t *testing.T) {
	manager := testManager(t)
	agent := NewAgent(manager)

	server := httptest.NewServer(agent)
	defer server.Close()

	response, err := http.Get(server.URL + "/connections")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = response.Body.Close() }()

	var infos []ConnectionInfo
	if err := json.NewDecoder(response.Body).Decode(&infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 0 {
		t.Fatalf("fresh manager lists %d connections", len(infos))
	}

	handle, err := manager.CreateConnectionWithPingPeriod("192.0.2.10", 0)
	if err != nil {
		t.Fatal(err)
	}

	detail, err := http.Get(server.URL + "/connections/0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = detail.Body.Close() }()

	var info ConnectionInfo
	if err := json.NewDecoder(detail.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}

	if info.Handle != handle || info.State != "uninitialized" || info.SessionPresent {
		t.Fatalf("connection detail is %+v", info)
	}
	if !strings.HasPrefix(info.RemoteAddress, "192.0.2.10:") {
		t.Fatalf("remote address is %q", info.RemoteAddress)
	}
}

func TestConnectionDetailUnknown(t *testing.T) {
	manager := testManager(t)
	agent := NewAgent(manager)

	server := httptest.NewServer(agent)
	defer server.Close()

	response, err := http.Get(server.URL + "/connections/42")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown handle answered %d", response.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	manager := testManager(t)
	agent := NewAgent(manager)
	defer agent.Close()

	server := httptest.NewServer(agent)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = client.Close() }()

	// the upgrade handler registers the client right after the dial returns
	time.Sleep(50 * time.Millisecond)

	agent.SessionEstablished(3)

	var event Event
	if err := client.ReadJSON(&event); err != nil {
		t.Fatal(err)
	}
	if event.Handle != 3 || event.Kind != "established" {
		t.Fatalf("received event %+v", event)
	}
}
