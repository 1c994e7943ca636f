// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api serves a read-only inspection surface over a connection
// manager: a REST listing of the connections and a WebSocket stream of
// their session events. Nothing here writes to the wire.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/rmcplus/rmcplus-go/pkg/connection"
)

// ConnectionInfo is the JSON representation of one connection.
type ConnectionInfo struct {
	Handle         int    `json:"handle"`
	RemoteAddress  string `json:"remoteAddress"`
	State          string `json:"state"`
	CipherSuiteID  *uint8 `json:"cipherSuiteId,omitempty"`
	SessionPresent bool   `json:"sessionPresent"`
}

// Event is one JSON frame of the WebSocket event stream.
type Event struct {
	Handle int    `json:"handle"`
	Kind   string `json:"kind"`
	Error  string `json:"error,omitempty"`
}

// Agent inspects a Manager over HTTP. It implements connection.Listener and
// must be registered on the connections whose events it should stream.
type Agent struct {
	manager *connection.Manager
	router  *mux.Router

	upgrader websocket.Upgrader

	clients      map[*websocket.Conn]struct{}
	clientsMutex sync.Mutex
}

// NewAgent creates an Agent over the given Manager.
func NewAgent(manager *connection.Manager) *Agent {
	a := &Agent{
		manager:  manager,
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{},
		clients:  make(map[*websocket.Conn]struct{}),
	}

	a.router.HandleFunc("/connections", a.handleConnections).Methods(http.MethodGet)
	a.router.HandleFunc("/connections/{handle}", a.handleConnection).Methods(http.MethodGet)
	a.router.HandleFunc("/ws", a.handleWebsocket)

	return a
}

// ServeHTTP is a http.Handler to be bound to an HTTP endpoint.
func (a *Agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *Agent) describe(conn *connection.Connection) ConnectionInfo {
	info := ConnectionInfo{
		Handle: conn.Handle(),
		State:  conn.State(),
	}

	if remote := conn.RemoteAddr(); remote != nil {
		info.RemoteAddress = remote.String()
	}

	if suite := conn.CipherSuite(); suite != nil {
		suiteID := suite.ID
		info.CipherSuiteID = &suiteID
	}
	if conn.Session() != nil {
		info.SessionPresent = true
	}

	return info
}

// handleConnections lists all connections.
func (a *Agent) handleConnections(w http.ResponseWriter, _ *http.Request) {
	infos := make([]ConnectionInfo, 0)
	for _, conn := range a.manager.Connections() {
		infos = append(infos, a.describe(conn))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		log.WithError(err).Warn("API agent failed to write the connection listing")
	}
}

// handleConnection details one connection.
func (a *Agent) handleConnection(w http.ResponseWriter, r *http.Request) {
	handle, err := strconv.Atoi(mux.Vars(r)["handle"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := a.manager.Connection(handle)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.describe(conn)); err != nil {
		log.WithError(err).Warn("API agent failed to write the connection detail")
	}
}

// handleWebsocket upgrades and registers an event stream client.
func (a *Agent) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	client, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("API agent failed to upgrade a WebSocket client")
		return
	}

	a.clientsMutex.Lock()
	a.clients[client] = struct{}{}
	a.clientsMutex.Unlock()

	log.WithField("client", client.RemoteAddr()).Debug("API agent registered a WebSocket client")
}

// broadcast sends an Event to every WebSocket client, dropping the broken ones.
func (a *Agent) broadcast(event Event) {
	a.clientsMutex.Lock()
	defer a.clientsMutex.Unlock()

	for client := range a.clients {
		if err := client.WriteJSON(event); err != nil {
			log.WithError(err).Debug("API agent drops a WebSocket client")
			_ = client.Close()
			delete(a.clients, client)
		}
	}
}

// SessionEstablished implements connection.Listener.
func (a *Agent) SessionEstablished(handle int) {
	a.broadcast(Event{Handle: handle, Kind: "established"})
}

// SessionClosed implements connection.Listener.
func (a *Agent) SessionClosed(handle int) {
	a.broadcast(Event{Handle: handle, Kind: "closed"})
}

// SessionFailed implements connection.Listener.
func (a *Agent) SessionFailed(handle int, err error) {
	event := Event{Handle: handle, Kind: "failed"}
	if err != nil {
		event.Error = err.Error()
	}
	a.broadcast(event)
}

// UnsolicitedResponse implements connection.Listener.
func (a *Agent) UnsolicitedResponse(handle int, _ []byte) {
	a.broadcast(Event{Handle: handle, Kind: "unsolicited"})
}

// Close disconnects all WebSocket clients.
func (a *Agent) Close() {
	a.clientsMutex.Lock()
	defer a.clientsMutex.Unlock()

	for client := range a.clients {
		_ = client.Close()
		delete(a.clients, client)
	}
}
