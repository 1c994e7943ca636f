// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hashicorp/go-multierror"

	"github.com/rmcplus/rmcplus-go/pkg/config"
	"github.com/rmcplus/rmcplus-go/pkg/messages"
	"github.com/rmcplus/rmcplus-go/pkg/security"
	"github.com/rmcplus/rmcplus-go/pkg/timer"
	"github.com/rmcplus/rmcplus-go/pkg/transport"
)

// Manager owns the messenger and timer service shared by its Connections
// and keys them by dense, append-only integer handles. The sessionless
// stages acquire their message tag around each call and release it
// regardless of the outcome.
type Manager struct {
	messenger transport.Messenger
	timers    *timer.Service
	conf      config.Configuration

	tags       *TagPool
	sessionIDs *SessionIDGenerator

	connections      []*Connection
	connectionsMutex sync.Mutex

	stopFlag      bool
	stopFlagMutex sync.Mutex
}

// NewManager creates a Manager listening on the given UDP address, e.g.,
// ":0" for an ephemeral port.
func NewManager(listenAddress string, conf config.Configuration) (*Manager, error) {
	messenger, err := transport.NewUdpMessenger(listenAddress)
	if err != nil {
		return nil, err
	}

	return NewManagerWithMessenger(messenger, conf)
}

// NewManagerWithMessenger creates a Manager over an existing Messenger.
func NewManagerWithMessenger(messenger transport.Messenger, conf config.Configuration) (*Manager, error) {
	conf.ApplyDefaults()
	if err := conf.Valid(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigurationMissing, err)
	}

	m := &Manager{
		messenger:  messenger,
		timers:     timer.NewService(conf.TimerThreadPoolSize),
		conf:       conf,
		tags:       NewTagPool(),
		sessionIDs: NewSessionIDGenerator(),
	}

	log.WithField("configuration", fmt.Sprintf("%+v", conf)).Info("Connection manager started")

	return m, nil
}

// Configuration returns the Manager's effective configuration.
func (m *Manager) Configuration() config.Configuration {
	return m.conf
}

// CreateConnection binds a new Connection to a remote address and returns
// its handle. Handles are dense and never reused within one Manager.
func (m *Manager) CreateConnection(address string) (int, error) {
	return m.CreateConnectionWithPingPeriod(address, m.conf.PingPeriodDuration())
}

// CreateConnectionWithPingPeriod is CreateConnection with an explicit
// keep-alive period; zero disables the keep-alive.
func (m *Manager) CreateConnectionWithPingPeriod(address string, pingPeriod time.Duration) (int, error) {
	m.connectionsMutex.Lock()
	defer m.connectionsMutex.Unlock()

	if m.isStopped() {
		return 0, ErrConnectionClosed
	}

	conn := NewConnection(len(m.connections), m.messenger, m.timers, m.conf, m.sessionIDs)
	if err := conn.Connect(address, pingPeriod); err != nil {
		return 0, err
	}

	m.connections = append(m.connections, conn)

	return conn.Handle(), nil
}

// Connection resolves a handle.
func (m *Manager) Connection(handle int) (*Connection, error) {
	m.connectionsMutex.Lock()
	defer m.connectionsMutex.Unlock()

	if handle < 0 || handle >= len(m.connections) {
		return nil, fmt.Errorf("handle %d is unknown", handle)
	}
	return m.connections[handle], nil
}

// Connections returns all Connections in handle order.
func (m *Manager) Connections() []*Connection {
	m.connectionsMutex.Lock()
	defer m.connectionsMutex.Unlock()

	duplicate := make([]*Connection, len(m.connections))
	copy(duplicate, m.connections)
	return duplicate
}

// withTag brackets a sessionless operation with a tag acquire and release.
func (m *Manager) withTag(ctx context.Context, operation func(tag uint8) error) error {
	tag, err := m.tags.Acquire(ctx)
	if err != nil {
		return err
	}
	defer m.tags.Release(tag)

	return operation(tag)
}

// GetAvailableCipherSuites retrieves the cipher suites the managed system
// behind the handle supports. Valid directly after CreateConnection.
func (m *Manager) GetAvailableCipherSuites(ctx context.Context, handle int) (suites []security.CipherSuite, err error) {
	conn, err := m.Connection(handle)
	if err != nil {
		return nil, err
	}

	err = m.withTag(ctx, func(tag uint8) error {
		suites, err = conn.GetAvailableCipherSuites(ctx, tag)
		return err
	})
	return
}

// GetChannelAuthenticationCapabilities queries the authentication details
// for a session under the given cipher suite and privilege level. Must
// follow GetAvailableCipherSuites.
func (m *Manager) GetChannelAuthenticationCapabilities(ctx context.Context, handle int,
	suite security.CipherSuite, privilegeLevel messages.PrivilegeLevel) (caps *messages.AuthenticationCapabilities, err error) {

	conn, err := m.Connection(handle)
	if err != nil {
		return nil, err
	}

	err = m.withTag(ctx, func(tag uint8) error {
		caps, err = conn.GetChannelAuthenticationCapabilities(ctx, tag, suite, privilegeLevel)
		return err
	})
	return
}

// StartSession initiates the session behind the handle. Must follow
// GetChannelAuthenticationCapabilities.
func (m *Manager) StartSession(ctx context.Context, handle int, suite security.CipherSuite,
	privilegeLevel messages.PrivilegeLevel, username, password string, bmcKey []byte) error {

	conn, err := m.Connection(handle)
	if err != nil {
		return err
	}

	return m.withTag(ctx, func(tag uint8) error {
		return conn.StartSession(ctx, tag, suite, privilegeLevel, username, password, bmcKey)
	})
}

// SendCommand submits an IPMI command over the handle's established session.
func (m *Manager) SendCommand(ctx context.Context, handle int, netFn, command uint8, data []byte) (*messages.LanMessage, error) {
	conn, err := m.Connection(handle)
	if err != nil {
		return nil, err
	}

	return conn.SendCommand(ctx, netFn, command, data)
}

// RegisterListener adds a Listener to the handle's Connection.
func (m *Manager) RegisterListener(handle int, listener Listener) error {
	conn, err := m.Connection(handle)
	if err != nil {
		return err
	}

	conn.RegisterListener(listener)
	return nil
}

// CloseConnection disconnects the handle's Connection. The handle stays
// known, resolving to the closed Connection.
func (m *Manager) CloseConnection(handle int) error {
	conn, err := m.Connection(handle)
	if err != nil {
		return err
	}

	return conn.Disconnect()
}

func (m *Manager) isStopped() bool {
	m.stopFlagMutex.Lock()
	defer m.stopFlagMutex.Unlock()

	return m.stopFlag
}

// Close disconnects every Connection, then shuts the timer service and the
// messenger down. Errors are collected, not short-circuited.
func (m *Manager) Close() error {
	m.stopFlagMutex.Lock()
	if m.stopFlag {
		m.stopFlagMutex.Unlock()
		return nil
	}
	m.stopFlag = true
	m.stopFlagMutex.Unlock()

	var closeErr error
	for _, conn := range m.Connections() {
		if err := conn.Disconnect(); err != nil {
			closeErr = multierror.Append(closeErr, err)
		}
	}

	m.timers.Close()

	if err := m.messenger.Close(); err != nil && err != transport.ErrClosed {
		closeErr = multierror.Append(closeErr, err)
	}

	log.Info("Connection manager closed")

	return closeErr
}
