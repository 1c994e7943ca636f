// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package connection multiplexes authenticated RMCP+ sessions over one UDP
// endpoint. A Manager owns the shared messenger and timer service and hands
// out integer handles to its Connections, each driving its own session
// state machine and message handler.
package connection

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rmcplus/rmcplus-go/pkg/config"
	"github.com/rmcplus/rmcplus-go/pkg/connection/internal/states"
	"github.com/rmcplus/rmcplus-go/pkg/messages"
	"github.com/rmcplus/rmcplus-go/pkg/security"
	"github.com/rmcplus/rmcplus-go/pkg/timer"
	"github.com/rmcplus/rmcplus-go/pkg/transport"
)

// defaultPort is the well-known RMCP port.
const defaultPort = 623

// Connection binds a session state machine and a message handler to one
// remote BMC. The handshake methods must be called in their protocol
// order; each is rejected outside its state without touching the wire.
type Connection struct {
	handle int

	messenger transport.Messenger
	timers    *timer.Service
	conf      config.Configuration
	sessionIDs *SessionIDGenerator

	remote     *net.UDPAddr
	pingPeriod time.Duration

	machine *states.Machine
	handler *Handler

	// handshakeMutex serialises the handshake operations, keeping at most
	// one handshake event in flight.
	handshakeMutex sync.Mutex

	kex *security.KeyExchange

	suite      *security.CipherSuite
	suiteMutex sync.Mutex

	listeners      []Listener
	listenersMutex sync.Mutex
}

// NewConnection creates a Connection under the given handle. Connect must
// be called before any other method.
func NewConnection(handle int, messenger transport.Messenger, timers *timer.Service,
	conf config.Configuration, sessionIDs *SessionIDGenerator) *Connection {

	c := &Connection{
		handle:     handle,
		messenger:  messenger,
		timers:     timers,
		conf:       conf,
		sessionIDs: sessionIDs,
	}
	c.machine = states.NewMachine(nil)

	return c
}

// Handle returns the Manager-assigned handle.
func (c *Connection) Handle() int {
	return c.handle
}

// State returns the current session state's name.
func (c *Connection) State() string {
	return c.machine.Current().String()
}

// RemoteAddr returns the remote address, nil before Connect.
func (c *Connection) RemoteAddr() *net.UDPAddr {
	return c.remote
}

// Session returns the established session record, nil otherwise.
func (c *Connection) Session() *Session {
	if c.handler == nil {
		return nil
	}
	return c.handler.Session()
}

// CipherSuite returns the suite chosen for this Connection, nil before the
// authentication capabilities stage fixed one.
func (c *Connection) CipherSuite() *security.CipherSuite {
	c.suiteMutex.Lock()
	defer c.suiteMutex.Unlock()

	return c.suite
}

func (c *Connection) setSuite(suite security.CipherSuite) {
	c.suiteMutex.Lock()
	defer c.suiteMutex.Unlock()

	c.suite = &suite
}

// Connect binds the Connection to a remote address, with or without an
// explicit port, and subscribes it to the messenger. The pingPeriod sets
// the keep-alive frequency once a session is established; zero disables it.
func (c *Connection) Connect(address string, pingPeriod time.Duration) error {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(defaultPort))
	}

	remote, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return err
	}

	c.remote = remote
	c.pingPeriod = pingPeriod
	c.handler = NewHandler(remote, c.messenger, c.timers, c.conf, c.fail, c.notifyUnsolicited)
	c.messenger.Subscribe(c.handler.HandleDatagram)

	log.WithFields(log.Fields{
		"handle": c.handle,
		"remote": remote,
	}).Info("Connection established transport binding")

	return nil
}

// RegisterListener adds a Listener for this Connection's notifications.
func (c *Connection) RegisterListener(listener Listener) {
	c.listenersMutex.Lock()
	defer c.listenersMutex.Unlock()

	c.listeners = append(c.listeners, listener)
}

func (c *Connection) eachListener(notify func(Listener)) {
	c.listenersMutex.Lock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMutex.Unlock()

	for _, listener := range listeners {
		go notify(listener)
	}
}

func (c *Connection) notifyUnsolicited(payload []byte) {
	c.eachListener(func(l Listener) { l.UnsolicitedResponse(c.handle, payload) })
}

// fail moves the Connection into its failed state and tears the session down.
func (c *Connection) fail(err error) {
	event := states.ProtocolError
	if err == ErrResponseTimeout {
		event = states.Timeout
	}

	if _, fireErr := c.machine.Fire(event); fireErr != nil {
		err = fmt.Errorf("%w: %v", ErrProtocolViolation, fireErr)
	}

	log.WithError(err).WithField("handle", c.handle).Error("Connection failed")

	c.releaseSession()
	c.handler.Close()

	c.eachListener(func(l Listener) { l.SessionFailed(c.handle, err) })
}

func (c *Connection) releaseSession() {
	if session := c.Session(); session != nil {
		c.sessionIDs.Release(session.ConsoleSessionID)
	} else if c.kex != nil && c.kex.ConsoleSessionID != 0 {
		c.sessionIDs.Release(c.kex.ConsoleSessionID)
	}
}

// await resolves a Future, firing the Timeout event on an exhausted retry
// budget.
func (c *Connection) await(ctx context.Context, future *Future) (*Response, error) {
	response, err := future.Await(ctx)
	if err == ErrResponseTimeout || err == context.DeadlineExceeded || err == context.Canceled {
		_, _ = c.machine.Fire(states.Timeout)
		c.eachListener(func(l Listener) { l.SessionFailed(c.handle, err) })
	}
	return response, err
}

// Ping emits an ASF Presence Ping, usable before any BMC contact.
func (c *Connection) Ping(ctx context.Context, tag uint8) error {
	if err := c.machine.Expect(states.Uninitialized); err != nil {
		return fmt.Errorf("%w: %v", ErrIllegalState, err)
	}

	future, err := c.handler.SendPresencePing(tag)
	if err != nil {
		return err
	}

	_, err = c.await(ctx, future)
	return err
}

// GetAvailableCipherSuites retrieves the cipher suites the managed system
// offers, iterating the record chunks. Valid in the uninitialized state
// only; success advances to ciphers retrieved.
func (c *Connection) GetAvailableCipherSuites(ctx context.Context, tag uint8) ([]security.CipherSuite, error) {
	c.handshakeMutex.Lock()
	defer c.handshakeMutex.Unlock()

	if err := c.machine.Expect(states.Uninitialized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalState, err)
	}

	var records []byte
	for listIndex := uint8(0); listIndex < 0x40; listIndex++ {
		request := messages.NewGetChannelCipherSuitesRequest(listIndex)

		var data bytes.Buffer
		if err := request.Marshal(&data); err != nil {
			return nil, err
		}

		lan := messages.NewLanRequest(messages.NetFnApp, messages.CmdGetChannelCipherSuites, tag%ipmiSeqSpace, data.Bytes())

		var payload bytes.Buffer
		if err := lan.Marshal(&payload); err != nil {
			return nil, err
		}

		wrapper := messages.SessionWrapperV20{
			PayloadType: messages.PayloadTypeGetChannelCipherSuites,
			Payload:     payload.Bytes(),
		}

		var session bytes.Buffer
		if err := wrapper.Marshal(&session); err != nil {
			return nil, err
		}

		future, err := c.handler.submit(tag%ipmiSeqSpace, marshalDatagram(session.Bytes()), true, false)
		if err != nil {
			return nil, err
		}

		response, err := c.await(ctx, future)
		if err != nil {
			return nil, err
		}

		chunk, err := decodeCipherSuitesChunk(response.Payload)
		if err != nil {
			_, _ = c.machine.Fire(states.ProtocolError)
			return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}

		records = append(records, chunk.RecordsChunk...)
		if chunk.Final() {
			break
		}
	}

	suites, err := security.ParseSuiteRecords(records)
	if err != nil {
		log.WithError(err).WithField("handle", c.handle).Warn("Connection skips malformed cipher suite records")
	}

	if _, err := c.machine.Fire(states.Default); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	return suites, nil
}

// decodeCipherSuitesChunk unwraps a cipher suites response from its LAN message.
func decodeCipherSuitesChunk(payload []byte) (*messages.GetChannelCipherSuitesResponse, error) {
	var lan messages.LanMessage
	if err := lan.Unmarshal(bytes.NewReader(payload)); err != nil {
		return nil, err
	}

	code, err := lan.CompletionCode()
	if err != nil {
		return nil, err
	}
	if code != messages.CompletionOk {
		return nil, fmt.Errorf("completion code %#x", code)
	}

	var chunk messages.GetChannelCipherSuitesResponse
	if err := chunk.Unmarshal(bytes.NewReader(lan.Data[1:])); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// GetChannelAuthenticationCapabilities queries the authentication process
// details and fixes the cipher suite for the upcoming session. Valid after
// the cipher suites were retrieved.
func (c *Connection) GetChannelAuthenticationCapabilities(ctx context.Context, tag uint8,
	suite security.CipherSuite, privilegeLevel messages.PrivilegeLevel) (*messages.AuthenticationCapabilities, error) {

	c.handshakeMutex.Lock()
	defer c.handshakeMutex.Unlock()

	if err := c.machine.Expect(states.CiphersRetrieved); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalState, err)
	}

	c.setSuite(suite)

	lan := messages.NewLanRequest(messages.NetFnApp, messages.CmdGetChannelAuthenticationCapabilities,
		tag%ipmiSeqSpace, messages.NewAuthCapsRequestData(messages.ChannelPresentInterface, privilegeLevel))

	future, err := c.handler.SendSessionlessIpmi(lan)
	if err != nil {
		return nil, err
	}

	response, err := c.await(ctx, future)
	if err != nil {
		return nil, err
	}

	var lanResponse messages.LanMessage
	if err := lanResponse.Unmarshal(bytes.NewReader(response.Payload)); err != nil {
		_, _ = c.machine.Fire(states.ProtocolError)
		return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	code, codeErr := lanResponse.CompletionCode()
	if codeErr != nil || code != messages.CompletionOk {
		_, _ = c.machine.Fire(states.ProtocolError)
		return nil, fmt.Errorf("%w: completion code %#x", ErrProtocolViolation, code)
	}

	var caps messages.AuthenticationCapabilities
	if err := caps.Unmarshal(bytes.NewReader(lanResponse.Data[1:])); err != nil {
		_, _ = c.machine.Fire(states.ProtocolError)
		return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	if _, err := c.machine.Fire(states.AuthenticationCapabilitiesReceived); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	return &caps, nil
}

// StartSession performs the RMCP+ open session and RAKP exchange,
// installing the session keys on success. Valid after the authentication
// capabilities were received.
func (c *Connection) StartSession(ctx context.Context, tag uint8, suite security.CipherSuite,
	privilegeLevel messages.PrivilegeLevel, username, password string, bmcKey []byte) error {

	c.handshakeMutex.Lock()
	defer c.handshakeMutex.Unlock()

	if err := c.machine.Expect(states.AuthCapabilitiesReceived); err != nil {
		return fmt.Errorf("%w: %v", ErrIllegalState, err)
	}

	kex := &security.KeyExchange{
		Suite:            suite,
		Username:         username,
		Password:         []byte(password),
		BmcKey:           bmcKey,
		Privilege:        uint8(privilegeLevel),
		ConsoleSessionID: c.sessionIDs.Acquire(),
	}
	c.kex = kex
	c.setSuite(suite)

	openResponse, err := c.openSession(ctx, tag, kex, privilegeLevel)
	if err != nil {
		return err
	}
	kex.ManagedSessionID = openResponse.ManagedSystemSessionID

	rakp2, err := c.exchangeRakp12(ctx, tag, kex)
	if err != nil {
		return err
	}
	kex.ManagedRandom = rakp2.ManagedSystemRandom
	kex.ManagedGuid = rakp2.ManagedSystemGuid

	if err := c.verifyRakp2(kex, rakp2); err != nil {
		return err
	}

	if err := c.exchangeRakp34(ctx, tag, kex); err != nil {
		return err
	}

	if err := c.installSession(kex, rakp2.AuthCode); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"handle":    c.handle,
		"remote":    c.remote,
		"suite":     suite,
		"privilege": privilegeLevel,
	}).Info("Connection established session")

	c.eachListener(func(l Listener) { l.SessionEstablished(c.handle) })

	return nil
}

func (c *Connection) openSession(ctx context.Context, tag uint8, kex *security.KeyExchange,
	privilegeLevel messages.PrivilegeLevel) (*messages.OpenSessionResponse, error) {

	if _, err := c.machine.Fire(states.Default); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	request := messages.OpenSessionRequest{
		Tag:                      tag,
		MaxPrivilegeLevel:        privilegeLevel,
		RemoteConsoleSessionID:   kex.ConsoleSessionID,
		AuthenticationAlgorithm:  uint8(kex.Suite.Authentication),
		IntegrityAlgorithm:       uint8(kex.Suite.Integrity),
		ConfidentialityAlgorithm: uint8(kex.Suite.Confidentiality),
	}

	future, err := c.handler.SendSessionless(messages.PayloadTypeOpenSession, &request, tag)
	if err != nil {
		return nil, err
	}

	raw, err := c.await(ctx, future)
	if err != nil {
		return nil, err
	}

	var response messages.OpenSessionResponse
	if err := response.Unmarshal(bytes.NewReader(raw.Payload)); err != nil {
		return nil, c.handshakeViolation(err)
	}

	if response.Status != messages.StatusNoErrors {
		return nil, c.handshakeAuthFailure(response.Status)
	}
	if response.Tag != tag || response.RemoteConsoleSessionID != kex.ConsoleSessionID {
		return nil, c.handshakeViolation(fmt.Errorf("open session response for foreign tag or session"))
	}

	if _, err := c.machine.Fire(states.OpenSessionAck); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	return &response, nil
}

func (c *Connection) exchangeRakp12(ctx context.Context, tag uint8, kex *security.KeyExchange) (*messages.Rakp2, error) {
	if _, err := rand.Read(kex.ConsoleRandom[:]); err != nil {
		return nil, err
	}

	if _, err := c.machine.Fire(states.Default); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	rakp1 := messages.Rakp1{
		Tag:                    tag,
		ManagedSystemSessionID: kex.ManagedSessionID,
		RemoteConsoleRandom:    kex.ConsoleRandom,
		MaxPrivilegeLevel:      messages.PrivilegeLevel(kex.Privilege),
		Username:               kex.Username,
	}

	future, err := c.handler.SendSessionless(messages.PayloadTypeRakp1, &rakp1, tag)
	if err != nil {
		return nil, err
	}

	raw, err := c.await(ctx, future)
	if err != nil {
		return nil, err
	}

	var rakp2 messages.Rakp2
	if err := rakp2.Unmarshal(bytes.NewReader(raw.Payload)); err != nil {
		return nil, c.handshakeViolation(err)
	}

	if rakp2.Status != messages.StatusNoErrors {
		return nil, c.handshakeAuthFailure(rakp2.Status)
	}
	if rakp2.Tag != tag || rakp2.RemoteConsoleSessionID != kex.ConsoleSessionID {
		return nil, c.handshakeViolation(fmt.Errorf("RAKP2 for foreign tag or session"))
	}

	return &rakp2, nil
}

func (c *Connection) verifyRakp2(kex *security.KeyExchange, rakp2 *messages.Rakp2) error {
	expected, err := kex.Rakp2AuthCode()
	if err != nil {
		return c.handshakeViolation(err)
	}

	if !hmac.Equal(expected, rakp2.AuthCode) {
		_, _ = c.machine.Fire(states.ProtocolError)
		c.releaseSession()
		c.eachListener(func(l Listener) { l.SessionFailed(c.handle, ErrAuthenticationFailed) })
		return fmt.Errorf("%w: RAKP2 authentication code mismatch", ErrAuthenticationFailed)
	}

	if _, err := c.machine.Fire(states.Rakp2Ack); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	return nil
}

func (c *Connection) exchangeRakp34(ctx context.Context, tag uint8, kex *security.KeyExchange) error {
	if _, err := c.machine.Fire(states.Default); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	authCode, err := kex.Rakp3AuthCode()
	if err != nil {
		return c.handshakeViolation(err)
	}

	rakp3 := messages.Rakp3{
		Tag:                    tag,
		Status:                 messages.StatusNoErrors,
		ManagedSystemSessionID: kex.ManagedSessionID,
		AuthCode:               authCode,
	}

	future, err := c.handler.SendSessionless(messages.PayloadTypeRakp3, &rakp3, tag)
	if err != nil {
		return err
	}

	raw, err := c.await(ctx, future)
	if err != nil {
		return err
	}

	var rakp4 messages.Rakp4
	if err := rakp4.Unmarshal(bytes.NewReader(raw.Payload)); err != nil {
		return c.handshakeViolation(err)
	}

	if rakp4.Status != messages.StatusNoErrors {
		return c.handshakeAuthFailure(rakp4.Status)
	}
	if rakp4.Tag != tag || rakp4.RemoteConsoleSessionID != kex.ConsoleSessionID {
		return c.handshakeViolation(fmt.Errorf("RAKP4 for foreign tag or session"))
	}

	expectedIcv, err := kex.Rakp4Icv()
	if err != nil {
		return c.handshakeViolation(err)
	}
	if !hmac.Equal(expectedIcv, rakp4.IntegrityCheckValue) {
		_, _ = c.machine.Fire(states.ProtocolError)
		c.releaseSession()
		c.eachListener(func(l Listener) { l.SessionFailed(c.handle, ErrAuthenticationFailed) })
		return fmt.Errorf("%w: RAKP4 integrity check value mismatch", ErrAuthenticationFailed)
	}

	if _, err := c.machine.Fire(states.Rakp4Ack); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	return nil
}

func (c *Connection) installSession(kex *security.KeyExchange, authCode []byte) error {
	k1, err := kex.K1()
	if err != nil {
		return c.handshakeViolation(err)
	}
	confidentialityKey, err := kex.ConfidentialityKey()
	if err != nil {
		return c.handshakeViolation(err)
	}

	session := &Session{
		ManagedSystemSessionID: kex.ManagedSessionID,
		ConsoleSessionID:       kex.ConsoleSessionID,
		Suite:                  kex.Suite,
		IntegrityKey:           k1,
		ConfidentialityKey:     confidentialityKey,
		AuthCode:               authCode,
	}
	session.Touch()

	c.handler.InstallSession(session)
	if c.pingPeriod > 0 {
		c.handler.StartKeepalive(c.pingPeriod)
	}

	return nil
}

// handshakeViolation fails the handshake on an invalid message.
func (c *Connection) handshakeViolation(err error) error {
	_, _ = c.machine.Fire(states.ProtocolError)
	c.releaseSession()
	c.eachListener(func(l Listener) { l.SessionFailed(c.handle, ErrProtocolViolation) })

	return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
}

// handshakeAuthFailure terminates the handshake on a RAKP error status.
func (c *Connection) handshakeAuthFailure(status messages.StatusCode) error {
	_, _ = c.machine.Fire(states.ProtocolError)
	c.releaseSession()
	c.eachListener(func(l Listener) { l.SessionFailed(c.handle, ErrAuthenticationFailed) })

	return fmt.Errorf("%w: %v", ErrAuthenticationFailed, status)
}

// SendCommand submits an IPMI command within the established session and
// blocks for its response.
func (c *Connection) SendCommand(ctx context.Context, netFn, command uint8, data []byte) (*messages.LanMessage, error) {
	if err := c.machine.Expect(states.SessionValid); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalState, err)
	}

	future, err := c.handler.SendCommand(ctx, netFn, command, data, true)
	if err != nil {
		return nil, err
	}

	response, err := future.Await(ctx)
	if err != nil {
		return nil, err
	}

	var lan messages.LanMessage
	if err := lan.Unmarshal(bytes.NewReader(response.Payload)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}

	return &lan, nil
}

// Disconnect closes the session, sending a Close Session command if one is
// established, and completes all pending requests.
func (c *Connection) Disconnect() error {
	c.handshakeMutex.Lock()
	defer c.handshakeMutex.Unlock()

	state := c.machine.Current()
	if state == states.Failed || state == states.Closed {
		return nil
	}

	if state == states.SessionValid {
		if _, err := c.machine.Fire(states.SessionCloseRequested); err != nil {
			return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}

		c.handler.StopKeepalive()
		c.sendCloseSession()

		if _, err := c.machine.Fire(states.Default); err != nil {
			return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
	} else {
		if _, err := c.machine.Fire(states.SessionCloseRequested); err != nil {
			return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}
	}

	c.releaseSession()
	c.handler.Close()

	log.WithField("handle", c.handle).Info("Connection closed")

	c.eachListener(func(l Listener) { l.SessionClosed(c.handle) })

	return nil
}

// sendCloseSession emits the Close Session command, best-effort.
func (c *Connection) sendCloseSession() {
	session := c.Session()
	if session == nil {
		return
	}

	request := messages.CloseSessionRequest{SessionID: session.ManagedSystemSessionID}

	var data bytes.Buffer
	if err := request.Marshal(&data); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.conf.RequestTimeoutDuration())
	defer cancel()

	future, err := c.handler.SendCommand(ctx, messages.NetFnApp, messages.CmdCloseSession, data.Bytes(), true)
	if err != nil {
		return
	}

	if _, err := future.Await(ctx); err != nil {
		log.WithError(err).WithField("handle", c.handle).Debug("Close session command went unanswered")
	}
}
