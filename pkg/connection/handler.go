// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package connection

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rmcplus/rmcplus-go/pkg/config"
	"github.com/rmcplus/rmcplus-go/pkg/messages"
	"github.com/rmcplus/rmcplus-go/pkg/security"
	"github.com/rmcplus/rmcplus-go/pkg/timer"
	"github.com/rmcplus/rmcplus-go/pkg/transport"
)

// pipelineLimit caps the in-session requests in flight per connection.
const pipelineLimit = 16

// ipmiSeqSpace is the six bit rqSeq space of IPMI LAN messages.
const ipmiSeqSpace = 64

// pendingRequest is one outbound request awaiting its response.
type pendingRequest struct {
	key         uint8
	datagram    []byte
	future      *Future
	timeout     *timer.Handle
	retriesLeft int
	sentAt      time.Time
	pipelined   bool
}

// Handler correlates one connection's outgoing requests with incoming
// responses. It owns the session record, retries lost requests, enforces
// the replay window and feeds the keep-alive.
type Handler struct {
	remote    *net.UDPAddr
	messenger transport.Messenger
	timers    *timer.Service
	conf      config.Configuration

	session      *Session
	sessionMutex sync.RWMutex

	pending      map[uint8]*pendingRequest
	ipmiSeq      uint8
	closedFlag   bool
	pendingMutex sync.Mutex

	pipeline chan struct{}

	keepalive      *timer.Handle
	keepaliveMutex sync.Mutex

	// onFatal reports errors killing the session, e.g., a failed integrity
	// check. onUnsolicited passes responses matching no pending request.
	onFatal       func(error)
	onUnsolicited func(payload []byte)
}

// NewHandler creates a Handler bound to a remote address.
func NewHandler(remote *net.UDPAddr, messenger transport.Messenger, timers *timer.Service,
	conf config.Configuration, onFatal func(error), onUnsolicited func(payload []byte)) *Handler {

	return &Handler{
		remote:        remote,
		messenger:     messenger,
		timers:        timers,
		conf:          conf,
		pending:       make(map[uint8]*pendingRequest),
		pipeline:      make(chan struct{}, pipelineLimit),
		onFatal:       onFatal,
		onUnsolicited: onUnsolicited,
	}
}

// InstallSession activates an established session's record.
func (h *Handler) InstallSession(session *Session) {
	h.sessionMutex.Lock()
	defer h.sessionMutex.Unlock()

	h.session = session
}

// Session returns the active session record, nil before establishment.
func (h *Handler) Session() *Session {
	h.sessionMutex.RLock()
	defer h.sessionMutex.RUnlock()

	return h.session
}

// store registers a pending request and schedules its timeout.
func (h *Handler) store(request *pendingRequest) error {
	h.pendingMutex.Lock()
	defer h.pendingMutex.Unlock()

	if h.closedFlag {
		return ErrConnectionClosed
	}
	if _, taken := h.pending[request.key]; taken {
		return fmt.Errorf("correlation key %d is already in flight", request.key)
	}

	h.pending[request.key] = request
	request.timeout = h.timers.ScheduleAfter(h.conf.RequestTimeoutDuration(), func() {
		h.onTimeout(request.key)
	})

	return nil
}

// take removes and returns a pending request, if present.
func (h *Handler) take(key uint8) *pendingRequest {
	h.pendingMutex.Lock()
	defer h.pendingMutex.Unlock()

	request, ok := h.pending[key]
	if !ok {
		return nil
	}
	delete(h.pending, key)

	return request
}

// finish completes a removed request and frees its resources.
func (h *Handler) finish(request *pendingRequest, response *Response, err error) {
	if request.timeout != nil {
		request.timeout.Cancel()
	}
	if request.pipelined {
		<-h.pipeline
	}

	request.future.complete(response, err)
}

// onTimeout retries a still pending request or fails it after the budget.
// A request already completed by its response is left alone; the response
// won the tie-break by taking the pending entry first.
func (h *Handler) onTimeout(key uint8) {
	h.pendingMutex.Lock()

	request, ok := h.pending[key]
	if !ok {
		h.pendingMutex.Unlock()
		return
	}

	if request.retriesLeft > 0 {
		request.retriesLeft--
		request.sentAt = time.Now()
		request.timeout = h.timers.ScheduleAfter(h.conf.RequestTimeoutDuration(), func() {
			h.onTimeout(key)
		})
		h.pendingMutex.Unlock()

		log.WithFields(log.Fields{
			"remote":  h.remote,
			"key":     key,
			"retries": request.retriesLeft,
		}).Debug("Message handler retries request")

		if err := h.messenger.Send(h.remote, request.datagram); err != nil {
			log.WithError(err).WithField("remote", h.remote).Warn("Message handler failed to retry")
		}
		return
	}

	delete(h.pending, key)
	h.pendingMutex.Unlock()

	log.WithFields(log.Fields{
		"remote": h.remote,
		"key":    key,
	}).Debug("Message handler request timed out")

	h.finish(request, nil, ErrResponseTimeout)
}

// submit sends a datagram and tracks its pending entry. Requests without an
// expected response complete their Future directly after the send.
func (h *Handler) submit(key uint8, datagram []byte, expectResponse, pipelined bool) (*Future, error) {
	future := NewFuture()

	if !expectResponse {
		if pipelined {
			<-h.pipeline
		}
		if err := h.messenger.Send(h.remote, datagram); err != nil {
			return nil, h.mapTransportError(err)
		}

		future.complete(nil, nil)
		return future, nil
	}

	request := &pendingRequest{
		key:         key,
		datagram:    datagram,
		future:      future,
		retriesLeft: h.conf.Retries,
		sentAt:      time.Now(),
		pipelined:   pipelined,
	}

	if err := h.store(request); err != nil {
		if pipelined {
			<-h.pipeline
		}
		return nil, err
	}

	if err := h.messenger.Send(h.remote, datagram); err != nil {
		if err == transport.ErrClosed {
			if taken := h.take(key); taken != nil {
				h.finish(taken, nil, ErrTransportClosed)
			}
			return nil, ErrTransportClosed
		}

		// transient transport errors are covered by the retry budget
		log.WithError(err).WithField("remote", h.remote).Warn("Message handler failed to send")
	}

	return future, nil
}

func (h *Handler) mapTransportError(err error) error {
	if err == transport.ErrClosed {
		return ErrTransportClosed
	}
	return err
}

// marshalDatagram prepends the RMCP header to a marshalled session part.
func marshalDatagram(session []byte) []byte {
	var buf bytes.Buffer
	_ = messages.NewRmcpHeaderIpmi().Marshal(&buf)
	buf.Write(session)

	return buf.Bytes()
}

// SendPresencePing emits an ASF Presence Ping correlated by the given tag.
func (h *Handler) SendPresencePing(tag uint8) (*Future, error) {
	var buf bytes.Buffer
	_ = messages.NewRmcpHeaderAsf().Marshal(&buf)
	if err := messages.NewPresencePing(tag).Marshal(&buf); err != nil {
		return nil, err
	}

	return h.submit(tag, buf.Bytes(), true, false)
}

// SendSessionless emits an RMCP+ payload outside a session, correlated by
// the message tag embedded in the payload.
func (h *Handler) SendSessionless(payloadType uint8, msg messages.Message, tag uint8) (*Future, error) {
	var payload bytes.Buffer
	if err := msg.Marshal(&payload); err != nil {
		return nil, err
	}

	wrapper := messages.SessionWrapperV20{
		PayloadType: payloadType,
		Payload:     payload.Bytes(),
	}

	var session bytes.Buffer
	if err := wrapper.Marshal(&session); err != nil {
		return nil, err
	}

	return h.submit(tag, marshalDatagram(session.Bytes()), true, false)
}

// SendSessionlessIpmi emits an IPMI command in the v1.5 sessionless framing,
// correlated by its rqSeq, which the caller sets from a sessionless tag.
func (h *Handler) SendSessionlessIpmi(lan messages.LanMessage) (*Future, error) {
	var payload bytes.Buffer
	if err := lan.Marshal(&payload); err != nil {
		return nil, err
	}

	wrapper := messages.SessionWrapperV15{Payload: payload.Bytes()}

	var session bytes.Buffer
	if err := wrapper.Marshal(&session); err != nil {
		return nil, err
	}

	return h.submit(lan.Sequence()%ipmiSeqSpace, marshalDatagram(session.Bytes()), true, false)
}

// nextIpmiSeq issues an unused rqSeq. The pipeline limit keeps the in
// flight count well below the sequence space.
func (h *Handler) nextIpmiSeq() uint8 {
	h.pendingMutex.Lock()
	defer h.pendingMutex.Unlock()

	for {
		h.ipmiSeq = (h.ipmiSeq + 1) % ipmiSeqSpace
		if _, taken := h.pending[h.ipmiSeq]; !taken {
			return h.ipmiSeq
		}
	}
}

// SendCommand emits an IPMI command within the established session,
// wrapped in the session's confidentiality and integrity envelope. The
// Context bounds the wait for a free pipeline slot.
func (h *Handler) SendCommand(ctx context.Context, netFn, command uint8, data []byte, expectResponse bool) (*Future, error) {
	session := h.Session()
	if session == nil {
		return nil, ErrIllegalState
	}

	select {
	case h.pipeline <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	key := h.nextIpmiSeq()
	lan := messages.NewLanRequest(netFn, command, key, data)

	var payload bytes.Buffer
	if err := lan.Marshal(&payload); err != nil {
		<-h.pipeline
		return nil, err
	}

	suite := session.Suite
	authenticated := suite.Integrity != security.IntegrityNone
	encrypted := suite.Confidentiality != security.ConfidentialityNone

	payloadBytes := payload.Bytes()
	if encrypted {
		var err error
		if payloadBytes, err = security.Encrypt(suite, session.ConfidentialityKey, payloadBytes); err != nil {
			<-h.pipeline
			return nil, err
		}
	}

	wrapper := messages.SessionWrapperV20{
		PayloadType:   messages.PayloadTypeIpmi,
		Encrypted:     encrypted,
		Authenticated: authenticated,
		SessionID:     session.ManagedSystemSessionID,
		Sequence:      session.NextOutbound(authenticated),
		Payload:       payloadBytes,
	}

	var sessionBuf bytes.Buffer
	if err := wrapper.Marshal(&sessionBuf); err != nil {
		<-h.pipeline
		return nil, err
	}

	sessionBytes := sessionBuf.Bytes()
	if authenticated {
		var err error
		if sessionBytes, err = security.AppendIntegrity(suite, session.IntegrityKey, sessionBytes); err != nil {
			<-h.pipeline
			return nil, err
		}
	}

	session.Touch()

	future, err := h.submit(key, marshalDatagram(sessionBytes), expectResponse, true)
	if err != nil {
		return nil, err
	}
	return future, nil
}

// isClosed reports whether Close was called.
func (h *Handler) isClosed() bool {
	h.pendingMutex.Lock()
	defer h.pendingMutex.Unlock()

	return h.closedFlag
}

// HandleDatagram is subscribed to the messenger and filters, verifies and
// correlates every datagram of this connection's remote.
func (h *Handler) HandleDatagram(source *net.UDPAddr, datagram []byte) {
	if source == nil || !source.IP.Equal(h.remote.IP) || source.Port != h.remote.Port {
		return
	}
	if h.isClosed() {
		return
	}

	reader := bytes.NewReader(datagram)

	var rmcp messages.RmcpHeader
	if err := rmcp.Unmarshal(reader); err != nil {
		log.WithError(err).WithField("remote", h.remote).Debug("Message handler discards invalid RMCP header")
		return
	}

	switch rmcp.Class {
	case messages.RmcpClassAsf:
		h.handleAsf(reader)

	case messages.RmcpClassIpmi:
		h.handleIpmi(datagram[4:])

	default:
		log.WithFields(log.Fields{
			"remote": h.remote,
			"class":  rmcp.Class,
		}).Debug("Message handler discards unknown RMCP class")
	}
}

// handleAsf correlates a Presence Pong by its ASF tag.
func (h *Handler) handleAsf(reader *bytes.Reader) {
	var asf messages.AsfMessage
	if err := asf.Unmarshal(reader); err != nil || asf.Type != messages.AsfTypePresencePong {
		return
	}

	if request := h.take(asf.Tag); request != nil {
		h.finish(request, &Response{Payload: asf.Data}, nil)
	}
}

// handleIpmi processes the session part of an IPMI class datagram.
func (h *Handler) handleIpmi(session []byte) {
	if len(session) == 0 {
		return
	}

	switch session[0] {
	case messages.AuthTypeNone:
		h.handleV15(session)
	case messages.AuthTypeRmcpPlus:
		h.handleV20(session)
	default:
		log.WithFields(log.Fields{
			"remote":   h.remote,
			"authType": session[0],
		}).Debug("Message handler discards unknown authentication type")
	}
}

// handleV15 correlates a sessionless v1.5 response by its rqSeq.
func (h *Handler) handleV15(session []byte) {
	var wrapper messages.SessionWrapperV15
	if err := wrapper.Unmarshal(bytes.NewReader(session)); err != nil {
		log.WithError(err).WithField("remote", h.remote).Debug("Message handler discards invalid v1.5 wrapper")
		return
	}

	var lan messages.LanMessage
	if err := lan.Unmarshal(bytes.NewReader(wrapper.Payload)); err != nil {
		log.WithError(err).WithField("remote", h.remote).Debug("Message handler discards invalid IPMI message")
		return
	}

	h.deliver(lan.Sequence(), &Response{PayloadType: messages.PayloadTypeIpmi, Payload: wrapper.Payload})
}

// handleV20 verifies, decrypts and correlates an RMCP+ wrapped response.
func (h *Handler) handleV20(session []byte) {
	sessionBytes := session
	authenticated := len(session) >= 2 && session[1]&0x40 != 0

	activeSession := h.Session()
	if authenticated {
		if activeSession == nil {
			return
		}

		stripped, err := security.VerifyIntegrity(activeSession.Suite, activeSession.IntegrityKey, sessionBytes)
		if err != nil {
			log.WithError(err).WithField("remote", h.remote).Error("Message handler failed the integrity check")
			h.onFatal(ErrIntegrityCheckFailed)
			return
		}
		sessionBytes = stripped
	}

	var wrapper messages.SessionWrapperV20
	if err := wrapper.Unmarshal(bytes.NewReader(sessionBytes)); err != nil {
		log.WithError(err).WithField("remote", h.remote).Debug("Message handler discards invalid v2.0 wrapper")
		return
	}

	if wrapper.SessionID == 0 {
		h.deliverSessionless(wrapper)
		return
	}

	if activeSession == nil || wrapper.SessionID != activeSession.ConsoleSessionID {
		log.WithFields(log.Fields{
			"remote":    h.remote,
			"sessionID": wrapper.SessionID,
		}).Debug("Message handler discards foreign session ID")
		return
	}

	if !activeSession.AcceptInbound(wrapper.Authenticated, wrapper.Sequence) {
		log.WithFields(log.Fields{
			"remote":   h.remote,
			"sequence": wrapper.Sequence,
		}).Debug("Message handler discards replayed sequence")
		return
	}

	payload := wrapper.Payload
	if wrapper.Encrypted {
		decrypted, err := security.Decrypt(activeSession.Suite, activeSession.ConfidentialityKey, payload)
		if err != nil {
			log.WithError(err).WithField("remote", h.remote).Error("Message handler failed to decrypt")
			h.onFatal(ErrIntegrityCheckFailed)
			return
		}
		payload = decrypted
	}

	var lan messages.LanMessage
	if err := lan.Unmarshal(bytes.NewReader(payload)); err != nil {
		log.WithError(err).WithField("remote", h.remote).Debug("Message handler discards invalid IPMI message")
		return
	}

	activeSession.Touch()

	if code, err := lan.CompletionCode(); err == nil && code == messages.CompletionInvalidSessionId {
		h.onFatal(ErrSessionExpired)
	}

	h.deliver(lan.Sequence(), &Response{PayloadType: messages.PayloadTypeIpmi, Payload: payload})
}

// deliverSessionless correlates a sessionless RMCP+ payload by its tag.
func (h *Handler) deliverSessionless(wrapper messages.SessionWrapperV20) {
	switch wrapper.PayloadType {
	case messages.PayloadTypeOpenSession, messages.PayloadTypeRakp2, messages.PayloadTypeRakp4:
		msg, err := messages.ReadPayload(wrapper.PayloadType, bytes.NewReader(wrapper.Payload))
		if err != nil {
			log.WithError(err).WithField("remote", h.remote).Debug("Message handler discards invalid handshake payload")
			return
		}

		var tag uint8
		switch m := msg.(type) {
		case *messages.OpenSessionResponse:
			tag = m.Tag
		case *messages.Rakp2:
			tag = m.Tag
		case *messages.Rakp4:
			tag = m.Tag
		}

		h.deliver(tag, &Response{PayloadType: wrapper.PayloadType, Payload: wrapper.Payload})

	case messages.PayloadTypeGetChannelCipherSuites:
		var lan messages.LanMessage
		if err := lan.Unmarshal(bytes.NewReader(wrapper.Payload)); err != nil {
			log.WithError(err).WithField("remote", h.remote).Debug("Message handler discards invalid IPMI message")
			return
		}

		h.deliver(lan.Sequence(), &Response{PayloadType: wrapper.PayloadType, Payload: wrapper.Payload})

	default:
		log.WithFields(log.Fields{
			"remote":      h.remote,
			"payloadType": wrapper.PayloadType,
		}).Debug("Message handler discards unexpected sessionless payload")
	}
}

// deliver completes the pending request of a correlation key. A response
// without one is a stray, passed on as unsolicited.
func (h *Handler) deliver(key uint8, response *Response) {
	request := h.take(key)
	if request == nil {
		if h.onUnsolicited != nil {
			h.onUnsolicited(response.Payload)
		}
		return
	}

	h.finish(request, response, nil)
}

// StartKeepalive schedules the periodic no-op command keeping the session
// alive. A keep-alive failing after its retry budget kills the session.
func (h *Handler) StartKeepalive(period time.Duration) {
	h.keepaliveMutex.Lock()
	defer h.keepaliveMutex.Unlock()

	if h.keepalive != nil {
		h.keepalive.Cancel()
	}

	h.keepalive = h.timers.ScheduleAtFixedRate(period, func() {
		// awaiting the response must not block the timer worker
		go h.keepalivePing()
	})
}

func (h *Handler) keepalivePing() {
	budget := time.Duration(h.conf.Retries+1) * h.conf.RequestTimeoutDuration()
	ctx, cancel := context.WithTimeout(context.Background(), budget+time.Second)
	defer cancel()

	future, err := h.SendCommand(ctx, messages.NetFnApp, messages.CmdGetChannelAuthenticationCapabilities,
		messages.NewAuthCapsRequestData(messages.ChannelPresentInterface, messages.PrivilegeAdministrator), true)
	if err != nil {
		if err != ErrIllegalState && err != ErrConnectionClosed {
			h.onFatal(err)
		}
		return
	}

	if _, err := future.Await(ctx); err != nil && err != ErrConnectionClosed {
		log.WithError(err).WithField("remote", h.remote).Warn("Keep-alive failed")
		h.onFatal(err)
	}
}

// StopKeepalive cancels the keep-alive schedule.
func (h *Handler) StopKeepalive() {
	h.keepaliveMutex.Lock()
	defer h.keepaliveMutex.Unlock()

	if h.keepalive != nil {
		h.keepalive.Cancel()
		h.keepalive = nil
	}
}

// Close fails all pending requests and refuses new ones.
func (h *Handler) Close() {
	h.StopKeepalive()

	h.pendingMutex.Lock()
	h.closedFlag = true
	outstanding := h.pending
	h.pending = make(map[uint8]*pendingRequest)
	h.pendingMutex.Unlock()

	for _, request := range outstanding {
		h.finish(request, nil, ErrConnectionClosed)
	}
}
