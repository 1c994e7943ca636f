// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package connection

import (
	"bytes"
	"net"
	"sync"

	"github.com/rmcplus/rmcplus-go/pkg/messages"
	"github.com/rmcplus/rmcplus-go/pkg/security"
	"github.com/rmcplus/rmcplus-go/pkg/transport"
)

// mockMessenger is an in-memory Messenger. Sent datagrams are recorded and,
// if an onSend hook is set, handed to it; inject plays a datagram back to
// all subscribers.
type mockMessenger struct {
	mutex    sync.Mutex
	handlers []transport.Handler
	sent     [][]byte
	injected [][]byte
	closed   bool

	onSend func(target *net.UDPAddr, datagram []byte)
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{}
}

func (mm *mockMessenger) Send(target *net.UDPAddr, datagram []byte) error {
	duplicate := make([]byte, len(datagram))
	copy(duplicate, datagram)

	mm.mutex.Lock()
	if mm.closed {
		mm.mutex.Unlock()
		return transport.ErrClosed
	}
	mm.sent = append(mm.sent, duplicate)
	hook := mm.onSend
	mm.mutex.Unlock()

	if hook != nil {
		hook(target, duplicate)
	}
	return nil
}

func (mm *mockMessenger) Subscribe(handler transport.Handler) {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	mm.handlers = append(mm.handlers, handler)
}

func (mm *mockMessenger) Close() error {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	if mm.closed {
		return transport.ErrClosed
	}
	mm.closed = true
	return nil
}

func (mm *mockMessenger) inject(source *net.UDPAddr, datagram []byte) {
	mm.mutex.Lock()
	handlers := make([]transport.Handler, len(mm.handlers))
	copy(handlers, mm.handlers)
	mm.injected = append(mm.injected, datagram)
	closed := mm.closed
	mm.mutex.Unlock()

	if closed {
		return
	}
	for _, handler := range handlers {
		handler(source, datagram)
	}
}

func (mm *mockMessenger) sentCount() int {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	return len(mm.sent)
}

func (mm *mockMessenger) lastInjected() []byte {
	mm.mutex.Lock()
	defer mm.mutex.Unlock()

	if len(mm.injected) == 0 {
		return nil
	}
	return mm.injected[len(mm.injected)-1]
}

// mockBmc scripts a managed system's side of the RMCP+ handshake and
// answers in-session commands with empty success responses.
type mockBmc struct {
	addr      *net.UDPAddr
	messenger *mockMessenger

	suite    security.CipherSuite
	username string
	password string

	managedSID    uint32
	managedRandom [16]byte
	guid          [16]byte

	mutex        sync.Mutex
	consoleSID   uint32
	kex          *security.KeyExchange
	outboundSeq  uint32
	inSessionSeq []uint32
	inSessionCmd []uint8
}

func newMockBmc(messenger *mockMessenger, suite security.CipherSuite, password string) *mockBmc {
	bmc := &mockBmc{
		addr:       &net.UDPAddr{IP: net.ParseIP("192.0.2.10"), Port: 623},
		messenger:  messenger,
		suite:      suite,
		password:   password,
		managedSID: 0xAABBCCDD,
	}
	for i := range bmc.managedRandom {
		bmc.managedRandom[i] = byte(i)
	}
	for i := range bmc.guid {
		bmc.guid[i] = byte(0xA0 + i)
	}

	messenger.onSend = bmc.handle
	return bmc
}

// sessionSequences returns the inbound session sequences in receive order.
func (bmc *mockBmc) sessionSequences() []uint32 {
	bmc.mutex.Lock()
	defer bmc.mutex.Unlock()

	duplicate := make([]uint32, len(bmc.inSessionSeq))
	copy(duplicate, bmc.inSessionSeq)
	return duplicate
}

// sessionCommands returns the in-session command codes in receive order.
func (bmc *mockBmc) sessionCommands() []uint8 {
	bmc.mutex.Lock()
	defer bmc.mutex.Unlock()

	duplicate := make([]uint8, len(bmc.inSessionCmd))
	copy(duplicate, bmc.inSessionCmd)
	return duplicate
}

func (bmc *mockBmc) handle(target *net.UDPAddr, datagram []byte) {
	if target == nil || !target.IP.Equal(bmc.addr.IP) || target.Port != bmc.addr.Port {
		return
	}

	reader := bytes.NewReader(datagram)

	var rmcp messages.RmcpHeader
	if err := rmcp.Unmarshal(reader); err != nil || rmcp.Class != messages.RmcpClassIpmi {
		return
	}

	session := datagram[4:]
	if len(session) == 0 {
		return
	}

	switch session[0] {
	case messages.AuthTypeNone:
		bmc.handleV15(session)
	case messages.AuthTypeRmcpPlus:
		bmc.handleV20(session)
	}
}

func (bmc *mockBmc) handleV15(session []byte) {
	var wrapper messages.SessionWrapperV15
	if err := wrapper.Unmarshal(bytes.NewReader(session)); err != nil {
		return
	}

	var lan messages.LanMessage
	if err := lan.Unmarshal(bytes.NewReader(wrapper.Payload)); err != nil {
		return
	}

	if lan.Command != messages.CmdGetChannelAuthenticationCapabilities {
		return
	}

	caps := messages.AuthenticationCapabilities{
		Channel:             0x01,
		Ipmi20Supported:     true,
		NonNullUsersEnabled: true,
	}

	var capsData bytes.Buffer
	capsData.WriteByte(messages.CompletionOk)
	_ = caps.Marshal(&capsData)

	response := bmc.lanResponse(lan, capsData.Bytes())

	var payload bytes.Buffer
	_ = response.Marshal(&payload)

	var sessionBuf bytes.Buffer
	_ = messages.SessionWrapperV15{Payload: payload.Bytes()}.Marshal(&sessionBuf)

	bmc.inject(sessionBuf.Bytes())
}

func (bmc *mockBmc) lanResponse(request messages.LanMessage, data []byte) messages.LanMessage {
	return messages.LanMessage{
		TargetAddress:  messages.AddressRemoteConsole,
		NetFn:          request.NetFn | 0x01,
		SourceAddress:  messages.AddressBmc,
		SequenceAndLun: request.SequenceAndLun,
		Command:        request.Command,
		Data:           data,
	}
}

func (bmc *mockBmc) inject(session []byte) {
	var datagram bytes.Buffer
	_ = messages.NewRmcpHeaderIpmi().Marshal(&datagram)
	datagram.Write(session)

	bmc.messenger.inject(bmc.addr, datagram.Bytes())
}

func (bmc *mockBmc) injectSessionless(payloadType uint8, msg messages.Message) {
	var payload bytes.Buffer
	_ = msg.Marshal(&payload)

	var session bytes.Buffer
	_ = messages.SessionWrapperV20{PayloadType: payloadType, Payload: payload.Bytes()}.Marshal(&session)

	bmc.inject(session.Bytes())
}

func (bmc *mockBmc) handleV20(session []byte) {
	if session[1]&0x40 != 0 {
		bmc.handleInSession(session)
		return
	}

	var wrapper messages.SessionWrapperV20
	if err := wrapper.Unmarshal(bytes.NewReader(session)); err != nil {
		return
	}

	if wrapper.SessionID != 0 {
		bmc.handleInSession(session)
		return
	}

	switch wrapper.PayloadType {
	case messages.PayloadTypeGetChannelCipherSuites:
		bmc.handleCipherSuites(wrapper.Payload)
	case messages.PayloadTypeOpenSession:
		bmc.handleOpenSession(wrapper.Payload)
	case messages.PayloadTypeRakp1:
		bmc.handleRakp1(wrapper.Payload)
	case messages.PayloadTypeRakp3:
		bmc.handleRakp3(wrapper.Payload)
	}
}

func (bmc *mockBmc) handleCipherSuites(payload []byte) {
	var lan messages.LanMessage
	if err := lan.Unmarshal(bytes.NewReader(payload)); err != nil {
		return
	}

	// suites 0 and 3, well below one chunk
	records := []byte{
		0xC0, 0x00, 0x00, 0x40, 0x80,
		0xC0, 0x03, 0x01, 0x41, 0x81,
	}

	var chunkData bytes.Buffer
	chunkData.WriteByte(messages.CompletionOk)
	_ = messages.GetChannelCipherSuitesResponse{Channel: 0x01, RecordsChunk: records}.Marshal(&chunkData)

	response := bmc.lanResponse(lan, chunkData.Bytes())

	var responsePayload bytes.Buffer
	_ = response.Marshal(&responsePayload)

	var sessionBuf bytes.Buffer
	_ = messages.SessionWrapperV20{
		PayloadType: messages.PayloadTypeGetChannelCipherSuites,
		Payload:     responsePayload.Bytes(),
	}.Marshal(&sessionBuf)

	bmc.inject(sessionBuf.Bytes())
}

func (bmc *mockBmc) handleOpenSession(payload []byte) {
	var request messages.OpenSessionRequest
	if err := request.Unmarshal(bytes.NewReader(payload)); err != nil {
		return
	}

	bmc.mutex.Lock()
	bmc.consoleSID = request.RemoteConsoleSessionID
	bmc.mutex.Unlock()

	bmc.injectSessionless(messages.PayloadTypeOpenSession, &messages.OpenSessionResponse{
		Tag:                      request.Tag,
		Status:                   messages.StatusNoErrors,
		MaxPrivilegeLevel:        request.MaxPrivilegeLevel,
		RemoteConsoleSessionID:   request.RemoteConsoleSessionID,
		ManagedSystemSessionID:   bmc.managedSID,
		AuthenticationAlgorithm:  request.AuthenticationAlgorithm,
		IntegrityAlgorithm:       request.IntegrityAlgorithm,
		ConfidentialityAlgorithm: request.ConfidentialityAlgorithm,
	})
}

func (bmc *mockBmc) handleRakp1(payload []byte) {
	var rakp1 messages.Rakp1
	if err := rakp1.Unmarshal(bytes.NewReader(payload)); err != nil {
		return
	}

	bmc.mutex.Lock()
	bmc.username = rakp1.Username
	bmc.kex = &security.KeyExchange{
		Suite:            bmc.suite,
		Username:         rakp1.Username,
		Password:         []byte(bmc.password),
		Privilege:        uint8(rakp1.MaxPrivilegeLevel),
		ConsoleSessionID: bmc.consoleSID,
		ManagedSessionID: bmc.managedSID,
		ConsoleRandom:    rakp1.RemoteConsoleRandom,
		ManagedRandom:    bmc.managedRandom,
		ManagedGuid:      bmc.guid,
	}
	kex := bmc.kex
	consoleSID := bmc.consoleSID
	bmc.mutex.Unlock()

	authCode, err := kex.Rakp2AuthCode()
	if err != nil {
		return
	}

	bmc.injectSessionless(messages.PayloadTypeRakp2, &messages.Rakp2{
		Tag:                    rakp1.Tag,
		Status:                 messages.StatusNoErrors,
		RemoteConsoleSessionID: consoleSID,
		ManagedSystemRandom:    bmc.managedRandom,
		ManagedSystemGuid:      bmc.guid,
		AuthCode:               authCode,
	})
}

func (bmc *mockBmc) handleRakp3(payload []byte) {
	var rakp3 messages.Rakp3
	if err := rakp3.Unmarshal(bytes.NewReader(payload)); err != nil {
		return
	}

	bmc.mutex.Lock()
	kex := bmc.kex
	consoleSID := bmc.consoleSID
	bmc.mutex.Unlock()

	if kex == nil {
		return
	}

	icv, err := kex.Rakp4Icv()
	if err != nil {
		return
	}

	bmc.injectSessionless(messages.PayloadTypeRakp4, &messages.Rakp4{
		Tag:                    rakp3.Tag,
		Status:                 messages.StatusNoErrors,
		RemoteConsoleSessionID: consoleSID,
		IntegrityCheckValue:    icv,
	})
}

func (bmc *mockBmc) handleInSession(session []byte) {
	bmc.mutex.Lock()
	kex := bmc.kex
	bmc.mutex.Unlock()

	if kex == nil {
		return
	}

	k1, err := kex.K1()
	if err != nil {
		return
	}

	sessionBytes := session
	if bmc.suite.Integrity != security.IntegrityNone {
		if sessionBytes, err = security.VerifyIntegrity(bmc.suite, k1, session); err != nil {
			return
		}
	}

	var wrapper messages.SessionWrapperV20
	if err := wrapper.Unmarshal(bytes.NewReader(sessionBytes)); err != nil {
		return
	}
	if wrapper.SessionID != bmc.managedSID {
		return
	}

	payload := wrapper.Payload
	if wrapper.Encrypted {
		confidentialityKey, keyErr := kex.ConfidentialityKey()
		if keyErr != nil {
			return
		}
		if payload, err = security.Decrypt(bmc.suite, confidentialityKey, payload); err != nil {
			return
		}
	}

	var lan messages.LanMessage
	if err := lan.Unmarshal(bytes.NewReader(payload)); err != nil {
		return
	}

	bmc.mutex.Lock()
	bmc.inSessionSeq = append(bmc.inSessionSeq, wrapper.Sequence)
	bmc.inSessionCmd = append(bmc.inSessionCmd, lan.Command)
	bmc.mutex.Unlock()

	bmc.respondInSession(lan, []byte{messages.CompletionOk})
}

// respondInSession wraps a LAN response into the session envelope.
func (bmc *mockBmc) respondInSession(request messages.LanMessage, data []byte) {
	bmc.injectInSession(bmc.lanResponse(request, data), bmc.nextOutbound())
}

func (bmc *mockBmc) nextOutbound() uint32 {
	bmc.mutex.Lock()
	defer bmc.mutex.Unlock()

	bmc.outboundSeq++
	return bmc.outboundSeq
}

// injectInSession emits a LAN message under an explicit session sequence,
// allowing tests to replay old sequence numbers.
func (bmc *mockBmc) injectInSession(lan messages.LanMessage, sequence uint32) {
	bmc.mutex.Lock()
	kex := bmc.kex
	consoleSID := bmc.consoleSID
	bmc.mutex.Unlock()

	if kex == nil {
		return
	}

	var payload bytes.Buffer
	_ = lan.Marshal(&payload)

	payloadBytes := payload.Bytes()
	encrypted := bmc.suite.Confidentiality != security.ConfidentialityNone
	authenticated := bmc.suite.Integrity != security.IntegrityNone

	if encrypted {
		confidentialityKey, err := kex.ConfidentialityKey()
		if err != nil {
			return
		}
		if payloadBytes, err = security.Encrypt(bmc.suite, confidentialityKey, payloadBytes); err != nil {
			return
		}
	}

	var sessionBuf bytes.Buffer
	_ = messages.SessionWrapperV20{
		PayloadType:   messages.PayloadTypeIpmi,
		Encrypted:     encrypted,
		Authenticated: authenticated,
		SessionID:     consoleSID,
		Sequence:      sequence,
		Payload:       payloadBytes,
	}.Marshal(&sessionBuf)

	sessionBytes := sessionBuf.Bytes()
	if authenticated {
		k1, err := kex.K1()
		if err != nil {
			return
		}
		if sessionBytes, err = security.AppendIntegrity(bmc.suite, k1, sessionBytes); err != nil {
			return
		}
	}

	bmc.inject(sessionBytes)
}
