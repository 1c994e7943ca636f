// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	"fmt"
	"io"
)

const (
	// ChannelPresentInterface addresses the channel the request arrives on.
	ChannelPresentInterface uint8 = 0x0E

	// cipherSuiteChunkSize is the record chunk size of one response. A chunk
	// shorter than this marks the end of the record data.
	cipherSuiteChunkSize = 16
)

// GetChannelCipherSuitesRequest asks for a 16 byte chunk of the channel's
// cipher suite records. The records are iterated by increasing ListIndex
// until a short chunk arrives.
type GetChannelCipherSuitesRequest struct {
	Channel     uint8
	PayloadType uint8
	ListIndex   uint8
}

// NewGetChannelCipherSuitesRequest for the present interface and IPMI payloads.
func NewGetChannelCipherSuitesRequest(listIndex uint8) GetChannelCipherSuitesRequest {
	return GetChannelCipherSuitesRequest{
		Channel:     ChannelPresentInterface,
		PayloadType: PayloadTypeIpmi,
		ListIndex:   listIndex,
	}
}

func (req GetChannelCipherSuitesRequest) String() string {
	return fmt.Sprintf("GetChannelCipherSuitesRequest(Channel=%#x, ListIndex=%d)", req.Channel, req.ListIndex)
}

// Marshal writes the binary representation of this request.
func (req GetChannelCipherSuitesRequest) Marshal(w io.Writer) error {
	_, err := w.Write([]byte{
		req.Channel & 0x0F,
		req.PayloadType & 0x3F,
		// list algorithms by cipher suite, not the undocumented raw listing
		1<<7 | req.ListIndex&0x3F,
	})
	return err
}

// Unmarshal reads a request from its binary representation.
func (req *GetChannelCipherSuitesRequest) Unmarshal(r io.Reader) error {
	var data [3]byte
	if _, err := io.ReadFull(r, data[:]); err != nil {
		return err
	}

	req.Channel = data[0] & 0x0F
	req.PayloadType = data[1] & 0x3F
	req.ListIndex = data[2] & 0x3F

	return nil
}

// GetChannelCipherSuitesResponse carries up to 16 bytes of cipher suite
// record data, possibly starting mid-record.
type GetChannelCipherSuitesResponse struct {
	Channel      uint8
	RecordsChunk []byte
}

func (rsp GetChannelCipherSuitesResponse) String() string {
	return fmt.Sprintf("GetChannelCipherSuitesResponse(Channel=%#x, len=%d)", rsp.Channel, len(rsp.RecordsChunk))
}

// Final reports whether this chunk ends the record iteration.
func (rsp GetChannelCipherSuitesResponse) Final() bool {
	return len(rsp.RecordsChunk) < cipherSuiteChunkSize
}

// Marshal writes the binary representation of this response.
func (rsp GetChannelCipherSuitesResponse) Marshal(w io.Writer) error {
	if len(rsp.RecordsChunk) > cipherSuiteChunkSize {
		return fmt.Errorf("record chunk of %d bytes exceeds %d", len(rsp.RecordsChunk), cipherSuiteChunkSize)
	}

	if _, err := w.Write([]byte{rsp.Channel}); err != nil {
		return err
	}

	_, err := w.Write(rsp.RecordsChunk)
	return err
}

// Unmarshal reads a response from its binary representation. The reader must
// be limited to one message, as the chunk takes all remaining bytes.
func (rsp *GetChannelCipherSuitesResponse) Unmarshal(r io.Reader) error {
	var channel [1]byte
	if _, err := io.ReadFull(r, channel[:]); err != nil {
		return err
	}
	rsp.Channel = channel[0]

	chunk, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(chunk) > cipherSuiteChunkSize {
		return fmt.Errorf("record chunk of %d bytes exceeds %d", len(chunk), cipherSuiteChunkSize)
	}
	if len(chunk) == 0 {
		chunk = nil
	}
	rsp.RecordsChunk = chunk

	return nil
}
