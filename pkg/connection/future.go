// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package connection

import (
	"context"
	"sync"
)

// Response is a completed request's verified, decrypted payload.
type Response struct {
	// PayloadType is the RMCP+ payload type the response arrived as.
	PayloadType uint8

	// Payload are the plain payload bytes.
	Payload []byte
}

// Future is the completion slot of one pending request. Exactly one of
// response, timeout or connection close completes it.
type Future struct {
	doneSyn  chan struct{}
	doneOnce sync.Once

	response *Response
	err      error
}

// NewFuture creates an uncompleted Future.
func NewFuture() *Future {
	return &Future{
		doneSyn: make(chan struct{}),
	}
}

// complete resolves the Future. Every call after the first is a no-op.
func (f *Future) complete(response *Response, err error) {
	f.doneOnce.Do(func() {
		f.response = response
		f.err = err
		close(f.doneSyn)
	})
}

// Await blocks until the Future is completed or the Context ends.
func (f *Future) Await(ctx context.Context) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.doneSyn:
		return f.response, f.err
	}
}
