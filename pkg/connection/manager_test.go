// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rmcplus/rmcplus-go/pkg/config"
	"github.com/rmcplus/rmcplus-go/pkg/messages"
	"github.com/rmcplus/rmcplus-go/pkg/security"
	"github.com/rmcplus/rmcplus-go/pkg/transport"
)

func TestManagerHandlesAreDense(t *testing.T) {
	messenger := newMockMessenger()
	manager, err := NewManagerWithMessenger(messenger, config.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = manager.Close() }()

	var (
		mutex   sync.Mutex
		handles []int
		wg      sync.WaitGroup
	)

	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 8; i++ {
				handle, err := manager.CreateConnectionWithPingPeriod("192.0.2.10", 0)
				if err != nil {
					t.Error(err)
					return
				}

				mutex.Lock()
				handles = append(handles, handle)
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(handles) != 32 {
		t.Fatalf("created %d connections", len(handles))
	}

	seen := make(map[int]struct{})
	for _, handle := range handles {
		if _, duplicate := seen[handle]; duplicate {
			t.Fatalf("handle %d was issued twice", handle)
		}
		if handle < 0 || handle >= 32 {
			t.Fatalf("handle %d is outside the dense prefix", handle)
		}
		seen[handle] = struct{}{}
	}
}

func TestManagerUnknownHandle(t *testing.T) {
	messenger := newMockMessenger()
	manager, err := NewManagerWithMessenger(messenger, config.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = manager.Close() }()

	if _, err := manager.Connection(0); err == nil {
		t.Fatal("an unknown handle resolved")
	}
	if _, err := manager.GetAvailableCipherSuites(context.Background(), 7); err == nil {
		t.Fatal("a stage call on an unknown handle succeeded")
	}
}

func TestManagerTagBracketing(t *testing.T) {
	messenger := newMockMessenger()
	_ = newMockBmc(messenger, mustSuite(t, 3), "secret23")

	manager, err := NewManagerWithMessenger(messenger, config.Configuration{RequestTimeout: 500, Retries: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = manager.Close() }()

	handle, err := manager.CreateConnectionWithPingPeriod("192.0.2.10", 0)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := manager.GetAvailableCipherSuites(ctx, handle); err != nil {
		t.Fatal(err)
	}

	// the tag went back into the pool, successful or not
	if reserved := manager.tags.Reserved(); reserved != 0 {
		t.Fatalf("%d tags stayed reserved", reserved)
	}

	suite := mustSuite(t, 3)
	if _, err := manager.GetChannelAuthenticationCapabilities(ctx, handle, suite,
		messages.PrivilegeAdministrator); err != nil {
		t.Fatal(err)
	}
	if err := manager.StartSession(ctx, handle, suite, messages.PrivilegeAdministrator,
		"admin", "wrong-password", nil); err == nil {
		t.Fatal("session start with a wrong password succeeded")
	}

	if reserved := manager.tags.Reserved(); reserved != 0 {
		t.Fatalf("%d tags stayed reserved after a failure", reserved)
	}
}

func mustSuite(t *testing.T, id uint8) security.CipherSuite {
	suite, err := security.SuiteByID(id)
	if err != nil {
		t.Fatal(err)
	}
	return suite
}

func TestManagerClose(t *testing.T) {
	messenger := newMockMessenger()
	bmc := newMockBmc(messenger, mustSuite(t, 3), "secret23")

	manager, err := NewManagerWithMessenger(messenger, config.Configuration{RequestTimeout: 500, Retries: 1})
	if err != nil {
		t.Fatal(err)
	}

	var handles []int
	for i := 0; i < 3; i++ {
		handle, err := manager.CreateConnectionWithPingPeriod("192.0.2.10", 0)
		if err != nil {
			t.Fatal(err)
		}
		handles = append(handles, handle)
	}

	establish(t, manager, handles[0], 3)

	conn, err := manager.Connection(handles[0])
	if err != nil {
		t.Fatal(err)
	}

	if err := manager.Close(); err != nil {
		t.Fatal(err)
	}

	for _, handle := range handles {
		c, err := manager.Connection(handle)
		if err != nil {
			t.Fatal(err)
		}
		if state := c.State(); state != "closed" {
			t.Fatalf("connection %d is in state %q", handle, state)
		}
	}

	if err := messenger.Send(bmc.addr, []byte{0x00}); err != transport.ErrClosed {
		t.Fatalf("messenger survived the close: %v", err)
	}

	// commands after the close fail without touching the wire
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := conn.SendCommand(ctx, messages.NetFnApp, 0x01, nil); !errors.Is(err, ErrIllegalState) {
		t.Fatalf("command on a closed connection returned %v", err)
	}

	if _, err := manager.CreateConnectionWithPingPeriod("192.0.2.10", 0); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("connection creation on a closed manager returned %v", err)
	}

	// closing twice stays quiet
	if err := manager.Close(); err != nil {
		t.Fatal(err)
	}
}
