// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	var c Configuration
	c.ApplyDefaults()

	if c != Default() {
		t.Fatalf("empty configuration defaulted to %+v", c)
	}

	c = Configuration{PingPeriod: 50}
	c.ApplyDefaults()
	if c.PingPeriod != 50 || c.Retries != DefaultRetries {
		t.Fatalf("partial configuration defaulted to %+v", c)
	}

	if c.PingPeriodDuration() != 50*time.Millisecond {
		t.Fatalf("ping period is %v", c.PingPeriodDuration())
	}
}

func TestValid(t *testing.T) {
	c := Default()
	if err := c.Valid(); err != nil {
		t.Fatal(err)
	}

	c.RequestTimeout = -3
	if err := c.Valid(); err == nil {
		t.Fatal("negative request timeout passed validation")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connection.toml")
	content := "pingPeriod = 5000\nretries = 1\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if c.PingPeriod != 5000 || c.Retries != 1 {
		t.Fatalf("loaded %+v", c)
	}
	if c.RequestTimeout != DefaultRequestTimeout || c.TimerThreadPoolSize != DefaultTimerThreadPoolSize {
		t.Fatalf("absent keys were not defaulted: %+v", c)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("loading a missing file succeeded")
	}
}
