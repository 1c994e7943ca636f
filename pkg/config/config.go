// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config holds the tunable knobs of a connection manager. Values are
// passed explicitly to the manager; absent keys fall back to their defaults.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults for absent configuration keys.
const (
	DefaultPingPeriod          = 20_000
	DefaultTimerThreadPoolSize = 5
	DefaultRequestTimeout      = 2_000
	DefaultRetries             = 3
)

// Configuration tunes a connection manager. The period and timeout keys are
// milliseconds.
type Configuration struct {
	// PingPeriod is the keep-alive frequency of established sessions.
	PingPeriod int64 `toml:"pingPeriod"`

	// TimerThreadPoolSize is the worker count of the timer service.
	TimerThreadPoolSize int `toml:"timerThreadPoolSize"`

	// RequestTimeout is the per-request response timeout.
	RequestTimeout int64 `toml:"requestTimeout"`

	// Retries is the per-request retry budget after the first send.
	Retries int `toml:"retries"`
}

// Default returns a Configuration with every key at its default.
func Default() Configuration {
	return Configuration{
		PingPeriod:          DefaultPingPeriod,
		TimerThreadPoolSize: DefaultTimerThreadPoolSize,
		RequestTimeout:      DefaultRequestTimeout,
		Retries:             DefaultRetries,
	}
}

// ApplyDefaults replaces absent, i.e., zero, keys with their defaults.
func (c *Configuration) ApplyDefaults() {
	if c.PingPeriod == 0 {
		c.PingPeriod = DefaultPingPeriod
	}
	if c.TimerThreadPoolSize == 0 {
		c.TimerThreadPoolSize = DefaultTimerThreadPoolSize
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
}

// Valid checks the keys for plausibility after defaults were applied.
func (c Configuration) Valid() error {
	if c.PingPeriod < 0 || c.RequestTimeout <= 0 || c.Retries < 0 || c.TimerThreadPoolSize <= 0 {
		return fmt.Errorf("configuration %+v holds impossible values", c)
	}
	return nil
}

// PingPeriodDuration is the keep-alive period as a time.Duration.
func (c Configuration) PingPeriodDuration() time.Duration {
	return time.Duration(c.PingPeriod) * time.Millisecond
}

// RequestTimeoutDuration is the response timeout as a time.Duration.
func (c Configuration) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// LoadFile reads a Configuration from a TOML file and applies the defaults
// for absent keys.
func LoadFile(path string) (c Configuration, err error) {
	if _, err = toml.DecodeFile(path, &c); err != nil {
		return
	}

	c.ApplyDefaults()
	err = c.Valid()
	return
}
