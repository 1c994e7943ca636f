// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"

	"github.com/rmcplus/rmcplus-go/pkg/config"
	"github.com/rmcplus/rmcplus-go/pkg/connection"
	"github.com/rmcplus/rmcplus-go/pkg/messages"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Logging    logConf
	Connection config.Configuration
	Bmc        bmcConf
	Api        apiConf
	Profiling  profilingConf
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// bmcConf describes the managed system to probe.
type bmcConf struct {
	Address       string
	Username      string
	Password      string
	BmcKey        string `toml:"bmc-key"`
	CipherSuiteID uint8  `toml:"cipher-suite-id"`
	Privilege     string
}

// apiConf describes the optional inspection agent.
type apiConf struct {
	Listen string
}

// profilingConf toggles CPU profiling.
type profilingConf struct {
	Enable bool
}

// parseConfiguration reads the TOML file and prepares the logger.
func parseConfiguration(filename string) (conf tomlConfig, err error) {
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	if conf.Logging.Level != "" {
		var level log.Level
		if level, err = log.ParseLevel(conf.Logging.Level); err != nil {
			return
		}
		log.SetLevel(level)
	}

	log.SetReportCaller(conf.Logging.ReportCaller)

	switch conf.Logging.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		err = fmt.Errorf("unknown logging format %q", conf.Logging.Format)
		return
	}

	if conf.Bmc.Address == "" {
		err = fmt.Errorf("bmc.address is required")
		return
	}

	conf.Connection.ApplyDefaults()

	return
}

// privilegeLevel resolves the configured privilege name, administrator
// being the default.
func (bc bmcConf) privilegeLevel() (messages.PrivilegeLevel, error) {
	switch bc.Privilege {
	case "", "administrator":
		return messages.PrivilegeAdministrator, nil
	case "callback":
		return messages.PrivilegeCallback, nil
	case "user":
		return messages.PrivilegeUser, nil
	case "operator":
		return messages.PrivilegeOperator, nil
	default:
		return 0, fmt.Errorf("unknown privilege level %q", bc.Privilege)
	}
}

// buildManager creates the connection manager of a parsed configuration.
func buildManager(conf tomlConfig) (*connection.Manager, error) {
	return connection.NewManager(":0", conf.Connection)
}
