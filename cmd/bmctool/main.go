// SPDX-FileCopyrightText: 2026 The rmcplus-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// bmctool probes a BMC: it discovers the cipher suites, establishes an
// RMCP+ session with the configured credentials and issues a Get Device ID,
// optionally serving the inspection API and re-probing on configuration
// changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/profile"

	"github.com/rmcplus/rmcplus-go/pkg/api"
	"github.com/rmcplus/rmcplus-go/pkg/messages"
	"github.com/rmcplus/rmcplus-go/pkg/security"
)

// cmdGetDeviceID is the harmless command probed after the handshake.
const cmdGetDeviceID uint8 = 0x01

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	<-signalAck
}

// probe runs the five stages against the configured BMC.
func probe(conf tomlConfig) error {
	manager, err := buildManager(conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := manager.Close(); err != nil {
			log.WithError(err).Warn("Closing the manager failed")
		}
	}()

	if conf.Api.Listen != "" {
		agent := api.NewAgent(manager)
		defer agent.Close()

		go func() {
			if err := http.ListenAndServe(conf.Api.Listen, agent); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("API agent failed")
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	handle, err := manager.CreateConnection(conf.Bmc.Address)
	if err != nil {
		return err
	}

	suites, err := manager.GetAvailableCipherSuites(ctx, handle)
	if err != nil {
		return err
	}
	log.WithField("suites", suites).Info("Discovered cipher suites")

	suite, err := pickSuite(suites, conf.Bmc.CipherSuiteID)
	if err != nil {
		return err
	}

	privilege, err := conf.Bmc.privilegeLevel()
	if err != nil {
		return err
	}

	caps, err := manager.GetChannelAuthenticationCapabilities(ctx, handle, suite, privilege)
	if err != nil {
		return err
	}
	log.WithField("capabilities", caps).Info("Received authentication capabilities")

	var bmcKey []byte
	if conf.Bmc.BmcKey != "" {
		bmcKey = []byte(conf.Bmc.BmcKey)
	}

	if err := manager.StartSession(ctx, handle, suite, privilege,
		conf.Bmc.Username, conf.Bmc.Password, bmcKey); err != nil {
		return err
	}

	response, err := manager.SendCommand(ctx, handle, messages.NetFnApp, cmdGetDeviceID, nil)
	if err != nil {
		return err
	}

	code, err := response.CompletionCode()
	if err != nil {
		return err
	}

	fmt.Printf("device ID response: completion %#x, %d data bytes\n", code, len(response.Data)-1)

	return manager.CloseConnection(handle)
}

// pickSuite selects the configured suite. An unset cipher-suite-id picks
// the highest discovered suite ID, which orders the standard suites from
// plaintext towards SHA-256 with AES.
func pickSuite(suites []security.CipherSuite, id uint8) (security.CipherSuite, error) {
	if len(suites) == 0 {
		return security.CipherSuite{}, fmt.Errorf("the BMC offered no supported cipher suite")
	}

	best := suites[0]
	for _, suite := range suites {
		if id != 0 && suite.ID == id {
			return suite, nil
		}
		if suite.ID > best.ID {
			best = suite
		}
	}

	if id != 0 {
		return security.CipherSuite{}, fmt.Errorf("the BMC does not offer cipher suite %d", id)
	}

	return best, nil
}

// watch re-probes on every configuration file change.
func watch(filename string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filename); err != nil {
		return err
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			log.WithField("file", filename).Info("Configuration changed, probing again")

			conf, err := parseConfiguration(filename)
			if err != nil {
				log.WithError(err).Error("Failed to parse configuration")
				continue
			}
			if err := probe(conf); err != nil {
				log.WithError(err).Error("Probe failed")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("Watching the configuration failed")
		}
	}
}

func main() {
	watchFlag := flag.Bool("watch", false, "re-probe on configuration changes")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("Usage: %s [-watch] configuration.toml", os.Args[0])
	}
	filename := flag.Arg(0)

	conf, err := parseConfiguration(filename)
	if err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}

	if conf.Profiling.Enable {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	if err := probe(conf); err != nil {
		log.WithError(err).Fatal("Probe failed")
	}

	if *watchFlag {
		go func() {
			if err := watch(filename); err != nil {
				log.WithError(err).Error("Watcher failed")
			}
		}()

		waitSigint()
		log.Info("Shutting down..")
	}
}
