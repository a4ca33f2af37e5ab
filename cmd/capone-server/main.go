// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Command capone-server runs the capone daemon: it loads a
// configuration file naming a long-term identity and a set of
// services, then accepts connections and dispatches QUERY, REQUEST,
// CONNECT, and TERMINATE commands against them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/spf13/pflag"

	"github.com/capone-project/capone/acl"
	"github.com/capone-project/capone/config"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/protoerr"
	"github.com/capone-project/capone/server"
	"github.com/capone-project/capone/service"
	"github.com/capone-project/capone/service/brokerplugin"
	"github.com/capone-project/capone/service/testplugin"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("capone-server", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "/etc/capone/server.conf", "path to the configuration file")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	if err := flags.Parse(args); err != nil {
		return protoerr.ExitCode(protoerr.KindConfig)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading configuration", "path", *configPath, "error", err)
		return protoerr.ExitCode(protoerr.KindOf(err))
	}

	keyPair, err := identity.ParseSignKeyPair(cfg.Core.PublicKey, cfg.Core.SecretKey)
	if err != nil {
		logger.Error("loading server identity", "error", err)
		return protoerr.ExitCode(protoerr.KindOf(err))
	}
	defer keyPair.Close()

	if len(cfg.Services) == 0 {
		logger.Error("configuration names no services")
		return protoerr.ExitCode(protoerr.KindConfig)
	}

	services := service.NewRegistry()
	broker := brokerplugin.New()
	listeners := make([]net.Listener, 0, len(cfg.Services))
	for _, s := range cfg.Services {
		plugin, err := buildPlugin(s.Type, broker)
		if err != nil {
			logger.Error("configuring service", "service", s.Name, "error", err)
			return protoerr.ExitCode(protoerr.KindConfig)
		}
		services.Register(&service.Descriptor{
			Name:     s.Name,
			Category: s.Type,
			Location: s.Location,
			Port:     s.Port,
			Plugin:   plugin,
			ACL:      acl.Set{Query: s.QueryACL, Request: s.RequestACL},
		})

		addr := fmt.Sprintf(":%d", s.Port)
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error("listening", "service", s.Name, "addr", addr, "error", err)
			return protoerr.ExitCode(protoerr.KindIO)
		}
		logger.Info("listening", "service", s.Name, "addr", listener.Addr())
		listeners = append(listeners, listener)
	}

	srv := server.New(keyPair, services, logger)
	sup := server.NewSupervisor(srv, listeners...)

	discovery := &server.DiscoveryResponder{
		Name:     cfg.Core.Name,
		Identity: keyPair.Public,
		Port:     cfg.Services[0].Port,
		Logger:   logger,
	}
	go func() {
		if err := discovery.Run(context.Background()); err != nil {
			logger.Warn("discovery responder stopped", "error", err)
		}
	}()

	if err := sup.Run(context.Background()); err != nil {
		logger.Error("supervisor exited", "error", err)
		return protoerr.ExitCode(protoerr.KindIO)
	}
	return 0
}

func buildPlugin(serviceType string, broker *brokerplugin.Plugin) (service.Plugin, error) {
	switch serviceType {
	case "echo":
		return testplugin.New(), nil
	case "broker":
		return broker, nil
	default:
		return nil, fmt.Errorf("unknown service type %q", serviceType)
	}
}
