// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads capone-server's configuration file: a small INI
// dialect with a [core] section naming the daemon's own long-term
// identity and discovery label, and one or more [service] sections
// each describing one invocable service and the port it listens on.
// No third-party INI library in the surrounding ecosystem matches this
// grammar closely enough to be worth adopting for a format this small;
// the parser below is a direct, line-oriented reading of it.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/capone-project/capone/acl"
	"github.com/capone-project/capone/protoerr"
)

// Core holds the [core] section: the daemon's long-term identity, in
// hex, and the human-readable name it advertises over discovery.
type Core struct {
	PublicKey string
	SecretKey string
	Name      string
}

// Service holds one [service] section.
type Service struct {
	Name       string
	Type       string
	Location   string
	Port       uint16
	QueryACL   acl.List
	RequestACL acl.List
}

// Config is the fully parsed configuration file.
type Config struct {
	Core     Core
	Services []Service
}

// Load reads and parses a configuration file from path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, protoerr.Wrap(protoerr.KindConfig, "config: opening "+path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a configuration file from r.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}

	scanner := bufio.NewScanner(r)
	section := ""
	var current *Service
	lineNo := 0

	flush := func() {
		if current != nil {
			cfg.Services = append(cfg.Services, *current)
			current = nil
		}
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, configErr(lineNo, "unterminated section header")
			}
			flush()
			section = strings.TrimSpace(line[1 : len(line)-1])
			if section == "service" {
				current = &Service{}
			}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, configErr(lineNo, "expected key = value")
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch section {
		case "core":
			if err := setCore(&cfg.Core, key, value, lineNo); err != nil {
				return nil, err
			}
		case "service":
			if current == nil {
				return nil, configErr(lineNo, "service key outside [service] section")
			}
			if err := setService(current, key, value, lineNo); err != nil {
				return nil, err
			}
		default:
			return nil, configErr(lineNo, "key outside any recognized section")
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, protoerr.Wrap(protoerr.KindIO, "config: reading", err)
	}
	return cfg, nil
}

func setCore(c *Core, key, value string, lineNo int) error {
	switch key {
	case "public_key":
		c.PublicKey = value
	case "secret_key":
		c.SecretKey = value
	case "name":
		c.Name = value
	default:
		return configErr(lineNo, fmt.Sprintf("unknown core key %q", key))
	}
	return nil
}

func setService(s *Service, key, value string, lineNo int) error {
	switch key {
	case "name":
		s.Name = value
	case "type":
		s.Type = value
	case "location":
		s.Location = value
	case "port":
		n, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return configErr(lineNo, "port must be a 16-bit integer")
		}
		s.Port = uint16(n)
	case "query_acl":
		s.QueryACL = splitACL(value)
	case "request_acl":
		s.RequestACL = splitACL(value)
	default:
		return configErr(lineNo, fmt.Sprintf("unknown service key %q", key))
	}
	return nil
}

func splitACL(value string) acl.List {
	fields := strings.Split(value, ",")
	out := make(acl.List, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func configErr(lineNo int, msg string) error {
	return protoerr.Wrap(protoerr.KindConfig, fmt.Sprintf("config: line %d: %s", lineNo, msg), nil)
}
