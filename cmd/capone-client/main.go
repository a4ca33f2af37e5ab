// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Command capone-client drives the four verbs a capone session is
// built from: QUERY a service's description, REQUEST a session be
// created for it, CONNECT to a requested session, and TERMINATE one
// early. Each verb is a single connection: handshake, then exactly
// one command.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/capone-project/capone/capability"
	"github.com/capone-project/capone/channel"
	"github.com/capone-project/capone/client"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/lib/cli"
	"github.com/capone-project/capone/protoerr"
	"github.com/capone-project/capone/service"
	"github.com/capone-project/capone/service/brokerplugin"
	"github.com/capone-project/capone/service/testplugin"
)

// remote collects the flags every verb needs to reach a host: its
// network address, port, and long-term signature identity.
type remote struct {
	identityPrefix string
	host           string
	port           uint32
	remoteKey      string
	blockLength    int
	verbose        bool
}

func addRemoteFlags(fs *pflag.FlagSet, r *remote) {
	fs.StringVar(&r.identityPrefix, "identity", "capone", "path prefix of the local identity's .pub/.sec files")
	fs.StringVar(&r.host, "remote-host", "127.0.0.1", "network address of the host to contact")
	fs.Uint32Var(&r.port, "remote-port", 6668, "port of the host to contact")
	fs.StringVar(&r.remoteKey, "remote-key", "", "signature public key of the host to contact (hex); empty accepts whatever the host proves it holds")
	fs.IntVar(&r.blockLength, "block-length", channel.DefaultBlockLength, "channel block length in bytes")
	fs.BoolVar(&r.verbose, "verbose", false, "enable debug logging")
}

func (r *remote) addr() string {
	return fmt.Sprintf("%s:%d", r.host, r.port)
}

func (r *remote) load() (*identity.SignKeyPair, identity.SignPublic, error) {
	local, err := identity.LoadSignKeyPair(r.identityPrefix+".pub", r.identityPrefix+".sec")
	if err != nil {
		return nil, identity.SignPublic{}, err
	}

	var expected identity.SignPublic
	if r.remoteKey != "" {
		expected, err = identity.ParseSignPublic(r.remoteKey)
		if err != nil {
			local.Close()
			return nil, identity.SignPublic{}, fmt.Errorf("client: parsing --remote-key: %w", err)
		}
	}
	return local, expected, nil
}

func buildPlugin(serviceType string, broker *brokerplugin.Plugin) (service.Plugin, error) {
	switch serviceType {
	case "echo":
		return testplugin.New(), nil
	case "broker":
		return broker, nil
	default:
		return nil, fmt.Errorf("client: unknown service type %q", serviceType)
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := &cli.Command{
		Name:        "capone-client",
		Summary:     "invoke capone services",
		Description: "capone-client issues QUERY, REQUEST, CONNECT, and TERMINATE commands against a capone-server instance.",
		Subcommands: []*cli.Command{
			queryCommand(),
			requestCommand(),
			connectCommand(),
			terminateCommand(),
			delegateCommand(),
		},
	}

	if err := root.Execute(args); err != nil {
		if exit, ok := err.(*cli.ExitError); ok {
			return exit.Code
		}
		fmt.Fprintln(os.Stderr, err)
		return protoerr.ExitCode(protoerr.KindOf(err))
	}
	return 0
}

func queryCommand() *cli.Command {
	r := &remote{}
	var serviceName string

	return &cli.Command{
		Name:    "query",
		Summary: "ask a server for a service's description",
		Examples: []cli.Example{
			{Description: "query the echo service on a local server", Command: "capone-client query --remote-host 127.0.0.1 --remote-port 6668 --service echo"},
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("query", pflag.ContinueOnError)
			addRemoteFlags(fs, r)
			fs.StringVar(&serviceName, "service", "", "name of the service to query")
			return fs
		},
		Run: func(args []string) error {
			if serviceName == "" {
				return fmt.Errorf("client: --service is required")
			}
			logger := cli.NewCommandLogger(r.verbose)

			local, expected, err := r.load()
			if err != nil {
				return err
			}
			defer local.Close()

			desc, err := client.Query(r.addr(), local, expected, serviceName, r.blockLength)
			if err != nil {
				logger.Error("query failed", "service", serviceName, "error", err)
				return err
			}

			fmt.Printf("name:       %s\n", desc.Name)
			fmt.Printf("category:   %s\n", desc.Category)
			fmt.Printf("location:   %s\n", desc.Location)
			fmt.Printf("port:       %d\n", desc.Port)
			fmt.Printf("parameters: %v\n", desc.Parameters)
			return nil
		},
	}
}

func requestCommand() *cli.Command {
	r := &remote{}
	var serviceName string
	var parameters []string

	return &cli.Command{
		Name:    "request",
		Summary: "request a session be created for a service invocation",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("request", pflag.ContinueOnError)
			addRemoteFlags(fs, r)
			fs.StringVar(&serviceName, "service", "", "name of the service to invoke")
			fs.StringArrayVar(&parameters, "parameter", nil, "a parameter to pass the service; may be repeated")
			return fs
		},
		Run: func(args []string) error {
			if serviceName == "" {
				return fmt.Errorf("client: --service is required")
			}
			logger := cli.NewCommandLogger(r.verbose)

			local, expected, err := r.load()
			if err != nil {
				return err
			}
			defer local.Close()

			result, err := client.Request(r.addr(), local, expected, serviceName, parameters, r.blockLength)
			if err != nil {
				logger.Error("request failed", "service", serviceName, "error", err)
				return err
			}

			cap, err := client.CapabilityFromWire(result.Cap)
			if err != nil {
				return err
			}
			defer cap.Close()

			fmt.Printf("session-id: %d\n", result.SessionID)
			fmt.Printf("capability: %s\n", cap.String())
			return nil
		},
	}
}

func connectCommand() *cli.Command {
	r := &remote{}
	var serviceType string
	var sessionID uint32
	var capHex string
	broker := brokerplugin.New()

	return &cli.Command{
		Name:    "connect",
		Summary: "join a previously requested session",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("connect", pflag.ContinueOnError)
			addRemoteFlags(fs, r)
			fs.StringVar(&serviceType, "service-type", "", "type of service being invoked, to select the client-side plugin")
			fs.Uint32Var(&sessionID, "session-id", 0, "session identifier returned by request")
			fs.StringVar(&capHex, "cap", "", "capability string form returned by request or delegate")
			return fs
		},
		Run: func(args []string) error {
			if serviceType == "" {
				return fmt.Errorf("client: --service-type is required")
			}
			cap, err := loadCap(capHex)
			if err != nil {
				return err
			}
			defer cap.Close()
			logger := cli.NewCommandLogger(r.verbose)

			plugin, err := buildPlugin(serviceType, broker)
			if err != nil {
				return err
			}

			local, expected, err := r.load()
			if err != nil {
				return err
			}
			defer local.Close()

			if err := client.Connect(r.addr(), local, expected, sessionID, cap, plugin, args, r.blockLength); err != nil {
				logger.Error("connect failed", "session-id", sessionID, "error", err)
				return err
			}
			return nil
		},
	}
}

// loadCap parses a capability's string form (secret plus delegation
// chain), as produced by request or delegate, into a capability ready
// to present to Connect or Terminate.
func loadCap(s string) (*capability.Capability, error) {
	secretHex, chain, err := capability.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("client: parsing --cap: %w", err)
	}
	return capability.FromParts(secretHex, chain)
}

func terminateCommand() *cli.Command {
	r := &remote{}
	var sessionID uint32
	var capHex string

	return &cli.Command{
		Name:    "terminate",
		Summary: "end a session early",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("terminate", pflag.ContinueOnError)
			addRemoteFlags(fs, r)
			fs.Uint32Var(&sessionID, "session-id", 0, "session identifier returned by request")
			fs.StringVar(&capHex, "cap", "", "capability string form returned by request or delegate")
			return fs
		},
		Run: func(args []string) error {
			cap, err := loadCap(capHex)
			if err != nil {
				return err
			}
			defer cap.Close()
			logger := cli.NewCommandLogger(r.verbose)

			local, expected, err := r.load()
			if err != nil {
				return err
			}
			defer local.Close()

			if err := client.Terminate(r.addr(), local, expected, sessionID, cap, r.blockLength); err != nil {
				logger.Error("terminate failed", "session-id", sessionID, "error", err)
				return err
			}
			fmt.Println("terminated")
			return nil
		},
	}
}

// delegateCommand derives a narrower capability from one already held
// and prints its string form, for handing to a third party
// out-of-band without involving the server at all.
func delegateCommand() *cli.Command {
	var capString string
	var granteeHex string
	var rightsLetters string

	return &cli.Command{
		Name:    "delegate",
		Summary: "derive a narrower capability for a third party",
		Description: "delegate reads a capability's string form, derives a new capability " +
			"delegated to --grantee with --rights (a subset of the held rights), and " +
			"prints the result's string form. No connection to a server is made.",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("delegate", pflag.ContinueOnError)
			fs.StringVar(&capString, "cap", "", "capability string form to delegate from")
			fs.StringVar(&granteeHex, "grantee", "", "signature public key of the delegate (hex)")
			fs.StringVar(&rightsLetters, "rights", "", "rights to grant, as letter codes (x=exec, t=term, d=distribute)")
			return fs
		},
		Run: func(args []string) error {
			secretHex, chain, err := capability.Parse(capString)
			if err != nil {
				return fmt.Errorf("client: parsing --cap: %w", err)
			}
			cap, err := capability.FromParts(secretHex, chain)
			if err != nil {
				return err
			}
			defer cap.Close()

			var grantee identity.SignPublic
			if err := grantee.UnmarshalText([]byte(granteeHex)); err != nil {
				return fmt.Errorf("client: parsing --grantee: %w", err)
			}

			var rights capability.Rights
			for _, c := range rightsLetters {
				switch c {
				case 'x':
					rights |= capability.Exec
				case 't':
					rights |= capability.Term
				case 'd':
					rights |= capability.Distribute
				default:
					return fmt.Errorf("client: unknown rights letter %q", strconv.QuoteRune(c))
				}
			}

			delegated, err := cap.CreateRef(grantee, rights)
			if err != nil {
				return err
			}
			defer delegated.Close()

			fmt.Println(delegated.String())
			return nil
		},
	}
}
