// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Command capone-keygen generates a long-term Ed25519 identity and
// writes the public and secret halves to separate files in hex, with
// restrictive permissions on the secret file.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/protoerr"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("capone-keygen", pflag.ContinueOnError)
	out := flags.StringP("out", "o", "capone", "output file prefix; writes <prefix>.pub and <prefix>.sec")
	if err := flags.Parse(args); err != nil {
		return protoerr.ExitCode(protoerr.KindConfig)
	}

	keyPair, err := identity.GenerateSignKeyPair()
	if err != nil {
		fmt.Fprintln(os.Stderr, "capone-keygen:", err)
		return protoerr.ExitCode(protoerr.KindOf(err))
	}
	defer keyPair.Close()

	pubPath := *out + ".pub"
	secPath := *out + ".sec"

	pubHex := hex.EncodeToString(keyPair.Public[:])
	if err := os.WriteFile(pubPath, []byte(pubHex+"\n"), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "capone-keygen: writing", pubPath, err)
		return protoerr.ExitCode(protoerr.KindIO)
	}

	secHex := hex.EncodeToString(keyPair.Secret.Key())
	if err := os.WriteFile(secPath, []byte(secHex+"\n"), 0o600); err != nil {
		fmt.Fprintln(os.Stderr, "capone-keygen: writing", secPath, err)
		return protoerr.ExitCode(protoerr.KindIO)
	}

	fmt.Printf("wrote %s (public) and %s (secret, identity %s)\n", pubPath, secPath, pubHex)
	return 0
}
