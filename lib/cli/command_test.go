// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesToMatchingSubcommand(t *testing.T) {
	var ran string
	root := &Command{
		Name: "capone-client",
		Subcommands: []*Command{
			{Name: "query", Run: func(args []string) error { ran = "query"; return nil }},
			{Name: "request", Run: func(args []string) error { ran = "request"; return nil }},
		},
	}

	if err := root.Execute([]string{"request"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ran != "request" {
		t.Errorf("ran = %q, want request", ran)
	}
}

func TestExecuteUnknownCommandSuggestsClosestMatch(t *testing.T) {
	root := &Command{
		Name: "capone-client",
		Subcommands: []*Command{
			{Name: "query", Run: func(args []string) error { return nil }},
			{Name: "request", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute([]string{"quer"})
	if err == nil {
		t.Fatal("Execute should reject an unknown subcommand")
	}
	if !strings.Contains(err.Error(), `"query"`) {
		t.Errorf("error %q should suggest the closest command", err)
	}
}

func TestExecuteRequiresSubcommandWhenNoneGiven(t *testing.T) {
	root := &Command{
		Name: "capone-client",
		Subcommands: []*Command{
			{Name: "query", Run: func(args []string) error { return nil }},
		},
	}

	if err := root.Execute(nil); err == nil {
		t.Error("Execute should fail when a subcommand is required but none was given")
	}
}

func TestExecuteParsesFlagsBeforeRun(t *testing.T) {
	var got string
	cmd := &Command{
		Name: "query",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("query", pflag.ContinueOnError)
			fs.String("service", "", "service name")
			return fs
		},
		Run: func(args []string) error {
			got = args[0]
			return nil
		},
	}

	if err := cmd.Execute([]string{"--service", "echo", "leftover"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "leftover" {
		t.Errorf("positional args = %q, want leftover", got)
	}
}

func TestExecuteUnknownFlagSuggestsClosestDefinedFlag(t *testing.T) {
	cmd := &Command{
		Name: "query",
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("query", pflag.ContinueOnError)
			fs.String("service", "", "service name")
			return fs
		},
		Run: func(args []string) error { return nil },
	}

	err := cmd.Execute([]string{"--servic", "echo"})
	if err == nil {
		t.Fatal("Execute should reject an unknown flag")
	}
	if !strings.Contains(err.Error(), "--service") {
		t.Errorf("error %q should suggest --service", err)
	}
}

func TestExecuteHelpFlagPrintsHelpAndSucceeds(t *testing.T) {
	cmd := &Command{Name: "query", Summary: "query a service", Run: func(args []string) error {
		t.Error("Run should not be called when --help is given")
		return nil
	}}

	if err := cmd.Execute([]string{"--help"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestPrintHelpListsSubcommandsAndFlags(t *testing.T) {
	root := &Command{
		Name:        "capone-client",
		Description: "invoke capone services",
		Subcommands: []*Command{
			{Name: "query", Summary: "query a service"},
		},
	}

	var buf bytes.Buffer
	root.PrintHelp(&buf)
	out := buf.String()

	if !strings.Contains(out, "invoke capone services") {
		t.Error("help output should include the description")
	}
	if !strings.Contains(out, "query") || !strings.Contains(out, "query a service") {
		t.Error("help output should list subcommands and their summaries")
	}
}

func TestFullNameIncludesParentPath(t *testing.T) {
	root := &Command{Name: "capone-client"}
	sub := &Command{Name: "request", parent: root}
	if sub.fullName() != "capone-client request" {
		t.Errorf("fullName() = %q, want %q", sub.fullName(), "capone-client request")
	}
}

func TestIsHelpFlag(t *testing.T) {
	for _, arg := range []string{"-h", "--help", "help"} {
		if !isHelpFlag(arg) {
			t.Errorf("isHelpFlag(%q) = false, want true", arg)
		}
	}
	if isHelpFlag("query") {
		t.Error("isHelpFlag(\"query\") = true, want false")
	}
}
