// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/authbridge/authclient"
	"github.com/bureau-foundation/authbridge/cmd/authbridge/cli"
	"github.com/bureau-foundation/authbridge/lib/authschema"
	"github.com/bureau-foundation/authbridge/lib/version"
)

var errNotLoggedIn = errors.New("not logged in")

func newRoot(ctx context.Context, in io.Reader, out, stderr io.Writer) *cli.Command {
	term := terminal{in: in, out: out, stderr: stderr}
	return &cli.Command{
		Name:        "authbridge",
		Description: "authbridge opens an authentication module and talks to it as a host application would.",
		Output:      stderr,
		Subcommands: []*cli.Command{
			loginCommand(ctx, term),
			logoutCommand(ctx, term),
			statusCommand(ctx, term),
			tokenCommand(ctx, term),
			recordKeyCommand(ctx, term),
			accountCommand(ctx, term),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func([]string) error {
					version.Print(out, "authbridge")
					return nil
				},
			},
		},
	}
}

// withHelper opens the module for the duration of run.
func withHelper(connection *connection, run func(helper *authclient.Helper) error) error {
	helper, release, err := connection.open()
	if err != nil {
		return err
	}
	defer release()
	return run(helper)
}

func loginCommand(ctx context.Context, term terminal) *cli.Command {
	connection := &connection{stderr: term.stderr}
	var background, customUI bool
	var output cli.JSONOutput
	var flagSet *pflag.FlagSet
	return &cli.Command{
		Name:    "login",
		Summary: "Log in, interactively unless --background",
		Description: `Log in through the module. Custom UI pages are answered as prompts on
the terminal; otherwise the module opens its login page in a browser.
A background login never prompts and reports "not logged in" when the
module finds no stored session.`,
		Examples: []cli.Example{
			{Description: "Log in with terminal prompts", Command: "authbridge login --custom-ui"},
			{Description: "Resume a stored session only", Command: "authbridge login --background --json"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet = pflag.NewFlagSet("login", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			flagSet.BoolVar(&background, "background", false, "never show UI; use a stored session only")
			flagSet.BoolVar(&customUI, "custom-ui", false, "answer login pages in the terminal instead of a browser")
			output.AddFlag(flagSet)
			return flagSet
		},
		Run: func([]string) error {
			return withHelper(connection, func(helper *authclient.Helper) error {
				if flagSet.Changed("custom-ui") {
					if err := helper.SetUseCustomUI(ctx, customUI); err != nil {
						return err
					}
				}
				var data *authschema.AuthData
				var err error
				if background {
					data, err = helper.Login(ctx, true)
				} else {
					data, err = interactiveLogin(ctx, helper, term.in, term.stderr)
				}
				if err != nil {
					return err
				}
				return printAuthData(term.out, &output, data)
			})
		},
	}
}

func printAuthData(out io.Writer, output *cli.JSONOutput, data *authschema.AuthData) error {
	if done, err := output.EmitJSON(out, data); done {
		if err == nil && data == nil {
			return errNotLoggedIn
		}
		return err
	}
	if data == nil {
		return errNotLoggedIn
	}
	fmt.Fprintf(out, "Logged in as %s (%s)\n", data.DisplayName, data.UserID)
	return nil
}

func logoutCommand(ctx context.Context, term terminal) *cli.Command {
	connection := &connection{stderr: term.stderr}
	return &cli.Command{
		Name:    "logout",
		Summary: "Drop the module's session",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("logout", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			return flagSet
		},
		Run: func([]string) error {
			return withHelper(connection, func(helper *authclient.Helper) error {
				return helper.Logout(ctx)
			})
		},
	}
}

// moduleStatus is what status prints.
type moduleStatus struct {
	ProtocolVersion   int                   `json:"protocolVersion"`
	LoggedIn          bool                  `json:"loggedIn"`
	RecordsOrigin     string                `json:"recordsOrigin,omitempty"`
	WebsocketOrigin   string                `json:"websocketOrigin,omitempty"`
	WebsocketProtocol string                `json:"websocketProtocol,omitempty"`
	PolicyURLs        authschema.PolicyURLs `json:"policyUrls"`
}

func statusCommand(ctx context.Context, term terminal) *cli.Command {
	connection := &connection{stderr: term.stderr}
	var output cli.JSONOutput
	return &cli.Command{
		Name:    "status",
		Summary: "Show the protocol version, session state, and service origins",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			output.AddFlag(flagSet)
			return flagSet
		},
		Run: func([]string) error {
			return withHelper(connection, func(helper *authclient.Helper) error {
				status, err := collectStatus(ctx, helper)
				if err != nil {
					return err
				}
				if done, err := output.EmitJSON(term.out, status); done {
					return err
				}
				fmt.Fprintf(term.out, "protocol version:   %d\n", status.ProtocolVersion)
				fmt.Fprintf(term.out, "logged in:          %t\n", status.LoggedIn)
				fmt.Fprintf(term.out, "records origin:     %s\n", status.RecordsOrigin)
				fmt.Fprintf(term.out, "websocket origin:   %s\n", status.WebsocketOrigin)
				fmt.Fprintf(term.out, "websocket protocol: %s\n", status.WebsocketProtocol)
				if status.PolicyURLs.TermsOfServiceURL != "" {
					fmt.Fprintf(term.out, "terms of service:   %s\n", status.PolicyURLs.TermsOfServiceURL)
				}
				if status.PolicyURLs.PrivacyPolicyURL != "" {
					fmt.Fprintf(term.out, "privacy policy:     %s\n", status.PolicyURLs.PrivacyPolicyURL)
				}
				return nil
			})
		},
	}
}

func collectStatus(ctx context.Context, helper *authclient.Helper) (moduleStatus, error) {
	var status moduleStatus
	var err error
	if status.ProtocolVersion, err = helper.Version(ctx); err != nil {
		return status, err
	}
	if status.LoggedIn, err = helper.IsLoggedIn(ctx); err != nil {
		return status, err
	}
	if status.RecordsOrigin, err = helper.RecordsOrigin(ctx); err != nil {
		return status, err
	}
	if status.WebsocketOrigin, err = helper.WebsocketOrigin(ctx); err != nil {
		return status, err
	}
	if status.WebsocketProtocol, err = helper.WebsocketProtocol(ctx); err != nil {
		return status, err
	}
	status.PolicyURLs, err = helper.PolicyURLs(ctx)
	return status, err
}

func tokenCommand(ctx context.Context, term terminal) *cli.Command {
	connection := &connection{stderr: term.stderr}
	var connectionKey bool
	return &cli.Command{
		Name:    "token",
		Summary: "Print the session token",
		Description: `Print the session token of the module's current session. With
--connection-key, print the key issued with it instead. Fails when the
module holds no session; run "authbridge login" first.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("token", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			flagSet.BoolVar(&connectionKey, "connection-key", false, "print the connection key instead of the token")
			return flagSet
		},
		Run: func([]string) error {
			return withHelper(connection, func(helper *authclient.Helper) error {
				// A fresh process starts logged out; pick up a stored
				// session without prompting.
				if _, err := helper.Login(ctx, true); err != nil {
					return err
				}
				fetch := helper.AuthToken
				if connectionKey {
					fetch = helper.ConnectionKey
				}
				value, err := fetch(ctx)
				if err != nil {
					return err
				}
				if value == "" {
					return errNotLoggedIn
				}
				fmt.Fprintln(term.out, value)
				return nil
			})
		},
	}
}

func recordKeyCommand(ctx context.Context, term terminal) *cli.Command {
	connection := &connection{stderr: term.stderr}
	return &cli.Command{
		Name:    "record-key",
		Summary: "Create a key for publishing public records",
		Description: `Ask the module for a public record key. The module logs in first when
it holds no session, prompting in the browser.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("record-key", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			return flagSet
		},
		Run: func([]string) error {
			return withHelper(connection, func(helper *authclient.Helper) error {
				if _, err := helper.Login(ctx, true); err != nil {
					return err
				}
				key, err := helper.CreatePublicRecordKey(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(term.out, key)
				return nil
			})
		},
	}
}

func accountCommand(ctx context.Context, term terminal) *cli.Command {
	connection := &connection{stderr: term.stderr}
	return &cli.Command{
		Name:    "account",
		Summary: "Open the account management page",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("account", pflag.ContinueOnError)
			connection.AddFlags(flagSet)
			return flagSet
		},
		Run: func([]string) error {
			return withHelper(connection, func(helper *authclient.Helper) error {
				return helper.OpenAccountPage(ctx)
			})
		},
	}
}
