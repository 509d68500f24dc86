// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bureau-foundation/authbridge/lib/authschema"
)

// loginHelper is the part of authclient.Helper an interactive login
// drives.
type loginHelper interface {
	Login(ctx context.Context, background bool) (*authschema.AuthData, error)
	OnLoginUIStatus(fn func(authschema.LoginUIStatus)) (unsubscribe func())
	ProvideEmailAddress(ctx context.Context, email string, acceptedTerms bool) error
	ProvideSMSNumber(ctx context.Context, number string, acceptedTerms bool) error
	ProvideCode(ctx context.Context, code string) error
	ProvideHasAccount(ctx context.Context, hasAccount bool) error
	ProvideRegistration(ctx context.Context, info authschema.RegistrationInfo) error
	CancelLogin(ctx context.Context) error
}

type loginResult struct {
	data *authschema.AuthData
	err  error
}

// interactiveLogin runs one interactive login, answering each UI page
// the module shows with prompts on out and lines read from in. Ending
// ctx or in cancels the attempt; the module's answer still decides the
// result.
func interactiveLogin(ctx context.Context, helper loginHelper, in io.Reader, out io.Writer) (*authschema.AuthData, error) {
	// The subscriber runs on the channel's read loop and must not
	// block, so it keeps only the newest page.
	pages := make(chan authschema.LoginUIStatus, 1)
	unsubscribe := helper.OnLoginUIStatus(func(status authschema.LoginUIStatus) {
		select {
		case <-pages:
		default:
		}
		pages <- status
	})
	defer unsubscribe()

	results := make(chan loginResult, 1)
	go func() {
		data, err := helper.Login(context.WithoutCancel(ctx), false)
		results <- loginResult{data: data, err: err}
	}()

	done := make(chan struct{})
	defer close(done)
	lines := readLines(in, done)

	form := &pageForm{helper: helper, out: out}
	canceled := false
	cancel := func() {
		if canceled {
			return
		}
		canceled = true
		if err := helper.CancelLogin(context.WithoutCancel(ctx)); err != nil {
			fmt.Fprintf(out, "canceling login: %v\n", err)
		}
	}

	contextDone := ctx.Done()
	for {
		select {
		case result := <-results:
			return result.data, result.err
		case page := <-pages:
			form.show(page)
		case line, ok := <-lines:
			if !ok {
				lines = nil
				cancel()
				continue
			}
			form.answer(ctx, line)
		case <-contextDone:
			contextDone = nil
			cancel()
		}
	}
}

// readLines delivers lines from in until it ends or done is closed.
func readLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-done:
				return
			}
		}
	}()
	return lines
}

// question is one prompt of a page. parse rejects an answer by
// returning an error, and the question is asked again.
type question struct {
	label string
	parse func(answer string) error
}

// pageForm renders the current page as a sequence of questions and
// submits the answers once the last one is given.
type pageForm struct {
	helper loginHelper
	out    io.Writer

	questions []question
	next      int
	submit    func(ctx context.Context) error
}

func (f *pageForm) show(page authschema.LoginUIStatus) {
	f.questions, f.next, f.submit = nil, 0, nil
	if page.ErrorMessage != "" {
		fmt.Fprintf(f.out, "error: %s\n", page.ErrorMessage)
	}

	switch page.Page {
	case authschema.PageHidden:
		return
	case authschema.PageEnterAddress:
		f.enterAddress(page)
	case authschema.PageCheckAddress:
		f.checkAddress(page)
	case authschema.PageHasAccount:
		var hasAccount bool
		f.questions = []question{yesNo("Do you already have an account?", &hasAccount)}
		f.submit = func(ctx context.Context) error { return f.helper.ProvideHasAccount(ctx, hasAccount) }
	case authschema.PageEnterPrivoAccountInfo:
		f.registration()
	case authschema.PageShowUpdatePasswordLink:
		fmt.Fprintf(f.out, "Your account was created. Set a password at:\n  %s\n", page.UpdatePasswordURL)
		f.dismissWith("Press enter when done")
	case authschema.PageShowIframe:
		fmt.Fprintf(f.out, "Continue in your browser:\n  %s\n", page.IframeURL)
		f.dismissWith("Press enter to cancel")
	default:
		fmt.Fprintf(f.out, "unsupported login page %q\n", page.Page)
		return
	}
	f.ask()
}

func (f *pageForm) enterAddress(page authschema.LoginUIStatus) {
	var address string
	var acceptedTerms bool
	label := "Email address"
	if page.SupportsSMS {
		label = "Email address or phone number"
	}
	terms := "Accept the terms of service"
	if page.TermsOfServiceURL != "" {
		terms += " (" + page.TermsOfServiceURL + ")"
	}
	if page.SiteName != "" {
		fmt.Fprintf(f.out, "Log in to %s\n", page.SiteName)
	}
	f.questions = []question{
		{label: label, parse: func(answer string) error { address = answer; return required(answer) }},
		yesNo(terms+"?", &acceptedTerms),
	}
	f.submit = func(ctx context.Context) error {
		if page.SupportsSMS && looksLikePhoneNumber(address) {
			return f.helper.ProvideSMSNumber(ctx, address, acceptedTerms)
		}
		return f.helper.ProvideEmailAddress(ctx, address, acceptedTerms)
	}
}

func (f *pageForm) checkAddress(page authschema.LoginUIStatus) {
	if !page.EnterCode {
		fmt.Fprintf(f.out, "Follow the link sent to %s.\n", page.Address)
		f.dismissWith("Press enter to cancel")
		return
	}
	var code string
	f.questions = []question{{
		label: "Code sent to " + page.Address,
		parse: func(answer string) error { code = answer; return required(answer) },
	}}
	f.submit = func(ctx context.Context) error { return f.helper.ProvideCode(ctx, code) }
}

func (f *pageForm) registration() {
	var info authschema.RegistrationInfo
	text := func(label string, target *string, optional bool) question {
		return question{label: label, parse: func(answer string) error {
			*target = answer
			if optional {
				return nil
			}
			return required(answer)
		}}
	}
	f.questions = []question{
		text("Display name", &info.DisplayName, false),
		text("Legal name", &info.Name, false),
		{label: "Date of birth (YYYY-MM-DD)", parse: func(answer string) error {
			date, err := time.Parse(time.DateOnly, answer)
			if err != nil {
				return fmt.Errorf("expected YYYY-MM-DD")
			}
			info.DateOfBirth = date
			return nil
		}},
		text("Email address (blank if under 18)", &info.Email, true),
		text("Parent's email address (blank if 18 or over)", &info.ParentEmail, true),
		yesNo("Accept the terms of service?", &info.AcceptedTerms),
	}
	f.submit = func(ctx context.Context) error { return f.helper.ProvideRegistration(ctx, info) }
}

// dismissWith makes the page a single enter-to-cancel prompt.
func (f *pageForm) dismissWith(label string) {
	f.questions = []question{{label: label, parse: func(string) error { return nil }}}
	f.submit = f.helper.CancelLogin
}

func (f *pageForm) ask() {
	if f.next < len(f.questions) {
		fmt.Fprintf(f.out, "%s: ", f.questions[f.next].label)
	}
}

// answer applies line to the pending question and submits the page
// after the last one. Lines arriving with nothing asked are ignored.
func (f *pageForm) answer(ctx context.Context, line string) {
	if f.next >= len(f.questions) {
		return
	}
	if err := f.questions[f.next].parse(line); err != nil {
		fmt.Fprintf(f.out, "%v\n", err)
		f.ask()
		return
	}
	f.next++
	if f.next < len(f.questions) {
		f.ask()
		return
	}
	if err := f.submit(ctx); err != nil {
		fmt.Fprintf(f.out, "error: %v\n", err)
	}
}

func yesNo(label string, target *bool) question {
	return question{label: label + " [y/N]", parse: func(answer string) error {
		switch strings.ToLower(answer) {
		case "y", "yes":
			*target = true
		default:
			*target = false
		}
		return nil
	}}
}

func required(answer string) error {
	if answer == "" {
		return fmt.Errorf("a value is required")
	}
	return nil
}

// looksLikePhoneNumber reports whether address is digits with an
// optional leading plus and the usual separators.
func looksLikePhoneNumber(address string) bool {
	digits := 0
	for index, r := range address {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && index == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits > 0
}
