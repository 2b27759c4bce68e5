package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HugeFrog24/create-tg-app/portal"
	"github.com/charmbracelet/huh"
)

// CodePrompter asks the user for input mid-run.
type CodePrompter interface {
	PromptCode(ctx context.Context, phone portal.PhoneNumber) (string, error)
	Confirm(ctx context.Context, question string) (bool, error)
}

type huhPrompter struct{}

func (huhPrompter) PromptCode(ctx context.Context, phone portal.PhoneNumber) (string, error) {
	var code string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title(fmt.Sprintf("Confirmation code sent to %s", phone.Masked())).
			Description("Telegram delivers it to your account, not by SMS.").
			Value(&code).
			Validate(validateCode),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

func (huhPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(question).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return ok, nil
}

// validateCode only rejects obviously broken input; the portal judges the code.
func validateCode(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("code is required")
	}
	if strings.ContainsAny(s, " \t") {
		return errors.New("code must not contain spaces")
	}
	return nil
}
