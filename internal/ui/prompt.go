package ui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrNotInteractive is returned by prompts when stdout is not a terminal.
var ErrNotInteractive = errors.New("cannot prompt: not running in a terminal")

// Confirm asks a yes/no question. It defaults to no.
func Confirm(title, description string) (bool, error) {
	if !IsTerminal() {
		return false, ErrNotInteractive
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Migrate").
		Negative("Cancel").
		Value(&ok).
		Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// PromptSecret reads a password or token without echoing it.
func PromptSecret(title string) (string, error) {
	if !IsTerminal() {
		return "", ErrNotInteractive
	}
	var secret string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&secret).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("a value is required")
			}
			return nil
		}).
		Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(secret), nil
}
