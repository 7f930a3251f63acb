package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

func init() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor follows the NO_COLOR and CLICOLOR conventions, falling
// back to whether stdout is a terminal.
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if f := os.Getenv("CLICOLOR_FORCE"); f != "" && f != "0" {
		return true
	}
	return IsTerminal()
}

// IsAgentMode reports whether output is consumed by a program rather than
// a person. Rendering stays plain text in that case.
func IsAgentMode() bool {
	return os.Getenv("BBMIGRATE_AGENT_MODE") == "1"
}

// DarkBackground reports whether the terminal background is dark. It
// returns true when the terminal cannot be queried.
func DarkBackground() bool {
	if !IsTerminal() {
		return true
	}
	return termenv.NewOutput(os.Stdout).HasDarkBackground()
}

// SetPlain disables styling for the rest of the process.
func SetPlain() {
	lipgloss.SetColorProfile(termenv.Ascii)
}
