// Package debug holds bbmigrate's verbosity switches and the small set of
// print helpers gated by them.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	enabled     = os.Getenv("BBMIGRATE_DEBUG") != ""
	verboseMode = false
	quietMode   = false

	outMu  sync.Mutex
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

// SetOutput redirects normal and debug output. It returns a function that
// restores the previous writers.
func SetOutput(out, errOut io.Writer) (restore func()) {
	outMu.Lock()
	defer outMu.Unlock()
	prevOut, prevErr := stdout, stderr
	stdout, stderr = out, errOut
	return func() {
		outMu.Lock()
		defer outMu.Unlock()
		stdout, stderr = prevOut, prevErr
	}
}

func Logf(format string, args ...interface{}) {
	if Enabled() {
		write(stderr, format, args...)
	}
}

func Printf(format string, args ...interface{}) {
	if Enabled() {
		write(stdout, format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		write(stdout, format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		write(stdout, "%s", fmt.Sprintln(args...))
	}
}

// LogRequest traces one API exchange when debugging is on.
// Format: HH:MM:SS METHOD URL -> STATUS (DURATION)
func LogRequest(method, url string, status int, elapsed time.Duration) {
	if !Enabled() {
		return
	}
	write(stderr, "%s %s %s -> %d (%s)\n",
		time.Now().Format("15:04:05"), method, url, status, elapsed.Round(time.Millisecond))
}

func write(w io.Writer, format string, args ...interface{}) {
	outMu.Lock()
	defer outMu.Unlock()
	_, _ = fmt.Fprintf(w, format, args...)
}
