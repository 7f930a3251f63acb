package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/steveyegge/bbmigrate/internal/migrate"
	"github.com/steveyegge/bbmigrate/internal/ratelimit"
)

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// outputJSONError writes err to stderr as JSON:
//
//	{"error": "message", "code": "error_code", "last_migrated": 12}
func outputJSONError(err error, code string) {
	errObj := map[string]interface{}{"error": err.Error()}
	if code != "" {
		errObj["code"] = code
	}
	var abort *migrate.AbortError
	if errors.As(err, &abort) {
		errObj["last_migrated"] = abort.LastMigrated
		if abort.Partial > 0 {
			errObj["partial"] = abort.Partial
		}
	}
	encoder := json.NewEncoder(os.Stderr)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(errObj)
}

// errorCode classifies err for machine-readable output.
func errorCode(err error) string {
	var (
		oos    *migrate.OutOfSyncError
		failed *migrate.ImportFailedError
		rl     *ratelimit.Error
	)
	switch {
	case errors.As(err, &oos):
		return "out_of_sync"
	case errors.As(err, &failed):
		return "import_failed"
	case errors.Is(err, migrate.ErrPollTimeout):
		return "poll_timeout"
	case errors.Is(err, ratelimit.ErrWaitTooLong):
		return "rate_limited"
	case errors.As(err, &rl):
		return "http_" + rl.Kind.String()
	}
	return ""
}

// warnf writes a warning to stderr.
func warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// maskToken masks a secret for safe display.
func maskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
