package app

import (
	"log/slog"
	"os"
	"strconv"
)

const testModeEnv = "CRM_TEST_MODE"

// InTestMode reports whether CRM_TEST_MODE holds a true value.
func InTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	return on
}

// SkipStartup reports whether the named entrypoint must return before it
// opens any connection.
func SkipStartup(component string, logger *slog.Logger) bool {
	if !InTestMode() {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("test mode detected, skipping startup", slog.String("component", component))
	return true
}
