package app

import "log/slog"

// StartupAllowed reports whether a binary may open listeners and start its
// loops. It is false under FACTORYBOOKS_TEST_MODE, which the
// internal/testing/guard package sets for any test that links a cmd package.
func (c *Config) StartupAllowed(logger *slog.Logger, binary string) bool {
	if c == nil || !c.TestMode {
		return true
	}
	if logger != nil {
		logger.Info("test mode detected, skipping startup", slog.String("binary", binary))
	}
	return false
}
