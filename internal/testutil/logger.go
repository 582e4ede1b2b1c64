package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that discards all output.
// Prefer log.NewNop() when already working with the internal/log package;
// this exists for tests that only need the slog type.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
