// Package logging configures structured slog logging for kbpulse.
// With --debug the server writes JSON logs to ~/.kbpulse/logs/server.log with
// size-based rotation; otherwise it logs text to stderr only.
package logging
