// Package logging configures the process-wide slog logger for microblog.
//
// Logs are JSON lines. The server writes to stderr and, when a file path is
// configured (always with --debug), to a size-rotated file under
// ~/.microblog/logs/.
package logging
