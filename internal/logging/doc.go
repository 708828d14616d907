// Package logging builds the structured slog loggers used across quorum.
package logging
