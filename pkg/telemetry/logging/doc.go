// Package logging builds the process-wide structured logger on top of
// log/slog. Level and format come from configuration; components attach
// themselves with With("component", ...) so every line can be filtered by
// origin.
package logging
