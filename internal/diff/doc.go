// Package diff parses unified diffs into per-file, per-hunk change records.
//
// [Parse] accepts the output of `git diff`, `diff -u`, or the GitHub diff media
// type and returns one [FileChange] per file section in input order. Every
// content line carries its number on the side(s) it belongs to, derived from the
// running counters of its hunk header, so that review findings expressed
// relative to a hunk can be mapped back to absolute file lines.
//
// Malformed hunk headers and truncated hunk bodies are reported as
// [*FormatError]; binary and rename-only sections are kept as files with no
// hunks.
package diff
