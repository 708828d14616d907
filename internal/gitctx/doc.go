// Package gitctx collects unified diffs from a local git repository, a diff
// file, or standard input, and applies include/exclude filters and a byte
// budget at whole-file boundaries so the result still parses.
package gitctx
