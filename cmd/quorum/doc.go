// Quorum reviews code changes with four specialised LLM agents (logic, style,
// security, performance) and merges their comments into one report.
//
// It reviews local diffs and GitHub pull requests, and can run as an HTTP
// service. Exit codes are deterministic for CI gating and git hooks:
// 0 success, 1 comments in a --fail-on category, 2 usage or invalid diff,
// 3 authentication, 4 runtime or upstream failure.
//
// Usage:
//
//	quorum review staged                   # review staged changes
//	quorum review range origin/main..HEAD  # review a revision range
//	quorum review file change.diff         # review a diff file ("-" for stdin)
//	quorum github 42 --post                # review and comment on PR #42
//	quorum serve --watch-rules             # run the HTTP service
//	quorum history list                    # list saved reviews
package main
