// Package review holds the review data model and the orchestrator that runs
// a multi-agent review.
//
// [Orchestrator.Run] starts one task per (reviewer, file) pair, collects the
// resulting [Outcome] values over a channel, and folds them into a [Report]:
// comments from every task that produced them, a [TaskFailure] for every task
// that failed, deduplicated by path, line and body prefix, and sorted by path
// and line. A failed task never cancels its siblings and never turns into a
// run-level error. The only run-level errors are the request deadline
// ([DeadlineError]) and caller cancellation, both of which still return the
// partial report.
//
// [Classify] maps any error from the pipeline to a stable [Class] string used
// for logs, HTTP error codes and CLI exit codes.
package review
