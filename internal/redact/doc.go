// Package redact masks credentials in diff text before it leaves the
// process, and decides which paths are never sent to a model at all.
package redact
