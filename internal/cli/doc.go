// Package cli implements the quorum command tree on cobra. Commands review
// local changes or pull requests, run the HTTP service, and manage
// configuration, history, the response cache and the pre-commit hook.
package cli
