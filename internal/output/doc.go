// Package output renders review reports as styled terminal text, JSON,
// markdown, or SARIF 2.1.0.
package output
