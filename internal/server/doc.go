// Package server exposes the review pipeline over HTTP: manual diff and
// GitHub pull request reviews, stored review history, health and metrics.
package server
