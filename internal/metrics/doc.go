// Package metrics defines the Prometheus collectors quorum exports.
//
// All recording methods are safe on a nil *Metrics, so components can take
// an optional metrics value without checking for it.
package metrics
