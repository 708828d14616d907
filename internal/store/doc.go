// Package store keeps a history of review reports in SQL. SQLite is the
// default and needs no setup; MySQL is supported for shared deployments.
package store
