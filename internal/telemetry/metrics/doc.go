// Package metrics provides Prometheus metrics for wallet sessions and
// transaction attempts.
package metrics
