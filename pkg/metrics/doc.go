/*
Package metrics provides Prometheus instrumentation for the token agent:
per-source fetch counters/durations, cache gauges, per-sink propagation
counters/durations, parse failures, and config validation errors.
*/
package metrics
