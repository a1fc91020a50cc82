// Package metrics provides the Prometheus collector for dialogue runs and
// capability calls. A nil *Collector is valid and records nothing.
package metrics
