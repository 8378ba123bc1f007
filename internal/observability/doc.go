// Package observability provides logging and metrics for the plugin host.
//
// NewLogger builds the logrus logger every component scopes with a
// component field. Metrics implements the observer hooks of the API
// surface builder and the capability aggregator and counts registry
// lifecycle events; NewStateCollector exports plugin counts per state at
// scrape time. Server exposes both on /metrics.
package observability
