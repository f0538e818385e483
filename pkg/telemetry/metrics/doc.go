// Package metrics exposes Prometheus metrics for the billing engine: charge
// outcomes, coin volumes, bypasses and cap freezes. The Collector owns the
// registry and serves the scrape endpoint; recording methods are nil-safe so
// metrics can be disabled by simply not wiring them.
package metrics
