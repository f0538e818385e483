// Package config loads, validates, and watches the service configuration.
//
// Configuration is read from a YAML file, filled in with defaults, and
// optionally overridden by COINMETER_* environment variables. The pricing
// catalog section can be hot-reloaded at runtime via Watcher, which feeds
// successfully validated configurations to a caller-supplied callback.
//
// Money amounts appear as floats only in the YAML shape; they are converted
// to decimals before anything downstream sees them.
package config
