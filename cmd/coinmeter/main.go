// Coinmeter is a usage metering and billing service for AI conversations.
//
// It prices messages against a configurable catalog of AI tiers, tracks
// per-conversation usage against hard caps, and settles coin charges against
// user wallets with idempotent, replay-safe semantics.
//
// Usage:
//
//	# Start the API server with default configuration
//	coinmeter run
//
//	# Start with a custom configuration file
//	coinmeter run --config /path/to/config.yaml
//
//	# Validate a configuration file
//	coinmeter validate
//
//	# Inspect the pricing catalog and preview costs
//	coinmeter pricing list
//	coinmeter pricing preview --config-name contract_review_strong --chars 10000 --max-tokens 3000
//
//	# Show version information
//	coinmeter version
package main

func main() {
	Execute()
}
