// Package server exposes the metering service over HTTP.
//
// It ties together the billing tracker, session tracker, and wallet ledger
// behind JSON endpoints and manages server lifecycle including graceful
// shutdown and OS signal handling (SIGTERM, SIGINT).
//
// # Routes
//
// The server exposes the following endpoints:
//
//   - POST /v1/sessions - Start a usage session
//   - GET /v1/sessions/{id} - Fetch a session
//   - POST /v1/sessions/{id}/cancel - Cancel a session
//   - GET /v1/sessions/{id}/summary - Aggregate usage report
//   - GET /v1/sessions/{id}/estimate - Estimate the next message's cost
//   - POST /v1/sessions/{id}/tokens - Record unbilled token usage
//   - POST /v1/billing/charge - Validate and charge one message
//   - POST /v1/billing/precheck - Fail-fast affordability check
//   - POST /v1/billing/preview - Price a prospective request
//   - GET /v1/billing/step-options - Selectable output sizes for a config
//   - GET /v1/wallets/{user} - Fetch a wallet
//   - POST /v1/wallets/{user}/deposit - Add money
//   - POST /v1/wallets/{user}/withdraw - Remove money
//   - POST /v1/wallets/{user}/purchase - Convert money to coins
//   - GET /v1/wallets/{user}/transactions - Transaction history
//   - GET /healthz - Liveness probe
//   - GET /metrics - Prometheus scrape endpoint (when enabled)
//
// Coin amounts serialize as decimal strings so no precision is lost at the
// wire.
//
// # Middleware Chain
//
// Requests pass through (outermost to innermost): recovery, logging,
// request id.
//
// Expected billing failures (insufficient balance, character mismatch,
// invalid token range, frozen session) travel inside a 200 charge response
// with a machine-readable reason code; HTTP error statuses are reserved for
// malformed requests, unknown resources, and faults.
package server
