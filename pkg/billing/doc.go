// Package billing orchestrates the charge path: validate usage, apply the
// bypass policy, compute the cost, deduct the wallet and update the session,
// as one logical unit per message.
//
// # Flow
//
// A charge request carries raw usage signals. The validation guard
// reconciles the client- and server-measured character counts and rejects
// out-of-range token requests. The bypass policy may make the request free
// (premium entitlement on a medium-strength config). The pricing calculator
// produces a breakdown, the ledger deducts coins under a deterministic
// reference id, and the session tracker accumulates the usage and
// re-evaluates the hard caps.
//
// # Failure semantics
//
// The five expected failure kinds (unknown config, character mismatch,
// invalid token range, insufficient balance, read-only session) come back
// inside ChargeResult with a machine-readable reason code; they are never
// returned as errors from the charge entry points. Errors signal faults
// (storage unavailable), after which the caller must re-check wallet and
// session state before retrying. Retries are safe: one message maps to one
// reference id, and the ledger deducts at most once per reference id.
package billing
