// Package session tracks per-conversation usage and enforces hard caps.
//
// A Session accumulates characters, tokens and coin cost across the life of
// one conversation. When the owning pricing config's message or token cap is
// reached the session flips read-only and its status moves to completed; no
// further billable usage is accepted after that point.
//
// The Tracker serializes all updates per session id with a keyed mutex, so
// two concurrent messages can never both pass the cap check when only one
// message's worth of quota remains. Sessions are never deleted, only
// soft-marked (completed, expired, cancelled); the Sweeper moves active
// sessions past their end time to expired on a cron schedule.
package session
