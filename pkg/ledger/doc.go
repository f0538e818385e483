// Package ledger implements the wallet and transaction service that billing
// charges settle against.
//
// A wallet holds a monetary balance and a separate coin balance per user.
// Every mutation writes a transaction row carrying a caller-supplied
// reference id. Reference ids are unique per wallet: retrying an operation
// with the same reference id returns the originally recorded transaction
// instead of moving money again. Balance check and mutation happen inside a
// single database transaction, so two concurrent deducts can never both pass
// the balance check.
//
// Two implementations exist: SQLiteService for durable single-instance
// deployments and MemoryService for tests and ephemeral runs.
package ledger
