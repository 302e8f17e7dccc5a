// Package history persists a ledger of generate runs and their render jobs in
// SQLite.
//
// The ledger is informational. Callers treat write failures as warnings so a
// broken database never fails a batch.
package history
