// Package ticket materializes query results into durable artifacts and hands
// out download tickets for them.
//
// Each artifact is keyed by a fingerprint of (matrix identity, normalized
// filter, format). At most one live artifact exists per fingerprint, and at
// most one build per fingerprint runs at a time: concurrent requests for the
// same fingerprint wait on the in-flight build instead of starting their own.
//
// Lifecycle:
//
//	Pending ──build ok──▶ Ready ──TTL──▶ Expired ──sweep──▶ (gone)
//	   └────build error──▶ Failed (no ticket is issued)
//
// A Ledger, when configured, records Ready artifacts so Recover can reload
// them after a restart.
package ticket
