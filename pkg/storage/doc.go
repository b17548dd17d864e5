// Package storage defines the persistence contract for pitchdesk.
//
// The Store interface is composed from focused capabilities:
//
//   - UserStore: accounts, membership and the reviewer lookup used for fan-out
//   - OrganizationStore: tenants
//   - ProjectStore: projects, always loaded with the owner's organization
//   - CommentStore: the append-only comment log
//   - NotificationStore: single-recipient notifications
//
// RunInTx exposes a narrower Tx for the review transaction and registration.
//
// # Faults
//
// Implementations never return raw driver errors. A missing row is
// ErrNotFound, anything else is a *FaultError carrying one of a fixed set of
// Fault values. AppError maps both into the apperr taxonomy.
//
// The postgres subpackage implements Store over database/sql for both
// PostgreSQL and SQLite.
package storage
