// Package repository persists the audit chain.
//
// Entries are keyed by their sequence number, which doubles as the primary key so a
// second writer racing for the same position fails with a conflict instead of forking
// the chain. Rows are never updated or deleted by the application.
//
// # Database Support
//
//   - PostgreSQL: BIGINT sequence, BYTEA hashes and JSONB metadata
//   - MySQL: BIGINT UNSIGNED sequence, BINARY(16) UUIDs and VARBINARY hashes
//   - Badger: JSON records under "audit" keyed by the zero-padded sequence
package repository
