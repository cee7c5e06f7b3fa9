// Package repository persists CellKey lineages.
//
// Each backend stores two things per cell: the append-only table of wrapped CellKey
// versions and the current-version pointer. The pointer is only ever moved by a
// compare-and-swap so two nodes rotating the same cell cannot both win.
//
// # Database Support
//
//   - PostgreSQL: native UUID type and BYTEA for wrapped material
//   - MySQL: BINARY(16) for UUIDs and BLOB for wrapped material
//   - Badger: embedded key-value store, JSON records under "cellkey" and "cellkeyptr"
//
// # Transaction Support
//
// The SQL repositories pick up the transaction carried by ctx via database.GetTx; the
// badger repository does the same through database.UpdateKV and database.ViewKV.
package repository
