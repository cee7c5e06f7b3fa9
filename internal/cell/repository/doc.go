// Package repository implements cell and secret version persistence for PostgreSQL,
// MySQL and the embedded badger store.
package repository
