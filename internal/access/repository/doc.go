// Package repository persists access policies in PostgreSQL, MySQL and badger.
//
// Actions and conditions are stored as JSON documents next to the policy row, the
// same way across backends, so a policy reads back exactly as it was granted.
// use_count is only ever advanced by a conditional increment.
package repository
