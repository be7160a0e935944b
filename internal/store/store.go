// Package store reads operator-defined compliance profiles from Postgres.
package store

import "database/sql"

// Store provides read access to the compliance_profiles table.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}
