// Package store persists monitored pages, their captured versions and the
// annotations attached to changes between versions.
package store

import (
	"database/sql"

	"github.com/hazyhaar/changeview/dbopen"
)

// Store is the changeview database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and applies Schema. The
// path ":memory:" gives a private database on a single connection.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
