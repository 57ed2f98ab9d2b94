package storage

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// NewSQLiteStore opens a pure-Go SQLite database at path (or ":memory:") and
// returns a migrated SQLStore. glebarez/sqlite avoids a cgo dependency,
// keeping the binary statically linkable.
func NewSQLiteStore(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db)
}
