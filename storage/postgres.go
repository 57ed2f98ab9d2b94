package storage

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewPostgresStore opens a postgres-backed SQLStore using the given DSN,
// for deployments that want a shared, horizontally-scaled job table instead
// of the embedded SQLite/LevelDB backends.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db)
}
