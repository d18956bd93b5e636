package store

import "gorm.io/gorm"

// AutoMigrate creates or updates the engine's tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&EventRecord{},
		&FilterConfigRecord{},
		&AlgorithmRecord{},
		&TaskRecord{},
	)
}
