package database

import (
	"gorm.io/gorm"

	"ontology/internal/pipeline"
)

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(pipeline.Models()...); err != nil {
		return err
	}
	return MigrateIndexes(db)
}
