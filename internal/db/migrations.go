package db

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/suPer8Hu/picgen-bot/internal/store"
	"gorm.io/gorm"
)

func migrator(gdb *gorm.DB) *gormigrate.Gormigrate {
	return gormigrate.New(gdb, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202610160001_initial_schema",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(store.Models()...)
			},
			Rollback: func(tx *gorm.DB) error {
				models := store.Models()
				for i := len(models) - 1; i >= 0; i-- {
					if err := tx.Migrator().DropTable(models[i]); err != nil {
						return err
					}
				}
				return nil
			},
		},
	})
}

// Migrate brings the schema to the latest version.
func Migrate(gdb *gorm.DB) error {
	return migrator(gdb).Migrate()
}

// RollbackLast undoes the most recent migration.
func RollbackLast(gdb *gorm.DB) error {
	return migrator(gdb).RollbackLast()
}
