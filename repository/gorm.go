package repository

import (
	"errors"
	"fmt"

	"buildinpublic-hub/errs"
	"buildinpublic-hub/models"

	"gorm.io/gorm"
)

// Migrate creates or updates the spar and leaderboard tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Spar{},
		&models.SparCommit{},
		&models.Developer{},
		&models.StatsHistory{},
	)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, errs.ErrPersistence, err)
}
