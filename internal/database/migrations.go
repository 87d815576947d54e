package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/tortilla/internal/availability"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	migrationSeedAvailabilityState = "2025-01-15_seed_availability_state"
	migrationDeactivateStaleVotes  = "2025-02-01_deactivate_stale_outage_votes"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedAvailabilityState, apply: seedAvailabilityState},
		{name: migrationDeactivateStaleVotes, apply: deactivateStaleVotes},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// seedAvailabilityState inserts the singleton state row as "not available".
func seedAvailabilityState(db *gorm.DB) error {
	state := availability.State{ID: availability.StateRowID, LastUpdated: time.Now().UTC()}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&state).Error
}

// deactivateStaleVotes closes votes left active past the retention window by earlier deployments.
func deactivateStaleVotes(db *gorm.DB) error {
	cutoff := time.Now().UTC().Add(-availability.VoteRetention)
	return db.Model(&availability.OutageVote{}).
		Where("is_active = ? AND created_at < ?", true, cutoff).
		Update("is_active", false).Error
}
