// Package batches implements the quorum workflow in which one patron announces a fresh
// tortilla and a second patron has a few minutes to confirm it.
package batches

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tortilla/internal/apperr"
	"github.com/MarcoPoloResearchLab/tortilla/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

const (
	ConfirmationsNeeded = 2
	ConfirmationWindow  = 3 * time.Minute
)

type Batch struct {
	ID                   string     `gorm:"column:id;primaryKey;size:36"`
	Status               Status     `gorm:"column:status;size:16;not null;index"`
	StartedAt            time.Time  `gorm:"column:started_at;not null;index"`
	CreatedByFingerprint string     `gorm:"column:created_by_fingerprint;size:190;not null"`
	ConfirmationsNeeded  int        `gorm:"column:confirmations_needed;not null"`
	ConfirmedCount       int        `gorm:"column:confirmed_count;not null"`
	PendingUntil         *time.Time `gorm:"column:pending_until"`
}

func (Batch) TableName() string {
	return "batches"
}

type BatchVote struct {
	ID                uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	BatchID           string    `gorm:"column:batch_id;size:36;not null;uniqueIndex:idx_batch_votes_unique,priority:1"`
	ClientFingerprint string    `gorm:"column:client_fingerprint;size:190;not null;uniqueIndex:idx_batch_votes_unique,priority:2"`
	CreatedAt         time.Time `gorm:"column:created_at;not null"`
}

func (BatchVote) TableName() string {
	return "batch_votes"
}

func Models() []any {
	return []any{&Batch{}, &BatchVote{}}
}

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opCreate   = "batches.create"
	opConfirm  = "batches.confirm"
	opComplete = "batches.complete"
)

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: idProvider, logger: logger}, nil
}

// Create opens a batch on behalf of fingerprint, which counts as its first confirmation.
func (s *Service) Create(ctx context.Context, fingerprint string) (Batch, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return Batch{}, apperr.Validation("missing_required_fields")
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Batch{}, apperr.Internal("internal_server_error", err)
	}

	now := s.clock().UTC()
	pendingUntil := now.Add(ConfirmationWindow)
	batch := Batch{
		ID:                   id,
		Status:               StatusActive,
		StartedAt:            now,
		CreatedByFingerprint: fingerprint,
		ConfirmationsNeeded:  ConfirmationsNeeded,
		ConfirmedCount:       1,
		PendingUntil:         &pendingUntil,
	}
	if err := s.db.WithContext(ctx).Create(&batch).Error; err != nil {
		s.logError(opCreate, "batch_insert_failed", err, zap.String("fingerprint", fingerprint))
		return Batch{}, apperr.Internal("database_error", err)
	}

	vote := BatchVote{BatchID: batch.ID, ClientFingerprint: fingerprint, CreatedAt: now}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&vote).Error; err != nil {
		s.logError(opCreate, "vote_insert_failed", err, zap.String("batch_id", batch.ID))
	}
	return batch, nil
}

type ConfirmResult struct {
	Confirmed bool
	Votes     int64
}

// Confirm adds fingerprint's confirmation. Repeated confirmations by the same fingerprint are ignored.
func (s *Service) Confirm(ctx context.Context, batchID, fingerprint string) (ConfirmResult, error) {
	batchID = strings.TrimSpace(batchID)
	fingerprint = strings.TrimSpace(fingerprint)
	if batchID == "" || fingerprint == "" {
		return ConfirmResult{}, apperr.Validation("missing_required_fields")
	}

	db := s.db.WithContext(ctx)
	var batch Batch
	err := db.Where("id = ?", batchID).Take(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ConfirmResult{}, apperr.NotFound("not_found")
	}
	if err != nil {
		s.logError(opConfirm, "batch_query_failed", err, zap.String("batch_id", batchID))
		return ConfirmResult{}, apperr.Internal("database_error", err)
	}

	now := s.clock().UTC()
	if batch.PendingUntil != nil && batch.PendingUntil.Before(now) {
		return ConfirmResult{}, apperr.Gone("expired")
	}

	vote := BatchVote{BatchID: batchID, ClientFingerprint: fingerprint, CreatedAt: now}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&vote).Error; err != nil {
		s.logError(opConfirm, "vote_insert_failed", err, zap.String("batch_id", batchID))
	}

	var votes int64
	if err := db.Model(&BatchVote{}).Where("batch_id = ?", batchID).Count(&votes).Error; err != nil {
		s.logError(opConfirm, "vote_count_failed", err, zap.String("batch_id", batchID))
		return ConfirmResult{}, apperr.Internal("database_error", err)
	}

	confirmed := votes >= int64(batch.ConfirmationsNeeded)
	updates := map[string]any{"confirmed_count": votes}
	if confirmed {
		updates["confirmations_needed"] = 0
		updates["pending_until"] = nil
	}
	if err := db.Model(&Batch{}).Where("id = ?", batchID).Updates(updates).Error; err != nil {
		s.logError(opConfirm, "batch_update_failed", err, zap.String("batch_id", batchID))
		return ConfirmResult{}, apperr.Internal("database_error", err)
	}
	return ConfirmResult{Confirmed: confirmed, Votes: votes}, nil
}

// ClearDay completes every active batch once the tortilla is declared finished.
func (s *Service) ClearDay(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Model(&Batch{}).
		Where("status = ?", StatusActive).
		Update("status", StatusCompleted).Error; err != nil {
		s.logError(opComplete, "batch_update_failed", err)
		return apperr.Internal("database_error", err)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("batches service error", attrs...)
}
