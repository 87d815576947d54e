package ratings

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/tortilla/internal/apperr"
	"github.com/MarcoPoloResearchLab/tortilla/internal/calendar"
	"github.com/MarcoPoloResearchLab/tortilla/internal/ids"
	"github.com/MarcoPoloResearchLab/tortilla/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase     = errors.New("database handle is required")
	errMissingAvailability = errors.New("availability gate is required")
	noOpLogger             = zap.NewNop()
)

const (
	opSubmit         = "ratings.submit"
	opClearDay       = "ratings.clear_day"
	opListComments   = "ratings.list_comments"
	opToggleLike     = "ratings.toggle_like"
	opToggleReaction = "ratings.toggle_reaction"
)

const (
	MaxCommentLength = 120
	RatingCooldown   = 5 * time.Minute
	imageKeyPrefix   = "ratings"
)

// AvailabilityGate is the slice of the availability store a rating submission depends on.
type AvailabilityGate interface {
	IsAvailable(ctx context.Context) (bool, error)
	DeactivateOutageVotes(ctx context.Context) (int64, error)
}

type ServiceConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	Location     *time.Location
	IDProvider   ids.Provider
	Availability AvailabilityGate
	Images       storage.BlobStore
	ImageKeys    *storage.KeyGenerator
	Logger       *zap.Logger
}

type Service struct {
	db           *gorm.DB
	clock        func() time.Time
	location     *time.Location
	idProvider   ids.Provider
	availability AvailabilityGate
	images       storage.BlobStore
	imageKeys    *storage.KeyGenerator
	logger       *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Availability == nil {
		return nil, errMissingAvailability
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	imageKeys := cfg.ImageKeys
	if imageKeys == nil {
		generator, err := storage.NewKeyGenerator(1)
		if err != nil {
			return nil, err
		}
		imageKeys = generator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:           cfg.Database,
		clock:        clock,
		location:     location,
		idProvider:   idProvider,
		availability: cfg.Availability,
		images:       cfg.Images,
		imageKeys:    imageKeys,
		logger:       logger,
	}, nil
}

// Submission carries the raw values of a rating request. Scores arrive as numbers so
// fractional input can be rejected rather than truncated.
type Submission struct {
	Fingerprint string
	Sabor       float64
	Jugosidad   float64
	Cuajada     float64
	Temperatura float64
	Comment     string
	IPAddress   string
	Image       *ImageUpload
}

type scoreRange struct {
	min float64
	max float64
}

var (
	defaultRange = scoreRange{min: 1, max: 10}
	cuajadaRange = scoreRange{min: 5, max: 10}
)

func (r scoreRange) contains(value float64) bool {
	return value >= r.min && value <= r.max
}

// OverallScore is the rounded mean of the four axes, halves rounded up.
func OverallScore(sabor, jugosidad, cuajada, temperatura int) int {
	return int(math.Round(float64(sabor+jugosidad+cuajada+temperatura) / 4))
}

// Submit validates and stores a rating. A successful rating clears the active outage votes.
func (s *Service) Submit(ctx context.Context, submission Submission) (Rating, error) {
	fingerprint := strings.TrimSpace(submission.Fingerprint)
	scores := []float64{submission.Sabor, submission.Jugosidad, submission.Cuajada, submission.Temperatura}

	if fingerprint == "" {
		return Rating{}, apperr.Validation("missing_required_fields")
	}
	for _, score := range scores {
		if score == 0 || math.IsNaN(score) {
			return Rating{}, apperr.Validation("missing_required_fields")
		}
	}
	if !defaultRange.contains(submission.Sabor) || !defaultRange.contains(submission.Jugosidad) ||
		!cuajadaRange.contains(submission.Cuajada) || !defaultRange.contains(submission.Temperatura) {
		return Rating{}, apperr.Validation("rating_out_of_range")
	}
	for _, score := range scores {
		if score != math.Trunc(score) {
			return Rating{}, apperr.Validation("invalid_rating_values")
		}
	}

	comment := strings.TrimSpace(submission.Comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return Rating{}, apperr.Validation("comment_too_long")
	}

	available, err := s.availability.IsAvailable(ctx)
	if err != nil {
		s.logError(opSubmit, "availability_query_failed", err)
		return Rating{}, apperr.Internal("database_error", err)
	}
	if !available {
		return Rating{}, apperr.Validation("tortilla_not_available")
	}

	now := s.clock().UTC()
	dayStart, dayEnd := calendar.DayRange(now, s.location)

	var ratedToday int64
	if err := s.db.WithContext(ctx).Model(&Rating{}).
		Where("client_fingerprint = ? AND created_at >= ? AND created_at < ?", fingerprint, dayStart, dayEnd).
		Count(&ratedToday).Error; err != nil {
		s.logError(opSubmit, "daily_limit_query_failed", err, zap.String("fingerprint", fingerprint))
		return Rating{}, apperr.Internal("database_error", err)
	}
	if ratedToday > 0 {
		return Rating{}, apperr.Limited("already_rated_today")
	}

	var recent int64
	if err := s.db.WithContext(ctx).Model(&Rating{}).
		Where("client_fingerprint = ? AND created_at > ?", fingerprint, now.Add(-RatingCooldown)).
		Count(&recent).Error; err != nil {
		s.logError(opSubmit, "cooldown_query_failed", err, zap.String("fingerprint", fingerprint))
		return Rating{}, apperr.Internal("database_error", err)
	}
	if recent > 0 {
		return Rating{}, apperr.Limited("rate_limited")
	}

	var imageURL *string
	if submission.Image != nil {
		url, err := s.storeImage(ctx, fingerprint, *submission.Image)
		if err != nil {
			return Rating{}, err
		}
		imageURL = &url
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSubmit, "id_generation_failed", err)
		return Rating{}, apperr.Internal("internal_server_error", err)
	}

	sabor, jugosidad, cuajada, temperatura := int(submission.Sabor), int(submission.Jugosidad), int(submission.Cuajada), int(submission.Temperatura)
	rating := Rating{
		ID:                id,
		ClientFingerprint: fingerprint,
		IPHash:            HashIP(submission.IPAddress),
		Sabor:             sabor,
		Jugosidad:         jugosidad,
		Cuajada:           cuajada,
		Temperatura:       temperatura,
		ScoreOverall:      OverallScore(sabor, jugosidad, cuajada, temperatura),
		ImageURL:          imageURL,
		CreatedAt:         now,
	}
	if comment != "" {
		rating.Comment = &comment
	}

	if err := s.db.WithContext(ctx).Create(&rating).Error; err != nil {
		s.logError(opSubmit, "rating_insert_failed", err, zap.String("fingerprint", fingerprint))
		return Rating{}, apperr.Internal("database_error", err)
	}

	if _, err := s.availability.DeactivateOutageVotes(ctx); err != nil {
		s.logError(opSubmit, "outage_votes_clear_failed", err)
	}

	return rating, nil
}

func (s *Service) storeImage(ctx context.Context, fingerprint string, upload ImageUpload) (string, error) {
	contentType, ext, err := checkImage(upload)
	if err != nil {
		return "", err
	}
	if s.images == nil {
		s.logError(opSubmit, "image_store_missing", storage.ErrDisabled)
		return "", apperr.Internal("image_upload_failed", storage.ErrDisabled)
	}

	key := s.imageKeys.Next(imageKeyPrefix, fingerprint, ext)
	url, err := s.images.Put(ctx, storage.Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(upload.Data)),
		Body:        bytes.NewReader(upload.Data),
	})
	if err != nil {
		s.logError(opSubmit, "image_upload_failed", err, zap.String("key", key))
		return "", apperr.Internal("image_upload_failed", err)
	}
	return url, nil
}

// ClearDay moves today's ratings and their reactions into the archive tables and removes
// them, together with their likes, from the live tables.
func (s *Service) ClearDay(ctx context.Context) error {
	now := s.clock().UTC()
	dayStart, dayEnd := calendar.DayRange(now, s.location)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var todays []Rating
		if err := tx.Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).Find(&todays).Error; err != nil {
			return err
		}
		if len(todays) == 0 {
			return nil
		}

		ratingIDs := make([]string, 0, len(todays))
		archived := make([]ArchivedRating, 0, len(todays))
		for _, rating := range todays {
			ratingIDs = append(ratingIDs, rating.ID)
			archived = append(archived, ArchivedRating{
				ID:                rating.ID,
				ClientFingerprint: rating.ClientFingerprint,
				IPHash:            rating.IPHash,
				Sabor:             rating.Sabor,
				Jugosidad:         rating.Jugosidad,
				Cuajada:           rating.Cuajada,
				Temperatura:       rating.Temperatura,
				ScoreOverall:      rating.ScoreOverall,
				Comment:           rating.Comment,
				ImageURL:          rating.ImageURL,
				CreatedAt:         rating.CreatedAt,
				ArchivedAt:        now,
			})
		}
		if err := tx.Create(&archived).Error; err != nil {
			return err
		}

		var reactions []CommentReaction
		if err := tx.Where("rating_id IN ?", ratingIDs).Find(&reactions).Error; err != nil {
			return err
		}
		if len(reactions) > 0 {
			archivedReactions := make([]ArchivedCommentReaction, 0, len(reactions))
			for _, reaction := range reactions {
				archivedReactions = append(archivedReactions, ArchivedCommentReaction{
					RatingID:          reaction.RatingID,
					ClientFingerprint: reaction.ClientFingerprint,
					Reaction:          reaction.Reaction,
					IPHash:            reaction.IPHash,
					CreatedAt:         reaction.CreatedAt,
				})
			}
			if err := tx.Create(&archivedReactions).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("rating_id IN ?", ratingIDs).Delete(&CommentReaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("rating_id IN ?", ratingIDs).Delete(&CommentLike{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ratingIDs).Delete(&Rating{}).Error
	})
	if err != nil {
		s.logError(opClearDay, "archive_failed", err)
		return apperr.Internal("database_error", err)
	}
	return nil
}

// HashIP stores a stable digest of the caller address instead of the address itself.
func HashIP(ip string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(ip)))
	return hex.EncodeToString(sum[:])
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
	s.logger.Error("ratings service error", attrs...)
}
