package ratings

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/tortilla/internal/apperr"
	"github.com/MarcoPoloResearchLab/tortilla/internal/calendar"
	"github.com/MarcoPoloResearchLab/tortilla/internal/ids"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Comment is a rating with a non-empty comment, enriched with its social counters.
type Comment struct {
	Rating      Rating
	Reactions   ReactionCounts
	LikesCount  int
	MyReactions []Reaction
	Liked       bool
}

// ListComments returns today's commented ratings, newest first. When viewer is set the
// result also says which reactions and likes belong to that fingerprint.
func (s *Service) ListComments(ctx context.Context, viewer string) ([]Comment, error) {
	viewer = strings.TrimSpace(viewer)
	dayStart, dayEnd := calendar.DayRange(s.clock().UTC(), s.location)

	var rated []Rating
	if err := s.db.WithContext(ctx).
		Where("comment IS NOT NULL AND comment <> ''").
		Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
		Order("created_at DESC").
		Find(&rated).Error; err != nil {
		s.logError(opListComments, "ratings_query_failed", err)
		return nil, apperr.Internal("database_error", err)
	}

	comments := make([]Comment, 0, len(rated))
	if len(rated) == 0 {
		return comments, nil
	}

	ratingIDs := make([]string, 0, len(rated))
	for _, rating := range rated {
		ratingIDs = append(ratingIDs, rating.ID)
	}

	var reactions []CommentReaction
	if err := s.db.WithContext(ctx).Where("rating_id IN ?", ratingIDs).Find(&reactions).Error; err != nil {
		s.logError(opListComments, "reactions_query_failed", err)
		return nil, apperr.Internal("database_error", err)
	}
	var likes []CommentLike
	if err := s.db.WithContext(ctx).Where("rating_id IN ?", ratingIDs).Find(&likes).Error; err != nil {
		s.logError(opListComments, "likes_query_failed", err)
		return nil, apperr.Internal("database_error", err)
	}

	index := make(map[string]int, len(rated))
	for position, rating := range rated {
		index[rating.ID] = position
		comments = append(comments, Comment{
			Rating:      rating,
			Reactions:   NewReactionCounts(),
			MyReactions: []Reaction{},
		})
	}
	for _, reaction := range reactions {
		comment := &comments[index[reaction.RatingID]]
		if _, known := comment.Reactions[reaction.Reaction]; known {
			comment.Reactions[reaction.Reaction]++
		}
		if viewer != "" && reaction.ClientFingerprint == viewer {
			comment.MyReactions = append(comment.MyReactions, reaction.Reaction)
		}
	}
	for _, like := range likes {
		comment := &comments[index[like.RatingID]]
		comment.LikesCount++
		if viewer != "" && like.ClientFingerprint == viewer {
			comment.Liked = true
		}
	}
	return comments, nil
}

type ToggleRequest struct {
	RatingID    string
	Fingerprint string
	Reaction    string
	IPAddress   string
}

type LikeResult struct {
	Liked      bool
	LikesCount int64
}

// ToggleLike removes the caller's like when present, otherwise adds it.
func (s *Service) ToggleLike(ctx context.Context, request ToggleRequest) (LikeResult, error) {
	ratingID := strings.TrimSpace(request.RatingID)
	fingerprint := strings.TrimSpace(request.Fingerprint)
	if ratingID == "" || fingerprint == "" {
		return LikeResult{}, apperr.Validation("missing_required_fields")
	}
	if err := s.requireRating(ctx, opToggleLike, ratingID); err != nil {
		return LikeResult{}, err
	}

	db := s.db.WithContext(ctx)
	var existing CommentLike
	err := db.Where("rating_id = ? AND client_fingerprint = ?", ratingID, fingerprint).Take(&existing).Error
	liked := false
	switch {
	case err == nil:
		if err := db.Delete(&CommentLike{}, existing.ID).Error; err != nil {
			s.logError(opToggleLike, "like_delete_failed", err, zap.String("rating_id", ratingID))
			return LikeResult{}, apperr.Internal("database_error", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		like := CommentLike{
			RatingID:          ratingID,
			ClientFingerprint: fingerprint,
			IPHash:            HashIP(request.IPAddress),
			CreatedAt:         s.clock().UTC(),
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
			s.logError(opToggleLike, "like_insert_failed", err, zap.String("rating_id", ratingID))
			return LikeResult{}, apperr.Internal("database_error", err)
		}
		liked = true
	default:
		s.logError(opToggleLike, "like_query_failed", err, zap.String("rating_id", ratingID))
		return LikeResult{}, apperr.Internal("database_error", err)
	}

	var count int64
	if err := db.Model(&CommentLike{}).Where("rating_id = ?", ratingID).Count(&count).Error; err != nil {
		s.logError(opToggleLike, "like_count_failed", err, zap.String("rating_id", ratingID))
		return LikeResult{}, apperr.Internal("database_error", err)
	}
	return LikeResult{Liked: liked, LikesCount: count}, nil
}

type ReactionResult struct {
	Active bool
	Counts ReactionCounts
}

// ToggleReaction removes the caller's reaction when present, otherwise adds it.
func (s *Service) ToggleReaction(ctx context.Context, request ToggleRequest) (ReactionResult, error) {
	ratingID := strings.TrimSpace(request.RatingID)
	fingerprint := strings.TrimSpace(request.Fingerprint)
	rawReaction := strings.TrimSpace(request.Reaction)
	if ratingID == "" || fingerprint == "" || rawReaction == "" {
		return ReactionResult{}, apperr.Validation("missing_required_fields")
	}
	reaction, ok := ParseReaction(rawReaction)
	if !ok {
		return ReactionResult{}, apperr.Validation("invalid_reaction")
	}
	if err := s.requireRating(ctx, opToggleReaction, ratingID); err != nil {
		return ReactionResult{}, err
	}

	db := s.db.WithContext(ctx)
	var existing CommentReaction
	err := db.Where("rating_id = ? AND client_fingerprint = ? AND reaction = ?", ratingID, fingerprint, reaction).
		Take(&existing).Error
	active := false
	switch {
	case err == nil:
		if err := db.Delete(&CommentReaction{}, existing.ID).Error; err != nil {
			s.logError(opToggleReaction, "reaction_delete_failed", err, zap.String("rating_id", ratingID))
			return ReactionResult{}, apperr.Internal("database_error", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := CommentReaction{
			RatingID:          ratingID,
			ClientFingerprint: fingerprint,
			Reaction:          reaction,
			IPHash:            HashIP(request.IPAddress),
			CreatedAt:         s.clock().UTC(),
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			s.logError(opToggleReaction, "reaction_insert_failed", err, zap.String("rating_id", ratingID))
			return ReactionResult{}, apperr.Internal("database_error", err)
		}
		active = true
	default:
		s.logError(opToggleReaction, "reaction_query_failed", err, zap.String("rating_id", ratingID))
		return ReactionResult{}, apperr.Internal("database_error", err)
	}

	var rows []CommentReaction
	if err := db.Where("rating_id = ?", ratingID).Find(&rows).Error; err != nil {
		s.logError(opToggleReaction, "reaction_count_failed", err, zap.String("rating_id", ratingID))
		return ReactionResult{}, apperr.Internal("database_error", err)
	}
	counts := NewReactionCounts()
	for _, row := range rows {
		if _, known := counts[row.Reaction]; known {
			counts[row.Reaction]++
		}
	}
	return ReactionResult{Active: active, Counts: counts}, nil
}

func (s *Service) requireRating(ctx context.Context, operation, ratingID string) error {
	if !ids.IsWellFormed(ratingID) {
		return apperr.NotFound("rating_not_found")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&Rating{}).Where("id = ?", ratingID).Count(&count).Error; err != nil {
		s.logError(operation, "rating_lookup_failed", err, zap.String("rating_id", ratingID))
		return apperr.Internal("database_error", err)
	}
	if count == 0 {
		return apperr.NotFound("rating_not_found")
	}
	return nil
}

