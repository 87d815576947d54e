package availability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tortilla/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opCastVote        = "availability.cast_vote"
	opMarkFinished    = "availability.mark_finished"
	opResetOnActivity = "availability.reset_on_activity"
	opSetFromTallies  = "availability.set_from_tallies"
	opState           = "availability.state"
)

const (
	messageFinished        = "Tortilla marcada como agotada (2 votos) - Estado reseteado"
	messageFirstOutageVote = "1 persona dice que se acabó la tortilla"
	messageVotesReset      = "Outage votes reset successfully"
)

// DayResetter clears the current day's data once the tortilla is declared finished.
type DayResetter interface {
	ClearDay(ctx context.Context) error
}

// DayResetters runs every resetter and joins their failures.
type DayResetters []DayResetter

func (r DayResetters) ClearDay(ctx context.Context) error {
	var errs []error
	for _, resetter := range r {
		if err := resetter.ClearDay(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	Logger      *zap.Logger
	DayResetter DayResetter
}

// Service owns the vote workflow and the availability state row.
type Service struct {
	store       *Store
	clock       func() time.Time
	logger      *zap.Logger
	dayResetter DayResetter
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		store:       NewStore(cfg.Database),
		clock:       clock,
		logger:      logger,
		dayResetter: cfg.DayResetter,
	}, nil
}

type VoteRequest struct {
	Fingerprint string
	VoteType    string
	IPAddress   string
}

// CastVote records a vote and recomputes the availability state from the trailing window.
// The returned tally is clamped.
func (s *Service) CastVote(ctx context.Context, request VoteRequest) (Tally, error) {
	fingerprint := strings.TrimSpace(request.Fingerprint)
	rawType := strings.TrimSpace(request.VoteType)
	if fingerprint == "" || rawType == "" {
		return Tally{}, apperr.Validation("missing_required_fields")
	}
	voteType, ok := ParseVoteType(rawType)
	if !ok {
		return Tally{}, apperr.Validation("invalid_vote_type")
	}

	now := s.clock().UTC()

	recentlyVoted, err := s.store.HasVotedSince(ctx, fingerprint, now.Add(-VoteCooldown))
	if err != nil {
		s.logError(opCastVote, "cooldown_query_failed", err, zap.String("fingerprint", fingerprint))
		return Tally{}, apperr.Internal("database_error", err)
	}
	if recentlyVoted {
		return Tally{}, apperr.Limited("rate_limited")
	}

	if voteType == VoteOutage {
		latest, found, err := s.store.LatestActiveOutage(ctx, now.Add(-TallyWindow))
		if err != nil {
			s.logError(opCastVote, "latest_outage_query_failed", err, zap.String("fingerprint", fingerprint))
			return Tally{}, apperr.Internal("database_error", err)
		}
		if found && latest.Fingerprint == fingerprint {
			return Tally{}, apperr.Limited("rate_limited_consecutive_outage")
		}
	}

	vote := OutageVote{
		Fingerprint: fingerprint,
		IPAddress:   request.IPAddress,
		VoteType:    voteType,
		IsActive:    true,
		CreatedAt:   now,
	}
	if err := s.store.InsertVote(ctx, &vote); err != nil {
		s.logError(opCastVote, "vote_insert_failed", err, zap.String("fingerprint", fingerprint))
		return Tally{}, apperr.Internal("database_error", err)
	}

	if _, err := s.store.ExpireVotes(ctx, now.Add(-VoteRetention)); err != nil {
		s.logError(opCastVote, "vote_expiry_failed", err)
	}

	tally, err := s.store.TallySince(ctx, now.Add(-TallyWindow))
	if err != nil {
		s.logError(opCastVote, "tally_query_failed", err)
		return Tally{}, apperr.Internal("database_error", err)
	}

	state := StateFromTally(tally, now)
	if err := s.store.SaveState(ctx, state); err != nil {
		s.logError(opCastVote, "state_update_failed", err)
		return Tally{}, apperr.Internal("database_error", err)
	}

	s.logger.Debug("outage vote accepted",
		zap.String("fingerprint", fingerprint),
		zap.String("vote_type", string(voteType)),
		zap.Bool("is_available", state.IsAvailable))

	return tally.Clamped(), nil
}

// State returns the persisted availability state.
func (s *Service) State(ctx context.Context) (State, error) {
	state, err := s.store.State(ctx)
	if err != nil {
		s.logError(opState, "state_query_failed", err)
		return State{}, apperr.Internal("database_error", err)
	}
	return state, nil
}

// SetFromTallies overwrites the state from client supplied counts using LegacyDecide.
func (s *Service) SetFromTallies(ctx context.Context, available, unavailable int) (State, error) {
	state := LegacyStateFromCounts(available, unavailable, s.clock())
	if err := s.store.SaveState(ctx, state); err != nil {
		s.logError(opSetFromTallies, "state_update_failed", err)
		return State{}, apperr.Internal("database_error", err)
	}
	return state, nil
}

// FinishResult reports the outcome of a "tortilla finished" vote.
type FinishResult struct {
	Finished bool
	Votes    int
	Message  string
}

// MarkFinished records a finished claim. The second claim inside the tally window resets the day.
func (s *Service) MarkFinished(ctx context.Context, fingerprint, ipAddress string) (FinishResult, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return FinishResult{}, apperr.Validation("fingerprint_required")
	}

	now := s.clock().UTC()

	previous, err := s.store.CountActiveOutages(ctx, now.Add(-TallyWindow))
	if err != nil {
		s.logError(opMarkFinished, "outage_count_failed", err)
		return FinishResult{}, apperr.Internal("database_error", err)
	}

	vote := OutageVote{
		Fingerprint: fingerprint,
		IPAddress:   ipAddress,
		VoteType:    VoteOutage,
		IsActive:    true,
		CreatedAt:   now,
	}
	if err := s.store.InsertVote(ctx, &vote); err != nil {
		s.logError(opMarkFinished, "vote_insert_failed", err, zap.String("fingerprint", fingerprint))
		return FinishResult{}, apperr.Internal("database_error", err)
	}

	if previous < 1 {
		return FinishResult{Finished: false, Votes: int(previous) + 1, Message: messageFirstOutageVote}, nil
	}

	// Deactivates working votes too; the next tally starts empty.
	if _, err := s.store.DeactivateAllVotes(ctx); err != nil {
		s.logError(opMarkFinished, "vote_reset_failed", err)
		return FinishResult{}, apperr.Internal("database_error", err)
	}

	if s.dayResetter != nil {
		if err := s.dayResetter.ClearDay(ctx); err != nil {
			s.logError(opMarkFinished, "ratings_clear_failed", err)
		}
	}

	if err := s.store.SaveState(ctx, State{ID: StateRowID, LastUpdated: now}); err != nil {
		s.logError(opMarkFinished, "state_update_failed", err)
		return FinishResult{}, apperr.Internal("database_error", err)
	}

	s.logger.Info("tortilla marked as finished", zap.String("fingerprint", fingerprint))
	return FinishResult{Finished: true, Message: messageFinished}, nil
}

// ResetOnActivity removes the caller's active outage votes and recomputes the state.
func (s *Service) ResetOnActivity(ctx context.Context, fingerprint string) (string, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return "", apperr.Validation("fingerprint_required")
	}
	deleted, err := s.store.DeleteActiveOutageVotesBy(ctx, fingerprint)
	if err != nil {
		s.logError(opResetOnActivity, "vote_delete_failed", err, zap.String("fingerprint", fingerprint))
		return "", apperr.Internal("database_error", err)
	}
	if deleted == 0 {
		return messageVotesReset, nil
	}

	now := s.clock().UTC()
	tally, err := s.store.TallySince(ctx, now.Add(-TallyWindow))
	if err != nil {
		s.logError(opResetOnActivity, "tally_query_failed", err)
		return "", apperr.Internal("database_error", err)
	}
	if err := s.store.SaveState(ctx, StateFromTally(tally, now)); err != nil {
		s.logError(opResetOnActivity, "state_update_failed", err)
		return "", apperr.Internal("database_error", err)
	}
	return messageVotesReset, nil
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
	s.logger.Error("availability service error", attrs...)
}
