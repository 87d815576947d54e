package availability

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps the outage_votes and availability_state tables.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// State returns the singleton row, or an unavailable zero state when it has not been written yet.
func (s *Store) State(ctx context.Context) (State, error) {
	var state State
	err := s.db.WithContext(ctx).Where("id = ?", StateRowID).Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return State{ID: StateRowID}, nil
	}
	if err != nil {
		return State{}, err
	}
	return state, nil
}

func (s *Store) SaveState(ctx context.Context, state State) error {
	state.ID = StateRowID
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&state).Error
}

func (s *Store) IsAvailable(ctx context.Context) (bool, error) {
	state, err := s.State(ctx)
	if err != nil {
		return false, err
	}
	return state.IsAvailable, nil
}

func (s *Store) InsertVote(ctx context.Context, vote *OutageVote) error {
	return s.db.WithContext(ctx).Create(vote).Error
}

// HasVotedSince reports whether fingerprint cast any vote after since, active or not.
func (s *Store) HasVotedSince(ctx context.Context, fingerprint string, since time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&OutageVote{}).
		Where("fingerprint = ? AND created_at > ?", fingerprint, since.UTC()).
		Count(&count).Error
	return count > 0, err
}

// LatestActiveOutage returns the newest active outage vote after since.
func (s *Store) LatestActiveOutage(ctx context.Context, since time.Time) (OutageVote, bool, error) {
	var vote OutageVote
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND vote_type = ? AND created_at > ?", true, VoteOutage, since.UTC()).
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Take(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OutageVote{}, false, nil
	}
	if err != nil {
		return OutageVote{}, false, err
	}
	return vote, true, nil
}

func (s *Store) CountActiveOutages(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&OutageVote{}).
		Where("is_active = ? AND vote_type = ? AND created_at > ?", true, VoteOutage, since.UTC()).
		Count(&count).Error
	return count, err
}

// ExpireVotes deactivates active votes created before cutoff.
func (s *Store) ExpireVotes(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&OutageVote{}).
		Where("is_active = ? AND created_at < ?", true, cutoff.UTC()).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

// DeactivateOutageVotes flips every active outage vote to inactive.
func (s *Store) DeactivateOutageVotes(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&OutageVote{}).
		Where("is_active = ? AND vote_type = ?", true, VoteOutage).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

func (s *Store) DeactivateAllVotes(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&OutageVote{}).
		Where("is_active = ?", true).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

func (s *Store) DeleteActiveOutageVotesBy(ctx context.Context, fingerprint string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("fingerprint = ? AND vote_type = ? AND is_active = ?", fingerprint, VoteOutage, true).
		Delete(&OutageVote{})
	return result.RowsAffected, result.Error
}

// TallySince counts active votes per kind created after since with one aggregate query.
func (s *Store) TallySince(ctx context.Context, since time.Time) (Tally, error) {
	var rows []struct {
		VoteType VoteType
		Total    int64
	}
	err := s.db.WithContext(ctx).Model(&OutageVote{}).
		Select("vote_type, COUNT(*) AS total").
		Where("is_active = ? AND created_at > ?", true, since.UTC()).
		Group("vote_type").
		Scan(&rows).Error
	if err != nil {
		return Tally{}, err
	}

	var tally Tally
	for _, row := range rows {
		switch row.VoteType {
		case VoteOutage:
			tally.Outage = int(row.Total)
		case VoteWorking:
			tally.Working = int(row.Total)
		}
	}
	return tally, nil
}
