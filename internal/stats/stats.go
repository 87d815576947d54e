// Package stats aggregates the read-only reports shown on the status and history pages.
package stats

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/MarcoPoloResearchLab/tortilla/internal/apperr"
	"github.com/MarcoPoloResearchLab/tortilla/internal/availability"
	"github.com/MarcoPoloResearchLab/tortilla/internal/batches"
	"github.com/MarcoPoloResearchLab/tortilla/internal/calendar"
	"github.com/MarcoPoloResearchLab/tortilla/internal/ratings"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	TopCommentsWindow = 7 * 24 * time.Hour
	TopCommentsLimit  = 10
	HistoryWindowDays = 30
	HistoryLimit      = 10
)

const (
	opToday       = "stats.today"
	opTopComments = "stats.top_comments"
	opHistory     = "stats.daily_history"
)

var errMissingDatabase = errors.New("database handle is required")

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Location *time.Location
	Logger   *zap.Logger
}

type Service struct {
	db       *gorm.DB
	votes    *availability.Store
	clock    func() time.Time
	location *time.Location
	logger   *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       cfg.Database,
		votes:    availability.NewStore(cfg.Database),
		clock:    clock,
		location: location,
		logger:   logger,
	}, nil
}

type BatchSummary struct {
	Active    int
	Completed int
	Total     int
}

// RatingSummary holds today's averages. Averages are nil when nobody has rated yet.
type RatingSummary struct {
	Count       int64
	Average     *float64
	Sabor       *float64
	Jugosidad   *float64
	Cuajada     *float64
	Temperatura *float64
}

type TodayStatus struct {
	Day           string
	Batches       BatchSummary
	Votes         availability.Tally
	Ratings       RatingSummary
	RecentBatches []batches.Batch
}

// Today summarises the current local day. Vote counts are the raw active tallies of the
// trailing window, not the clamped values stored on the state row.
func (s *Service) Today(ctx context.Context) (TodayStatus, error) {
	now := s.clock().UTC()
	dayStart, dayEnd := calendar.DayRange(now, s.location)
	status := TodayStatus{Day: calendar.DayKey(now, s.location), RecentBatches: []batches.Batch{}}

	if err := s.db.WithContext(ctx).
		Where("started_at >= ? AND started_at < ?", dayStart, dayEnd).
		Order("started_at DESC").
		Find(&status.RecentBatches).Error; err != nil {
		s.logError(opToday, "batches_query_failed", err)
		return TodayStatus{}, apperr.Internal("database_error", err)
	}
	for _, batch := range status.RecentBatches {
		switch batch.Status {
		case batches.StatusActive:
			status.Batches.Active++
		case batches.StatusCompleted:
			status.Batches.Completed++
		}
	}
	status.Batches.Total = len(status.RecentBatches)

	tally, err := s.votes.TallySince(ctx, now.Add(-availability.TallyWindow))
	if err != nil {
		s.logError(opToday, "votes_query_failed", err)
		return TodayStatus{}, apperr.Internal("database_error", err)
	}
	status.Votes = tally

	var summary struct {
		Total       int64
		Average     *float64
		Sabor       *float64
		Jugosidad   *float64
		Cuajada     *float64
		Temperatura *float64
	}
	if err := s.db.WithContext(ctx).Model(&ratings.Rating{}).
		Select("COUNT(*) AS total, " +
			"AVG((sabor + jugosidad + cuajada + temperatura) / 4.0) AS average, " +
			"AVG(sabor * 1.0) AS sabor, AVG(jugosidad * 1.0) AS jugosidad, " +
			"AVG(cuajada * 1.0) AS cuajada, AVG(temperatura * 1.0) AS temperatura").
		Where("created_at >= ? AND created_at < ?", dayStart, dayEnd).
		Scan(&summary).Error; err != nil {
		s.logError(opToday, "ratings_query_failed", err)
		return TodayStatus{}, apperr.Internal("database_error", err)
	}
	status.Ratings = RatingSummary{
		Count:       summary.Total,
		Average:     summary.Average,
		Sabor:       summary.Sabor,
		Jugosidad:   summary.Jugosidad,
		Cuajada:     summary.Cuajada,
		Temperatura: summary.Temperatura,
	}
	if summary.Total == 0 {
		status.Ratings = RatingSummary{}
	}
	return status, nil
}

type TopComment struct {
	ID        string
	Comment   string
	CreatedAt time.Time
	Average   int
	Reactions int64
}

type commentRow struct {
	ID           string
	Comment      string
	CreatedAt    time.Time
	ScoreOverall int
}

type reactionTotal struct {
	RatingID string
	Total    int64
}

// TopComments ranks the last week's comments, live and archived, by reaction count.
func (s *Service) TopComments(ctx context.Context) ([]TopComment, error) {
	since := s.clock().UTC().Add(-TopCommentsWindow)

	var live, archived []commentRow
	if err := s.commentsSince(ctx, &ratings.Rating{}, since, &live); err != nil {
		s.logError(opTopComments, "live_comments_query_failed", err)
		return nil, apperr.Internal("internal_server_error", err)
	}
	if err := s.commentsSince(ctx, &ratings.ArchivedRating{}, since, &archived); err != nil {
		s.logError(opTopComments, "archived_comments_query_failed", err)
		return nil, apperr.Internal("internal_server_error", err)
	}

	counts := make(map[string]int64, len(live)+len(archived))
	if err := s.addReactionTotals(ctx, &ratings.CommentReaction{}, idsOf(live), counts); err != nil {
		s.logError(opTopComments, "live_reactions_query_failed", err)
		return nil, apperr.Internal("internal_server_error", err)
	}
	if err := s.addReactionTotals(ctx, &ratings.ArchivedCommentReaction{}, idsOf(archived), counts); err != nil {
		s.logError(opTopComments, "archived_reactions_query_failed", err)
		return nil, apperr.Internal("internal_server_error", err)
	}

	top := make([]TopComment, 0, len(live)+len(archived))
	for _, row := range append(live, archived...) {
		top = append(top, TopComment{
			ID:        row.ID,
			Comment:   row.Comment,
			CreatedAt: row.CreatedAt,
			Average:   row.ScoreOverall,
			Reactions: counts[row.ID],
		})
	}
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].Reactions != top[j].Reactions {
			return top[i].Reactions > top[j].Reactions
		}
		return top[i].CreatedAt.After(top[j].CreatedAt)
	})
	if len(top) > TopCommentsLimit {
		top = top[:TopCommentsLimit]
	}
	return top, nil
}

func (s *Service) commentsSince(ctx context.Context, model any, since time.Time, dest *[]commentRow) error {
	return s.db.WithContext(ctx).Model(model).
		Select("id, comment, created_at, score_overall").
		Where("comment IS NOT NULL AND comment <> ''").
		Where("created_at >= ?", since).
		Scan(dest).Error
}

func (s *Service) addReactionTotals(ctx context.Context, model any, ratingIDs []string, counts map[string]int64) error {
	if len(ratingIDs) == 0 {
		return nil
	}
	var totals []reactionTotal
	if err := s.db.WithContext(ctx).Model(model).
		Select("rating_id, COUNT(*) AS total").
		Where("rating_id IN ?", ratingIDs).
		Group("rating_id").
		Scan(&totals).Error; err != nil {
		return err
	}
	for _, total := range totals {
		counts[total.RatingID] += total.Total
	}
	return nil
}

func idsOf(rows []commentRow) []string {
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		values = append(values, row.ID)
	}
	return values
}

type DailyAverage struct {
	Day     string
	Average float64
	Count   int
}

type scoreRow struct {
	CreatedAt    time.Time
	ScoreOverall int
}

// DailyHistory averages overall scores per local day across live and archived ratings
// of the last HistoryWindowDays days, newest day first.
func (s *Service) DailyHistory(ctx context.Context) ([]DailyAverage, error) {
	now := s.clock().UTC()
	windowStart := calendar.StartOfDay(now.AddDate(0, 0, -HistoryWindowDays), s.location)

	var rows []scoreRow
	for _, model := range []any{&ratings.Rating{}, &ratings.ArchivedRating{}} {
		var batch []scoreRow
		if err := s.db.WithContext(ctx).Model(model).
			Select("created_at, score_overall").
			Where("created_at >= ?", windowStart).
			Scan(&batch).Error; err != nil {
			s.logError(opHistory, "ratings_query_failed", err)
			return nil, apperr.Internal("internal_server_error", err)
		}
		rows = append(rows, batch...)
	}

	type accumulator struct {
		sum   int
		count int
	}
	byDay := make(map[string]*accumulator)
	for _, row := range rows {
		key := calendar.DayKey(row.CreatedAt, s.location)
		entry, ok := byDay[key]
		if !ok {
			entry = &accumulator{}
			byDay[key] = entry
		}
		entry.sum += row.ScoreOverall
		entry.count++
	}

	history := make([]DailyAverage, 0, len(byDay))
	for day, entry := range byDay {
		history = append(history, DailyAverage{
			Day:     day,
			Average: float64(entry.sum) / float64(entry.count),
			Count:   entry.count,
		})
	}
	sort.Slice(history, func(i, j int) bool {
		return history[i].Day > history[j].Day
	})
	if len(history) > HistoryLimit {
		history = history[:HistoryLimit]
	}
	return history, nil
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
	s.logger.Error("stats service error", attrs...)
}
