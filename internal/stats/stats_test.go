package stats

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tortilla/internal/availability"
	"github.com/MarcoPoloResearchLab/tortilla/internal/batches"
	"github.com/MarcoPoloResearchLab/tortilla/internal/ratings"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var referenceNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	models := append(availability.Models(), ratings.Models()...)
	models = append(models, batches.Models()...)
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    func() time.Time { return referenceNow },
		Location: time.UTC,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, db
}

func insertRating(t *testing.T, db *gorm.DB, createdAt time.Time, scores [4]int, comment string) ratings.Rating {
	t.Helper()
	rating := ratings.Rating{
		ID:                uuid.NewString(),
		ClientFingerprint: uuid.NewString(),
		IPHash:            "hash",
		Sabor:             scores[0],
		Jugosidad:         scores[1],
		Cuajada:           scores[2],
		Temperatura:       scores[3],
		ScoreOverall:      ratings.OverallScore(scores[0], scores[1], scores[2], scores[3]),
		CreatedAt:         createdAt.UTC(),
	}
	if comment != "" {
		rating.Comment = &comment
	}
	if err := db.Create(&rating).Error; err != nil {
		t.Fatalf("failed to insert rating: %v", err)
	}
	return rating
}

func insertArchived(t *testing.T, db *gorm.DB, createdAt time.Time, score int, comment string) ratings.ArchivedRating {
	t.Helper()
	archived := ratings.ArchivedRating{
		ID:                uuid.NewString(),
		ClientFingerprint: uuid.NewString(),
		IPHash:            "hash",
		Sabor:             score,
		Jugosidad:         score,
		Cuajada:           score,
		Temperatura:       score,
		ScoreOverall:      score,
		CreatedAt:         createdAt.UTC(),
		ArchivedAt:        createdAt.Add(time.Hour).UTC(),
	}
	if comment != "" {
		archived.Comment = &comment
	}
	if err := db.Create(&archived).Error; err != nil {
		t.Fatalf("failed to insert archived rating: %v", err)
	}
	return archived
}

func insertReactions(t *testing.T, db *gorm.DB, model string, ratingID string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		fingerprint := fmt.Sprintf("fp-%d", i)
		var err error
		switch model {
		case "live":
			err = db.Create(&ratings.CommentReaction{RatingID: ratingID, ClientFingerprint: fingerprint, Reaction: ratings.ReactionFire, IPHash: "h", CreatedAt: referenceNow}).Error
		default:
			err = db.Create(&ratings.ArchivedCommentReaction{RatingID: ratingID, ClientFingerprint: fingerprint, Reaction: ratings.ReactionGoat, IPHash: "h", CreatedAt: referenceNow}).Error
		}
		if err != nil {
			t.Fatalf("failed to insert reaction: %v", err)
		}
	}
}

func TestTodayWithoutRatingsReportsNullAverages(t *testing.T) {
	service, _ := newTestService(t)

	status, err := service.Today(context.Background())
	if err != nil {
		t.Fatalf("today failed: %v", err)
	}
	if status.Day != "2025-03-10" {
		t.Fatalf("unexpected day %q", status.Day)
	}
	if status.Ratings.Count != 0 || status.Ratings.Average != nil || status.Ratings.Sabor != nil {
		t.Fatalf("expected empty rating summary, got %+v", status.Ratings)
	}
	if status.Batches.Total != 0 || len(status.RecentBatches) != 0 {
		t.Fatalf("expected no batches, got %+v", status.Batches)
	}
}

func TestTodayAggregatesRatingsVotesAndBatches(t *testing.T) {
	service, db := newTestService(t)

	insertRating(t, db, referenceNow.Add(-time.Hour), [4]int{8, 7, 6, 9}, "")
	insertRating(t, db, referenceNow.Add(-2*time.Hour), [4]int{6, 5, 8, 5}, "bien")
	insertRating(t, db, referenceNow.Add(-24*time.Hour), [4]int{1, 1, 5, 1}, "")

	votes := []availability.OutageVote{
		{Fingerprint: "a", IPAddress: "ip", VoteType: availability.VoteWorking, IsActive: true, CreatedAt: referenceNow.Add(-5 * time.Minute)},
		{Fingerprint: "b", IPAddress: "ip", VoteType: availability.VoteWorking, IsActive: true, CreatedAt: referenceNow.Add(-10 * time.Minute)},
		{Fingerprint: "c", IPAddress: "ip", VoteType: availability.VoteOutage, IsActive: true, CreatedAt: referenceNow.Add(-20 * time.Minute)},
		{Fingerprint: "d", IPAddress: "ip", VoteType: availability.VoteOutage, IsActive: false, CreatedAt: referenceNow.Add(-20 * time.Minute)},
		{Fingerprint: "e", IPAddress: "ip", VoteType: availability.VoteOutage, IsActive: true, CreatedAt: referenceNow.Add(-40 * time.Minute)},
	}
	if err := db.Create(&votes).Error; err != nil {
		t.Fatalf("failed to insert votes: %v", err)
	}

	pending := referenceNow.Add(time.Minute)
	batchRows := []batches.Batch{
		{ID: uuid.NewString(), Status: batches.StatusActive, StartedAt: referenceNow.Add(-time.Hour), CreatedByFingerprint: "a", ConfirmationsNeeded: 2, ConfirmedCount: 1, PendingUntil: &pending},
		{ID: uuid.NewString(), Status: batches.StatusCompleted, StartedAt: referenceNow.Add(-3 * time.Hour), CreatedByFingerprint: "b"},
		{ID: uuid.NewString(), Status: batches.StatusActive, StartedAt: referenceNow.Add(-30 * time.Hour), CreatedByFingerprint: "c"},
	}
	if err := db.Create(&batchRows).Error; err != nil {
		t.Fatalf("failed to insert batches: %v", err)
	}

	status, err := service.Today(context.Background())
	if err != nil {
		t.Fatalf("today failed: %v", err)
	}

	if status.Ratings.Count != 2 {
		t.Fatalf("expected two ratings today, got %d", status.Ratings.Count)
	}
	assertFloat(t, "average", status.Ratings.Average, 6.75)
	assertFloat(t, "sabor", status.Ratings.Sabor, 7)
	assertFloat(t, "jugosidad", status.Ratings.Jugosidad, 6)
	assertFloat(t, "cuajada", status.Ratings.Cuajada, 7)
	assertFloat(t, "temperatura", status.Ratings.Temperatura, 7)

	if status.Votes.Working != 2 || status.Votes.Outage != 1 || status.Votes.Total() != 3 {
		t.Fatalf("unexpected vote tally %+v", status.Votes)
	}
	if status.Batches.Active != 1 || status.Batches.Completed != 1 || status.Batches.Total != 2 {
		t.Fatalf("unexpected batch summary %+v", status.Batches)
	}
	if status.RecentBatches[0].ID != batchRows[0].ID {
		t.Fatalf("expected newest batch first")
	}
}

func assertFloat(t *testing.T, label string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("expected %s average %v, got nil", label, want)
	}
	if diff := *got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected %s average %v, got %v", label, want, *got)
	}
}

func TestTopCommentsRanksLiveAndArchivedByReactions(t *testing.T) {
	service, db := newTestService(t)

	quiet := insertRating(t, db, referenceNow.Add(-time.Hour), [4]int{8, 8, 8, 8}, "sin reacciones")
	popular := insertRating(t, db, referenceNow.Add(-2*time.Hour), [4]int{9, 9, 9, 9}, "la mejor")
	archived := insertArchived(t, db, referenceNow.Add(-48*time.Hour), 6, "de ayer")
	insertRating(t, db, referenceNow.Add(-3*time.Hour), [4]int{7, 7, 7, 7}, "")
	stale := insertArchived(t, db, referenceNow.Add(-8*24*time.Hour), 5, "muy vieja")

	insertReactions(t, db, "live", popular.ID, 3)
	insertReactions(t, db, "archived", archived.ID, 2)
	insertReactions(t, db, "archived", stale.ID, 9)

	top, err := service.TopComments(context.Background())
	if err != nil {
		t.Fatalf("top comments failed: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected three comments in the window, got %d", len(top))
	}
	if top[0].ID != popular.ID || top[0].Reactions != 3 || top[0].Average != 9 {
		t.Fatalf("unexpected first entry %+v", top[0])
	}
	if top[1].ID != archived.ID || top[1].Reactions != 2 {
		t.Fatalf("unexpected second entry %+v", top[1])
	}
	if top[2].ID != quiet.ID || top[2].Reactions != 0 {
		t.Fatalf("unexpected third entry %+v", top[2])
	}
}

func TestDailyHistoryGroupsByDay(t *testing.T) {
	service, db := newTestService(t)

	insertRating(t, db, referenceNow.Add(-time.Hour), [4]int{8, 8, 8, 8}, "")
	insertRating(t, db, referenceNow.Add(-2*time.Hour), [4]int{6, 6, 6, 6}, "")
	insertArchived(t, db, referenceNow.Add(-24*time.Hour), 5, "")
	insertArchived(t, db, referenceNow.Add(-40*24*time.Hour), 9, "")

	history, err := service.DailyHistory(context.Background())
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected two days of history, got %+v", history)
	}
	if history[0].Day != "2025-03-10" || history[0].Count != 2 || history[0].Average != 7 {
		t.Fatalf("unexpected first day %+v", history[0])
	}
	if history[1].Day != "2025-03-09" || history[1].Count != 1 || history[1].Average != 5 {
		t.Fatalf("unexpected second day %+v", history[1])
	}
}

func TestDailyHistoryKeepsTenMostRecentDays(t *testing.T) {
	service, db := newTestService(t)
	for day := 0; day < 14; day++ {
		insertArchived(t, db, referenceNow.AddDate(0, 0, -day), 7, "")
	}

	history, err := service.DailyHistory(context.Background())
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != HistoryLimit {
		t.Fatalf("expected %d days, got %d", HistoryLimit, len(history))
	}
	if history[0].Day != "2025-03-10" || history[HistoryLimit-1].Day != "2025-03-01" {
		t.Fatalf("unexpected range %s..%s", history[0].Day, history[HistoryLimit-1].Day)
	}
}
