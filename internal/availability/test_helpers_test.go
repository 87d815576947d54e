package availability

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tortilla/internal/apperr"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type recordingResetter struct {
	calls int
	err   error
}

func (r *recordingResetter) ClearDay(context.Context) error {
	r.calls++
	return r.err
}

func openTestDatabase(t *testing.T) *gorm.DB {
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
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, clock *testClock, resetter DayResetter) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	service, err := NewService(ServiceConfig{
		Database:    db,
		Clock:       clock.Now,
		DayResetter: resetter,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, db
}

func mustVote(t *testing.T, service *Service, fingerprint string, voteType VoteType) Tally {
	t.Helper()
	tally, err := service.CastVote(context.Background(), VoteRequest{
		Fingerprint: fingerprint,
		VoteType:    string(voteType),
		IPAddress:   "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("vote by %s failed: %v", fingerprint, err)
	}
	return tally
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", code)
	}
	if got := apperr.CodeOf(err, ""); got != code {
		t.Fatalf("expected error %q, got %q (%v)", code, got, err)
	}
}
