package ratings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tortilla/internal/apperr"
	"github.com/MarcoPoloResearchLab/tortilla/internal/storage"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type fakeGate struct {
	available     bool
	err           error
	deactivations int
}

func (g *fakeGate) IsAvailable(context.Context) (bool, error) {
	return g.available, g.err
}

func (g *fakeGate) DeactivateOutageVotes(context.Context) (int64, error) {
	g.deactivations++
	return 1, nil
}

type fakeBlobStore struct {
	objects map[string][]byte
	err     error
}

func (s *fakeBlobStore) Put(_ context.Context, object storage.Object) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(object.Body)
	if err != nil {
		return "", err
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[object.Key] = data
	return "https://cdn.example.com/" + object.Key, nil
}

var errUploadRefused = errors.New("bucket refused upload")

type serviceFixture struct {
	service *Service
	db      *gorm.DB
	clock   *testClock
	gate    *fakeGate
	blobs   *fakeBlobStore
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

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()
	fixture := &serviceFixture{
		db:    openTestDatabase(t),
		clock: newTestClock(),
		gate:  &fakeGate{available: true},
		blobs: &fakeBlobStore{},
	}
	service, err := NewService(ServiceConfig{
		Database:     fixture.db,
		Clock:        fixture.clock.Now,
		Location:     time.UTC,
		Availability: fixture.gate,
		Images:       fixture.blobs,
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	fixture.service = service
	return fixture
}

func validSubmission(fingerprint string) Submission {
	return Submission{
		Fingerprint: fingerprint,
		Sabor:       8,
		Jugosidad:   7,
		Cuajada:     6,
		Temperatura: 9,
		IPAddress:   "203.0.113.7",
	}
}

func mustSubmit(t *testing.T, fixture *serviceFixture, submission Submission) Rating {
	t.Helper()
	rating, err := fixture.service.Submit(context.Background(), submission)
	if err != nil {
		t.Fatalf("submit for %s failed: %v", submission.Fingerprint, err)
	}
	return rating
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

func encodePNG(t *testing.T) []byte {
	t.Helper()
	picture := image.NewRGBA(image.Rect(0, 0, 2, 2))
	picture.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, picture); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buffer.Bytes()
}
