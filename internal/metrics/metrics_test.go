package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsRequestsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := NewRecorder()

	router := gin.New()
	router.Use(recorder.Middleware())
	router.GET("/ratings/comments", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		response := httptest.NewRecorder()
		router.ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/ratings/comments?fingerprint=x", http.NoBody))
	}
	response := httptest.NewRecorder()
	router.ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/nowhere", http.NoBody))

	if got := testutil.ToFloat64(recorder.requestsTotal.WithLabelValues(http.MethodGet, "/ratings/comments", "200")); got != 2 {
		t.Fatalf("expected two counted requests, got %v", got)
	}
	if got := testutil.ToFloat64(recorder.requestsTotal.WithLabelValues(http.MethodGet, "unknown", "404")); got != 1 {
		t.Fatalf("expected unmatched route to be labelled unknown, got %v", got)
	}
}

func TestHandlerExposesDomainCounters(t *testing.T) {
	recorder := NewRecorder()
	recorder.ObserveVote("working", OutcomeOK)
	recorder.ObserveVote("bogus", "invalid_vote_type")
	recorder.ObserveRating("already_rated_today")
	recorder.SetAvailable(true)

	server := httptest.NewServer(recorder.Handler())
	defer server.Close()

	response, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	for _, want := range []string{
		`tortilla_outage_votes_total{outcome="ok",vote_type="working"} 1`,
		`tortilla_outage_votes_total{outcome="invalid_vote_type",vote_type="invalid"} 1`,
		`tortilla_ratings_total{outcome="already_rated_today"} 1`,
		`tortilla_available 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected exposition to contain %q", want)
		}
	}
}
