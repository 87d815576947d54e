package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/tortilla/internal/batches"
	"github.com/gin-gonic/gin"
)

type batchSummaryPayload struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type ratingSummaryPayload struct {
	Count       int64    `json:"count"`
	Average     *float64 `json:"average"`
	Sabor       *float64 `json:"sabor"`
	Jugosidad   *float64 `json:"jugosidad"`
	Cuajada     *float64 `json:"cuajada"`
	Temperatura *float64 `json:"temperatura"`
}

type batchPayload struct {
	ID                  string     `json:"id"`
	Status              string     `json:"status"`
	StartedAt           time.Time  `json:"startedAt"`
	CreatedBy           string     `json:"createdBy"`
	ConfirmationsNeeded int        `json:"confirmationsNeeded"`
	ConfirmedCount      int        `json:"confirmedCount"`
	PendingUntil        *time.Time `json:"pendingUntil"`
}

type todayStatusPayload struct {
	Today         string               `json:"today"`
	Batches       batchSummaryPayload  `json:"batches"`
	OutageVotes   voteCountsPayload    `json:"outageVotes"`
	Ratings       ratingSummaryPayload `json:"ratings"`
	RecentBatches []batchPayload       `json:"recentBatches"`
}

func newBatchPayload(batch batches.Batch) batchPayload {
	return batchPayload{
		ID:                  batch.ID,
		Status:              string(batch.Status),
		StartedAt:           batch.StartedAt,
		CreatedBy:           batch.CreatedByFingerprint,
		ConfirmationsNeeded: batch.ConfirmationsNeeded,
		ConfirmedCount:      batch.ConfirmedCount,
		PendingUntil:        batch.PendingUntil,
	}
}

func (h *httpHandler) handleTodayStatus(c *gin.Context) {
	noStore(c)
	status, err := h.stats.Today(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	recent := make([]batchPayload, 0, len(status.RecentBatches))
	for _, batch := range status.RecentBatches {
		recent = append(recent, newBatchPayload(batch))
	}
	c.JSON(http.StatusOK, todayStatusPayload{
		Today: status.Day,
		Batches: batchSummaryPayload{
			Active:    status.Batches.Active,
			Completed: status.Batches.Completed,
			Total:     status.Batches.Total,
		},
		OutageVotes: newVoteCounts(status.Votes),
		Ratings: ratingSummaryPayload{
			Count:       status.Ratings.Count,
			Average:     status.Ratings.Average,
			Sabor:       status.Ratings.Sabor,
			Jugosidad:   status.Ratings.Jugosidad,
			Cuajada:     status.Ratings.Cuajada,
			Temperatura: status.Ratings.Temperatura,
		},
		RecentBatches: recent,
	})
}

type topCommentPayload struct {
	ID        string    `json:"id"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
	Average   int       `json:"average"`
	Reactions int64     `json:"reactions"`
}

func (h *httpHandler) handleTopComments(c *gin.Context) {
	noStore(c)
	top, err := h.stats.TopComments(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]topCommentPayload, 0, len(top))
	for _, entry := range top {
		payload = append(payload, topCommentPayload{
			ID:        entry.ID,
			Comment:   entry.Comment,
			CreatedAt: entry.CreatedAt,
			Average:   entry.Average,
			Reactions: entry.Reactions,
		})
	}
	c.JSON(http.StatusOK, gin.H{"top": payload})
}

type dailyAveragePayload struct {
	Date    string  `json:"date"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

func (h *httpHandler) handleDailyHistory(c *gin.Context) {
	noStore(c)
	history, err := h.stats.DailyHistory(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]dailyAveragePayload, 0, len(history))
	for _, day := range history {
		payload = append(payload, dailyAveragePayload{Date: day.Day, Average: day.Average, Count: day.Count})
	}
	c.JSON(http.StatusOK, gin.H{"history": payload})
}

type confirmBatchPayload struct {
	BatchID     string `json:"batchId"`
	Fingerprint string `json:"fingerprint"`
}

func (h *httpHandler) handleCreateBatch(c *gin.Context) {
	var request fingerprintPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": codeInvalidRequest})
		return
	}
	batch, err := h.batches.Create(c.Request.Context(), request.Fingerprint)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batchId": batch.ID})
}

func (h *httpHandler) handleConfirmBatch(c *gin.Context) {
	var request confirmBatchPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": codeInvalidRequest})
		return
	}
	result, err := h.batches.Confirm(c.Request.Context(), request.BatchID, request.Fingerprint)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmed": result.Confirmed, "votes": result.Votes})
}
