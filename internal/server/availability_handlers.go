package server

import (
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/tortilla/internal/availability"
	"github.com/gin-gonic/gin"
)

type voteRequestPayload struct {
	Fingerprint string `json:"fingerprint"`
	VoteType    string `json:"voteType"`
}

type voteCountsPayload struct {
	Outage  int `json:"outage"`
	Working int `json:"working"`
	Total   int `json:"total"`
}

func newVoteCounts(tally availability.Tally) voteCountsPayload {
	return voteCountsPayload{Outage: tally.Outage, Working: tally.Working, Total: tally.Total()}
}

func (h *httpHandler) handleOutageVote(c *gin.Context) {
	var request voteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.metrics.ObserveVote("", codeInvalidRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": codeInvalidRequest})
		return
	}

	tally, err := h.availability.CastVote(c.Request.Context(), availability.VoteRequest{
		Fingerprint: request.Fingerprint,
		VoteType:    request.VoteType,
		IPAddress:   clientIP(c),
	})
	h.metrics.ObserveVote(request.VoteType, outcomeOf(err))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.SetAvailable(availability.Decide(tally.Working, tally.Outage))

	c.JSON(http.StatusOK, gin.H{"success": true, "votes": newVoteCounts(tally)})
}

type fingerprintPayload struct {
	Fingerprint string `json:"fingerprint"`
}

func (h *httpHandler) handleResetOnActivity(c *gin.Context) {
	var request fingerprintPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": codeInvalidRequest})
		return
	}
	message, err := h.availability.ResetOnActivity(c.Request.Context(), request.Fingerprint)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if state, err := h.availability.State(c.Request.Context()); err == nil {
		h.metrics.SetAvailable(state.IsAvailable)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": message})
}

type availabilityResponsePayload struct {
	IsAvailable      bool      `json:"isAvailable"`
	AvailableVotes   int       `json:"availableVotes"`
	UnavailableVotes int       `json:"unavailableVotes"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

func (h *httpHandler) handleGetAvailability(c *gin.Context) {
	noStore(c)
	state, err := h.availability.State(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, availabilityResponsePayload{
		IsAvailable:      state.IsAvailable,
		AvailableVotes:   state.AvailableVotes,
		UnavailableVotes: state.UnavailableVotes,
		LastUpdated:      state.LastUpdated,
	})
}

type setAvailabilityPayload struct {
	AvailableVotes   int `json:"availableVotes"`
	UnavailableVotes int `json:"unavailableVotes"`
}

func (h *httpHandler) handleSetAvailability(c *gin.Context) {
	var request setAvailabilityPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": codeInvalidRequest})
		return
	}
	state, err := h.availability.SetFromTallies(c.Request.Context(), request.AvailableVotes, request.UnavailableVotes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.SetAvailable(state.IsAvailable)
	c.JSON(http.StatusOK, gin.H{
		"isAvailable":      state.IsAvailable,
		"availableVotes":   state.AvailableVotes,
		"unavailableVotes": state.UnavailableVotes,
	})
}

func (h *httpHandler) handleAvailabilityEnd(c *gin.Context) {
	var request fingerprintPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": codeInvalidRequest})
		return
	}
	result, err := h.availability.MarkFinished(c.Request.Context(), request.Fingerprint, clientIP(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if result.Finished {
		h.metrics.SetAvailable(false)
		c.JSON(http.StatusOK, gin.H{"success": true, "finished": true, "message": result.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"finished": false,
		"votes":    result.Votes,
		"message":  result.Message,
	})
}
