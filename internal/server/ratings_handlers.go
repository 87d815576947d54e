package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tortilla/internal/ratings"
	"github.com/gin-gonic/gin"
)

const imageFormField = "image"

// scoreValue accepts a JSON number or a numeric string. Anything else decodes as zero.
type scoreValue float64

var _ json.Unmarshaler = (*scoreValue)(nil)

func (v *scoreValue) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	*v = scoreValue(parseScore(raw))
	return nil
}

func parseScore(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return value
}

type ratingRequestPayload struct {
	Fingerprint string     `json:"fingerprint"`
	Sabor       scoreValue `json:"sabor"`
	Jugosidad   scoreValue `json:"jugosidad"`
	Cuajada     scoreValue `json:"cuajada"`
	Temperatura scoreValue `json:"temperatura"`
	Comment     string     `json:"comment"`
}

func (h *httpHandler) handleSubmitRating(c *gin.Context) {
	submission, err := readSubmission(c)
	if err != nil {
		h.metrics.ObserveRating(codeInvalidRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": codeInvalidRequest})
		return
	}
	submission.IPAddress = clientIP(c)

	_, err = h.ratings.Submit(c.Request.Context(), submission)
	h.metrics.ObserveRating(outcomeOf(err))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func readSubmission(c *gin.Context) (ratings.Submission, error) {
	if strings.HasPrefix(c.ContentType(), gin.MIMEMultipartPOSTForm) {
		return readMultipartSubmission(c)
	}
	var request ratingRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		return ratings.Submission{}, err
	}
	return ratings.Submission{
		Fingerprint: request.Fingerprint,
		Sabor:       float64(request.Sabor),
		Jugosidad:   float64(request.Jugosidad),
		Cuajada:     float64(request.Cuajada),
		Temperatura: float64(request.Temperatura),
		Comment:     request.Comment,
	}, nil
}

func readMultipartSubmission(c *gin.Context) (ratings.Submission, error) {
	submission := ratings.Submission{
		Fingerprint: c.PostForm("fingerprint"),
		Sabor:       parseScore(c.PostForm("sabor")),
		Jugosidad:   parseScore(c.PostForm("jugosidad")),
		Cuajada:     parseScore(c.PostForm("cuajada")),
		Temperatura: parseScore(c.PostForm("temperatura")),
		Comment:     c.PostForm("comment"),
	}

	header, err := c.FormFile(imageFormField)
	if errors.Is(err, http.ErrMissingFile) {
		return submission, nil
	}
	if err != nil {
		return ratings.Submission{}, err
	}
	file, err := header.Open()
	if err != nil {
		return ratings.Submission{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, ratings.MaxImageBytes+1))
	if err != nil {
		return ratings.Submission{}, err
	}
	submission.Image = &ratings.ImageUpload{
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        data,
	}
	return submission, nil
}

type scoresPayload struct {
	Sabor       int `json:"sabor"`
	Jugosidad   int `json:"jugosidad"`
	Cuajada     int `json:"cuajada"`
	Temperatura int `json:"temperatura"`
}

type commentPayload struct {
	ID           string                 `json:"id"`
	Comment      string                 `json:"comment"`
	OverallScore int                    `json:"overallScore"`
	Scores       scoresPayload          `json:"scores"`
	CreatedAt    time.Time              `json:"createdAt"`
	ImageURL     *string                `json:"imageUrl"`
	Reactions    ratings.ReactionCounts `json:"reactions"`
	LikesCount   int                    `json:"likesCount"`
	MyReactions  []ratings.Reaction     `json:"myReactions"`
	Liked        bool                   `json:"liked"`
}

func (h *httpHandler) handleListComments(c *gin.Context) {
	noStore(c)
	comments, err := h.ratings.ListComments(c.Request.Context(), c.Query("fingerprint"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	payload := make([]commentPayload, 0, len(comments))
	for _, comment := range comments {
		rating := comment.Rating
		text := ""
		if rating.Comment != nil {
			text = *rating.Comment
		}
		payload = append(payload, commentPayload{
			ID:           rating.ID,
			Comment:      text,
			OverallScore: rating.ScoreOverall,
			Scores: scoresPayload{
				Sabor:       rating.Sabor,
				Jugosidad:   rating.Jugosidad,
				Cuajada:     rating.Cuajada,
				Temperatura: rating.Temperatura,
			},
			CreatedAt:   rating.CreatedAt,
			ImageURL:    rating.ImageURL,
			Reactions:   comment.Reactions,
			LikesCount:  comment.LikesCount,
			MyReactions: comment.MyReactions,
			Liked:       comment.Liked,
		})
	}
	c.JSON(http.StatusOK, gin.H{"comments": payload, "total": len(payload)})
}

type toggleRequestPayload struct {
	RatingID    string `json:"ratingId"`
	Fingerprint string `json:"fingerprint"`
	Reaction    string `json:"reaction"`
}

func (h *httpHandler) bindToggle(c *gin.Context) (ratings.ToggleRequest, bool) {
	var request toggleRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": codeInvalidRequest})
		return ratings.ToggleRequest{}, false
	}
	return ratings.ToggleRequest{
		RatingID:    request.RatingID,
		Fingerprint: request.Fingerprint,
		Reaction:    request.Reaction,
		IPAddress:   clientIP(c),
	}, true
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	request, ok := h.bindToggle(c)
	if !ok {
		return
	}
	result, err := h.ratings.ToggleLike(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": result.Liked, "likesCount": result.LikesCount})
}

func (h *httpHandler) handleToggleReaction(c *gin.Context) {
	request, ok := h.bindToggle(c)
	if !ok {
		return
	}
	result, err := h.ratings.ToggleReaction(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": result.Active, "counts": result.Counts})
}
