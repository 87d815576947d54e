package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tortilla/internal/apperr"
	"github.com/MarcoPoloResearchLab/tortilla/internal/availability"
	"github.com/MarcoPoloResearchLab/tortilla/internal/batches"
	"github.com/MarcoPoloResearchLab/tortilla/internal/metrics"
	"github.com/MarcoPoloResearchLab/tortilla/internal/ratings"
	"github.com/MarcoPoloResearchLab/tortilla/internal/stats"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeInternal       = "internal_server_error"
	codeInvalidRequest = "invalid_request"
	fallbackClientIP   = "0.0.0.0"
	noStoreDirective   = "no-store, no-cache, must-revalidate, proxy-revalidate"
	maxMultipartMemory = 8 << 20
)

var (
	errMissingAvailabilityService = errors.New("availability service dependency required")
	errMissingRatingsService      = errors.New("ratings service dependency required")
	errMissingBatchesService      = errors.New("batches service dependency required")
	errMissingStatsService        = errors.New("stats service dependency required")
)

type Dependencies struct {
	Availability   *availability.Service
	Ratings        *ratings.Service
	Batches        *batches.Service
	Stats          *stats.Service
	Metrics        *metrics.Recorder
	Logger         *zap.Logger
	AllowedOrigins []string
	// UploadDir is served under UploadPath when images are kept on local disk.
	UploadDir  string
	UploadPath string
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Availability == nil {
		return nil, errMissingAvailabilityService
	}
	if deps.Ratings == nil {
		return nil, errMissingRatingsService
	}
	if deps.Batches == nil {
		return nil, errMissingBatchesService
	}
	if deps.Stats == nil {
		return nil, errMissingStatsService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := deps.Metrics
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}

	router := gin.New()
	router.MaxMultipartMemory = maxMultipartMemory
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": codeInternal})
	}))
	router.Use(corsMiddleware(deps.AllowedOrigins))
	router.Use(requestLogger(logger))
	router.Use(recorder.Middleware())

	handler := &httpHandler{
		availability: deps.Availability,
		ratings:      deps.Ratings,
		batches:      deps.Batches,
		stats:        deps.Stats,
		metrics:      recorder,
		logger:       logger,
	}

	router.POST("/outages/vote", handler.handleOutageVote)
	router.POST("/outages/reset-on-activity", handler.handleResetOnActivity)
	router.GET("/availability", handler.handleGetAvailability)
	router.POST("/availability", handler.handleSetAvailability)
	router.POST("/availability/end", handler.handleAvailabilityEnd)

	router.POST("/ratings", handler.handleSubmitRating)
	router.GET("/ratings/comments", handler.handleListComments)
	router.POST("/ratings/comments/likes", handler.handleToggleLike)
	router.POST("/ratings/comments/reactions", handler.handleToggleReaction)

	router.GET("/today/status", handler.handleTodayStatus)
	router.GET("/history/top-comments", handler.handleTopComments)
	router.GET("/history/daily", handler.handleDailyHistory)

	router.POST("/batches/new", handler.handleCreateBatch)
	router.POST("/batches/confirm", handler.handleConfirmBatch)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(recorder.Handler()))

	if deps.UploadDir != "" && strings.HasPrefix(deps.UploadPath, "/") {
		router.Static(deps.UploadPath, deps.UploadDir)
	}

	return router, nil
}

type httpHandler struct {
	availability *availability.Service
	ratings      *ratings.Service
	batches      *batches.Service
	stats        *stats.Service
	metrics      *metrics.Recorder
	logger       *zap.Logger
}

// respondError writes the public code of err with the status of its kind.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		h.logger.Error("unclassified handler error", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": codeInternal})
		return
	}
	c.JSON(statusForKind(appErr.Kind()), gin.H{"error": appErr.Code()})
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindGone:
		return http.StatusGone
	case apperr.KindLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	return apperr.CodeOf(err, codeInternal)
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return fallbackClientIP
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", noStoreDirective)
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "X-Requested-With"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || containsWildcard(allowedOrigins) {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			return true
		}
	}
	return false
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", clientIP(c)),
		)
	}
}
