package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/david/bid-matcher/internal/config"
	"github.com/david/bid-matcher/internal/kb"
	"github.com/david/bid-matcher/internal/models"
	"github.com/david/bid-matcher/internal/queue"
)

// OutcomeReader lists stored outcomes and run summaries for the ops views.
type OutcomeReader interface {
	ListOutcomes(ctx context.Context, date time.Time, kind models.OutcomeKind) ([]models.ProcessingOutcome, error)
	ListRunSummaries(ctx context.Context, date time.Time) ([]models.RunSummaryEntry, error)
}

// Publisher enqueues match requests, used by the manual re-match endpoint.
type Publisher interface {
	PublishMatchRequest(ctx context.Context, req queue.MatchRequest) error
}

// CapabilityIndexer admits new capability documents into the knowledge base.
type CapabilityIndexer interface {
	AddDocument(ctx context.Context, doc kb.Document) error
	Count(ctx context.Context) (int, error)
}

// Server is the small ops API riding alongside the worker: inspect outcomes,
// re-trigger a record, and maintain the capability knowledge base.
type Server struct {
	Echo         *echo.Echo
	outcomes     OutcomeReader
	publisher    Publisher
	capabilities CapabilityIndexer
	adminSecret  string
	logger       *zap.Logger
}

func NewServer(cfg config.ServerConfig, outcomes OutcomeReader, publisher Publisher, capabilities CapabilityIndexer, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		Echo:         e,
		outcomes:     outcomes,
		publisher:    publisher,
		capabilities: capabilities,
		adminSecret:  cfg.AdminSecret,
		logger:       logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")
	api.GET("/outcomes", s.handleListOutcomes)
	api.GET("/runs", s.handleListRuns)

	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/match", s.handleTriggerMatch)
	admin.POST("/capabilities", s.handleAddCapability)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// parseDate reads the date query param, defaulting to today (UTC).
func parseDate(c echo.Context) (time.Time, error) {
	raw := c.QueryParam("date")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}

func (s *Server) handleListOutcomes(c echo.Context) error {
	date, err := parseDate(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid date, expected YYYY-MM-DD"})
	}

	category := models.OutcomeKind(c.QueryParam("category"))
	if category == "" {
		category = models.OutcomeMatched
	}
	switch category {
	case models.OutcomeMatched, models.OutcomeNotMatched, models.OutcomeErrored:
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "category must be matched, no-match, or errored"})
	}

	outcomes, err := s.outcomes.ListOutcomes(c.Request().Context(), date, category)
	if err != nil {
		s.logger.Error("listing outcomes failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list outcomes"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"date":     date.Format("2006-01-02"),
		"category": category,
		"count":    len(outcomes),
		"outcomes": outcomes,
	})
}

func (s *Server) handleListRuns(c echo.Context) error {
	date, err := parseDate(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid date, expected YYYY-MM-DD"})
	}

	entries, err := s.outcomes.ListRunSummaries(c.Request().Context(), date)
	if err != nil {
		s.logger.Error("listing runs failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"date":  date.Format("2006-01-02"),
		"count": len(entries),
		"runs":  entries,
	})
}

type triggerMatchRequest struct {
	RecordID  string `json:"record_id"`
	RecordKey string `json:"record_key"`
}

func (s *Server) handleTriggerMatch(c echo.Context) error {
	var req triggerMatchRequest
	if err := c.Bind(&req); err != nil || req.RecordKey == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "record_key is required"})
	}

	msg := queue.MatchRequest{
		RecordID:    req.RecordID,
		RecordKey:   req.RecordKey,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishMatchRequest(c.Request().Context(), msg); err != nil {
		s.logger.Error("publishing match request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to enqueue match request"})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued", "record_key": req.RecordKey})
}

type addCapabilityRequest struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Location string `json:"location"`
}

func (s *Server) handleAddCapability(c echo.Context) error {
	var req addCapabilityRequest
	if err := c.Bind(&req); err != nil || req.SourceID == "" || req.Body == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "source_id and body are required"})
	}

	doc := kb.Document{SourceID: req.SourceID, Title: req.Title, Body: req.Body, Location: req.Location}
	if err := s.capabilities.AddDocument(c.Request().Context(), doc); err != nil {
		s.logger.Error("adding capability failed", zap.String("source_id", req.SourceID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to index capability"})
	}

	total, err := s.capabilities.Count(c.Request().Context())
	if err != nil {
		total = -1
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "indexed", "source_id": req.SourceID, "total": total})
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.adminSecret == "" {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "server admin configuration error"})
		}
		if c.Request().Header.Get("X-Admin-Secret") == s.adminSecret {
			return next(c)
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized admin access"})
	}
}
