package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/smartcity/racc-dashboard/internal/domain"
	"github.com/smartcity/racc-dashboard/internal/incident"
	"github.com/smartcity/racc-dashboard/internal/service"
)

// SessionManager is the part of session.Manager the handlers use
type SessionManager interface {
	Login(ctx context.Context, username, password string) bool
	Logout(ctx context.Context)
	Info() domain.SessionInfo
}

// IncidentFeed serves views over the latest incident set
type IncidentFeed interface {
	View(c domain.Criteria, topN int) domain.IncidentView
	Markers(c domain.Criteria, radius int) []domain.Marker
	History(ctx context.Context, window time.Duration) ([]domain.Snapshot, error)
}

// RemoteIncidents exposes the API's own incident aggregates
type RemoteIncidents interface {
	FetchRemoteSummary(ctx context.Context) (json.RawMessage, error)
	FetchRemoteRanking(ctx context.Context) (json.RawMessage, error)
	FetchRemoteMap(ctx context.Context) (json.RawMessage, error)
}

// DatasetService manages dataset metadata
type DatasetService interface {
	Search(ctx context.Context, q string) ([]domain.Dataset, error)
	Get(ctx context.Context, id int) (domain.Dataset, error)
	Create(ctx context.Context, d domain.Dataset) (domain.Dataset, error)
	Update(ctx context.Context, id int, d domain.Dataset) (domain.Dataset, error)
	Delete(ctx context.Context, id int) error
}

// SettingsService stores the dashboard settings
type SettingsService interface {
	Load(ctx context.Context) (domain.Settings, error)
	Save(ctx context.Context, s domain.Settings) (domain.Settings, error)
	Reset(ctx context.Context) (domain.Settings, error)
	Export(ctx context.Context) ([]byte, error)
}

// Assistant answers questions about the datasets
type Assistant interface {
	Ask(ctx context.Context, req domain.AskRequest) (domain.AskResponse, error)
}

// Deps are the services behind the HTTP API
type Deps struct {
	Session   SessionManager
	Feed      IncidentFeed
	Remote    RemoteIncidents
	Datasets  DatasetService
	Settings  SettingsService
	Assistant Assistant
	Repo      domain.SnapshotRepository
	Logger    *slog.Logger
}

// Handler contains all HTTP handlers
type Handler struct {
	Deps
}

// NewHandler creates a new handler
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handler{Deps: deps}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	database := "ok"
	if h.Repo != nil {
		if err := h.Repo.Health(c.UserContext()); err != nil {
			database = "unavailable"
		}
	}

	return c.JSON(fiber.Map{
		"status":   "ok",
		"service":  "racc-dashboard",
		"version":  "1.0.0",
		"database": database,
		"session":  h.Session.Info(),
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login opens a session against the remote API
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Username and password are required")
	}

	if !h.Session.Login(c.UserContext(), req.Username, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.Session.Info(),
	})
}

// Logout closes the session. It always succeeds.
func (h *Handler) Logout(c *fiber.Ctx) error {
	h.Session.Logout(c.UserContext())
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.Session.Info(),
	})
}

// GetSession reports the session state
func (h *Handler) GetSession(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.Session.Info(),
	})
}

// GetIncidents returns the filtered incidents with their aggregate
func (h *Handler) GetIncidents(c *fiber.Ctx) error {
	criteria, err := parseCriteria(c)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.Feed.View(criteria, c.QueryInt("top", 0)),
	})
}

// GetSummary returns the KPI summary of the filtered set, or the remote
// API's summary with source=remote
func (h *Handler) GetSummary(c *fiber.Ctx) error {
	if c.Query("source") == "remote" {
		return h.proxyRemote(c, h.Remote.FetchRemoteSummary)
	}
	criteria, err := parseCriteria(c)
	if err != nil {
		return err
	}

	agg := h.Feed.View(criteria, 1).Aggregate
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total":                   agg.Total,
			"severe_count":            agg.SevereCount,
			"severe_fraction_percent": agg.SevereFractionPercent,
			"top_affected_road":       agg.TopAffectedRoad,
			"cause_histogram":         agg.CauseHistogram,
			"severity_histogram":      agg.SeverityHistogram,
		},
	})
}

// GetRanking returns the road ranking of the filtered set
func (h *Handler) GetRanking(c *fiber.Ctx) error {
	if c.Query("source") == "remote" {
		return h.proxyRemote(c, h.Remote.FetchRemoteRanking)
	}
	criteria, err := parseCriteria(c)
	if err != nil {
		return err
	}

	ranking := h.Feed.View(criteria, c.QueryInt("top", 0)).Aggregate.RoadRanking
	return c.JSON(fiber.Map{
		"success": true,
		"data":    ranking,
		"count":   len(ranking),
	})
}

// GetMap returns map markers for the filtered set, honouring the marker
// settings
func (h *Handler) GetMap(c *fiber.Ctx) error {
	if c.Query("source") == "remote" {
		return h.proxyRemote(c, h.Remote.FetchRemoteMap)
	}
	criteria, err := parseCriteria(c)
	if err != nil {
		return err
	}

	settings, err := h.Settings.Load(c.UserContext())
	if err != nil {
		h.Logger.Warn("Settings unavailable, using defaults", "error", err)
		settings = domain.DefaultSettings()
	}

	markers := []domain.Marker{}
	if settings.ShowMapMarkers {
		markers = h.Feed.Markers(criteria, settings.MarkerRadius)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"center":  []float64{domain.BarcelonaCenterLat, domain.BarcelonaCenterLon},
			"markers": markers,
		},
		"count": len(markers),
	})
}

// GetHistory returns persisted snapshot summaries within a time range
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	hours := c.QueryInt("hours", 24)
	if hours < 1 || hours > 720 { // max 30 days
		hours = 24
	}

	data, err := h.Feed.History(c.UserContext(), time.Duration(hours)*time.Hour)
	if err != nil {
		h.Logger.Warn("Snapshot history unavailable", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch incident history")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
		"count":   len(data),
	})
}

// ListDatasets searches dataset metadata. An unreachable API yields an
// empty list.
func (h *Handler) ListDatasets(c *fiber.Ctx) error {
	datasets, err := h.Datasets.Search(c.UserContext(), c.Query("q"))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return fiber.NewError(fiber.StatusUnauthorized, "Session expired")
		}
		h.Logger.Warn("Dataset list unavailable", "error", err)
		return c.JSON(fiber.Map{
			"success": true,
			"data":    []domain.Dataset{},
			"count":   0,
			"message": "Datasets are temporarily unavailable",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    datasets,
		"count":   len(datasets),
	})
}

// GetDataset returns one dataset
func (h *Handler) GetDataset(c *fiber.Ctx) error {
	id, err := datasetID(c)
	if err != nil {
		return err
	}
	d, err := h.Datasets.Get(c.UserContext(), id)
	if err != nil {
		return h.serviceError(err, "Failed to fetch dataset")
	}
	return c.JSON(fiber.Map{"success": true, "data": d})
}

// CreateDataset stores new dataset metadata
func (h *Handler) CreateDataset(c *fiber.Ctx) error {
	var d domain.Dataset
	if err := c.BodyParser(&d); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	created, err := h.Datasets.Create(c.UserContext(), d)
	if err != nil {
		return h.serviceError(err, "Failed to create dataset")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": created})
}

// UpdateDataset replaces dataset metadata
func (h *Handler) UpdateDataset(c *fiber.Ctx) error {
	id, err := datasetID(c)
	if err != nil {
		return err
	}
	var d domain.Dataset
	if err := c.BodyParser(&d); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	updated, err := h.Datasets.Update(c.UserContext(), id, d)
	if err != nil {
		return h.serviceError(err, "Failed to update dataset")
	}
	return c.JSON(fiber.Map{"success": true, "data": updated})
}

// DeleteDataset removes a dataset
func (h *Handler) DeleteDataset(c *fiber.Ctx) error {
	id, err := datasetID(c)
	if err != nil {
		return err
	}
	if err := h.Datasets.Delete(c.UserContext(), id); err != nil {
		return h.serviceError(err, "Failed to delete dataset")
	}
	return c.JSON(fiber.Map{"success": true})
}

// GetSettings returns the current settings
func (h *Handler) GetSettings(c *fiber.Ctx) error {
	s, err := h.Settings.Load(c.UserContext())
	if err != nil {
		return h.serviceError(err, "Failed to load settings")
	}
	return c.JSON(fiber.Map{"success": true, "data": s})
}

// SaveSettings validates and stores settings
func (h *Handler) SaveSettings(c *fiber.Ctx) error {
	s := domain.DefaultSettings()
	if err := c.BodyParser(&s); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	saved, err := h.Settings.Save(c.UserContext(), s)
	if err != nil {
		return h.serviceError(err, "Failed to save settings")
	}
	return c.JSON(fiber.Map{"success": true, "data": saved})
}

// ResetSettings restores the defaults
func (h *Handler) ResetSettings(c *fiber.Ctx) error {
	s, err := h.Settings.Reset(c.UserContext())
	if err != nil {
		return h.serviceError(err, "Failed to reset settings")
	}
	return c.JSON(fiber.Map{"success": true, "data": s})
}

// ExportSettings downloads the settings as a JSON file
func (h *Handler) ExportSettings(c *fiber.Ctx) error {
	out, err := h.Settings.Export(c.UserContext())
	if err != nil {
		return h.serviceError(err, "Failed to export settings")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="racc-config.json"`)
	return c.Send(out)
}

// Ask forwards a question to the document assistant
func (h *Handler) Ask(c *fiber.Ctx) error {
	var req domain.AskRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	resp, err := h.Assistant.Ask(c.UserContext(), req)
	if err != nil {
		return h.serviceError(err, "Failed to get an answer")
	}
	return c.JSON(fiber.Map{"success": true, "data": resp})
}

func (h *Handler) proxyRemote(c *fiber.Ctx, fetch func(context.Context) (json.RawMessage, error)) error {
	data, err := fetch(c.UserContext())
	if err != nil {
		return h.serviceError(err, "Remote API unavailable")
	}
	return c.JSON(fiber.Map{"success": true, "data": data})
}

// serviceError maps service errors onto HTTP errors
func (h *Handler) serviceError(err error, fallback string) error {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.NewError(fiber.StatusUnauthorized, "Session expired")
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Not found")
	case errors.Is(err, domain.ErrInvalidDataset),
		errors.Is(err, domain.ErrInvalidSettings),
		errors.Is(err, service.ErrInvalidQuestion):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	h.Logger.Warn(fallback, "error", err)
	return fiber.NewError(fiber.StatusBadGateway, fallback)
}

func parseCriteria(c *fiber.Ctx) (domain.Criteria, error) {
	criteria, err := incident.ParseCriteria(incident.CriteriaParams{
		Area:      c.Query("area"),
		From:      c.Query("from"),
		To:        c.Query("to"),
		RoadClass: c.Query("road_class"),
		Kind:      c.Query("kind"),
		Road:      c.Query("road"),
	})
	if err != nil {
		return domain.Criteria{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return criteria, nil
}

func datasetID(c *fiber.Ctx) (int, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid dataset id")
	}
	return id, nil
}
