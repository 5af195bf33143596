package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/racc-dashboard/internal/domain"
	"github.com/smartcity/racc-dashboard/internal/incident"
	"github.com/smartcity/racc-dashboard/internal/repository/postgres"
	"github.com/smartcity/racc-dashboard/internal/service"
)

type fakeSession struct {
	authenticated bool
	logouts       int
}

func (s *fakeSession) Login(_ context.Context, username, password string) bool {
	s.authenticated = username == "anna" && password == "secret"
	return s.authenticated
}

func (s *fakeSession) Logout(context.Context) {
	s.logouts++
	s.authenticated = false
}

func (s *fakeSession) Info() domain.SessionInfo {
	info := domain.SessionInfo{Authenticated: s.authenticated}
	if s.authenticated {
		info.Identity = "anna"
	}
	return info
}

type fakeFeed struct {
	incidents []domain.Incident
}

func (f *fakeFeed) View(c domain.Criteria, topN int) domain.IncidentView {
	return incident.View(f.incidents, c, topN, time.Time{})
}

func (f *fakeFeed) Markers(c domain.Criteria, radius int) []domain.Marker {
	return incident.Markers(incident.Filter(f.incidents, c), radius)
}

func (f *fakeFeed) History(context.Context, time.Duration) ([]domain.Snapshot, error) {
	return []domain.Snapshot{{Total: 3, TopAffectedRoad: "AP-7"}}, nil
}

type fakeRemote struct{ err error }

func (r fakeRemote) FetchRemoteSummary(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"total":99}`), r.err
}

func (r fakeRemote) FetchRemoteRanking(context.Context) (json.RawMessage, error) {
	return nil, r.err
}

func (r fakeRemote) FetchRemoteMap(context.Context) (json.RawMessage, error) {
	return nil, r.err
}

type fakeDatasets struct {
	err     error
	created domain.Dataset
}

func (d *fakeDatasets) Search(_ context.Context, q string) ([]domain.Dataset, error) {
	if d.err != nil {
		return nil, d.err
	}
	return []domain.Dataset{{ID: 1, Title: "Incidències " + q}}, nil
}

func (d *fakeDatasets) Get(_ context.Context, id int) (domain.Dataset, error) {
	if id != 1 {
		return domain.Dataset{}, fmt.Errorf("service: dataset %d: %w", id, domain.ErrNotFound)
	}
	return domain.Dataset{ID: 1, Title: "Incidències"}, nil
}

func (d *fakeDatasets) Create(_ context.Context, ds domain.Dataset) (domain.Dataset, error) {
	if ds.Title == "" {
		return domain.Dataset{}, fmt.Errorf("%w: title required", domain.ErrInvalidDataset)
	}
	ds.ID = 8
	d.created = ds
	return ds, nil
}

func (d *fakeDatasets) Update(_ context.Context, id int, ds domain.Dataset) (domain.Dataset, error) {
	ds.ID = id
	return ds, nil
}

func (d *fakeDatasets) Delete(context.Context, int) error {
	return d.err
}

type fakeSettings struct {
	current domain.Settings
}

func (s *fakeSettings) Load(context.Context) (domain.Settings, error) { return s.current, nil }

func (s *fakeSettings) Save(_ context.Context, in domain.Settings) (domain.Settings, error) {
	if in.RefreshIntervalSec < 5 {
		return domain.Settings{}, fmt.Errorf("%w: refreshIntervalSec", domain.ErrInvalidSettings)
	}
	s.current = in
	return in, nil
}

func (s *fakeSettings) Reset(context.Context) (domain.Settings, error) {
	s.current = domain.DefaultSettings()
	return s.current, nil
}

func (s *fakeSettings) Export(context.Context) ([]byte, error) {
	return json.MarshalIndent(s.current, "", "  ")
}

type fakeAssistant struct{}

func (fakeAssistant) Ask(_ context.Context, req domain.AskRequest) (domain.AskResponse, error) {
	if strings.TrimSpace(req.Question) == "" {
		return domain.AskResponse{}, service.ErrInvalidQuestion
	}
	return domain.AskResponse{Answer: "resposta"}, nil
}

type testEnv struct {
	app      *fiber.App
	session  *fakeSession
	datasets *fakeDatasets
	settings *fakeSettings
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		session:  &fakeSession{},
		datasets: &fakeDatasets{},
		settings: &fakeSettings{current: domain.DefaultSettings()},
	}
	feed := &fakeFeed{incidents: []domain.Incident{
		{ID: "1", Latitude: 41.40, Longitude: 2.17, Road: "AP-7", Cause: "Accident", Severity: 4, Kind: domain.KindAccident, RoadClass: domain.RoadClassMotorway},
		{ID: "2", Latitude: 41.45, Longitude: 2.20, Road: "AP-7", Cause: "Retenció", Severity: 2, Kind: domain.KindCongestion, RoadClass: domain.RoadClassMotorway},
		{ID: "3", Latitude: 42.10, Longitude: 2.90, Road: "C-66", Cause: "Obres", Severity: 1, Kind: domain.KindRoadworks, RoadClass: domain.RoadClassSecondary},
	}}

	env.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	SetupRoutes(env.app, Deps{
		Session:   env.session,
		Feed:      feed,
		Remote:    fakeRemote{},
		Datasets:  env.datasets,
		Settings:  env.settings,
		Assistant: fakeAssistant{},
		Repo:      postgres.NewMockRepository(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return env
}

type envelope struct {
	Success bool            `json:"success"`
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Count   int             `json:"count"`
	Data    json.RawMessage `json:"data"`
}

func (env *testEnv) do(t *testing.T, method, target, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out envelope
	_ = json.Unmarshal(raw, &out)
	if out.Data == nil {
		out.Data = raw
	}
	return resp.StatusCode, out
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, fiber.MethodGet, "/health", "")

	assert.Equal(t, fiber.StatusOK, status)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, fiber.MethodGet, "/metrics", "")

	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(out.Data), "go_goroutines")
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, fiber.MethodPost, "/api/v1/auth/login", `{"username":"anna","password":"wrong"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.True(t, out.Error)
	assert.Equal(t, "Invalid credentials", out.Message)

	status, _ = env.do(t, fiber.MethodPost, "/api/v1/auth/login", `{"username":""}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, out = env.do(t, fiber.MethodPost, "/api/v1/auth/login", `{"username":"anna","password":"secret"}`)
	require.Equal(t, fiber.StatusOK, status)
	var info domain.SessionInfo
	require.NoError(t, json.Unmarshal(out.Data, &info))
	assert.True(t, info.Authenticated)
	assert.Equal(t, "anna", info.Identity)

	status, _ = env.do(t, fiber.MethodPost, "/api/v1/auth/logout", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, env.session.logouts)

	_, out = env.do(t, fiber.MethodGet, "/api/v1/auth/session", "")
	require.NoError(t, json.Unmarshal(out.Data, &info))
	assert.False(t, info.Authenticated)
}

func TestGetIncidents(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, fiber.MethodGet, "/api/v1/incidents?area=metro-area", "")

	require.Equal(t, fiber.StatusOK, status)
	var view domain.IncidentView
	require.NoError(t, json.Unmarshal(out.Data, &view))
	assert.Len(t, view.Incidents, 2)
	assert.Equal(t, 2, view.Aggregate.Total)
	assert.Equal(t, "AP-7", view.Aggregate.TopAffectedRoad)
	assert.InDelta(t, 50.0, view.Aggregate.SevereFractionPercent, 1e-9)
}

func TestGetIncidents_EmptyStateAndBadCriteria(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, fiber.MethodGet, "/api/v1/incidents?road=B-23", "")
	require.Equal(t, fiber.StatusOK, status)
	var view domain.IncidentView
	require.NoError(t, json.Unmarshal(out.Data, &view))
	assert.NotNil(t, view.Incidents)
	assert.Empty(t, view.Incidents)
	assert.Zero(t, view.Aggregate.Total)
	assert.NotNil(t, view.Aggregate.RoadRanking)

	status, out = env.do(t, fiber.MethodGet, "/api/v1/incidents?area=mars", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.True(t, out.Error)

	status, _ = env.do(t, fiber.MethodGet, "/api/v1/incidents?from=yesterday", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestGetSummaryAndRanking(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, fiber.MethodGet, "/api/v1/incidents/summary?kind=accident", "")
	require.Equal(t, fiber.StatusOK, status)
	var summary struct {
		Total           int    `json:"total"`
		TopAffectedRoad string `json:"top_affected_road"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &summary))
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, "AP-7", summary.TopAffectedRoad)

	status, out = env.do(t, fiber.MethodGet, "/api/v1/incidents/ranking?top=1", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, out.Count)
	var ranking []domain.RoadRank
	require.NoError(t, json.Unmarshal(out.Data, &ranking))
	assert.Equal(t, "AP-7", ranking[0].Road)
	assert.Equal(t, 2, ranking[0].Count)
	assert.Equal(t, 4, ranking[0].MaxSeverity)

	status, out = env.do(t, fiber.MethodGet, "/api/v1/incidents/summary?source=remote", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"total":99}`, string(out.Data))
}

func TestGetMap_HonoursSettings(t *testing.T) {
	env := newTestEnv(t)
	env.settings.current.MarkerRadius = 320

	status, out := env.do(t, fiber.MethodGet, "/api/v1/incidents/map?road_class=motorway", "")
	require.Equal(t, fiber.StatusOK, status)
	var payload struct {
		Markers []domain.Marker `json:"markers"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &payload))
	require.Len(t, payload.Markers, 2)
	assert.Equal(t, 320, payload.Markers[0].Radius)

	env.settings.current.ShowMapMarkers = false
	_, out = env.do(t, fiber.MethodGet, "/api/v1/incidents/map", "")
	require.NoError(t, json.Unmarshal(out.Data, &payload))
	assert.Empty(t, payload.Markers)
}

func TestGetHistory(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, fiber.MethodGet, "/api/v1/incidents/history?hours=9999", "")

	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, out.Count)
}

func TestDatasets(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, fiber.MethodGet, "/api/v1/datasets?q=vi%C3%A0ries", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, out.Count)

	status, _ = env.do(t, fiber.MethodGet, "/api/v1/datasets/1", "")
	assert.Equal(t, fiber.StatusOK, status)
	status, out = env.do(t, fiber.MethodGet, "/api/v1/datasets/42", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.True(t, out.Error)
	status, _ = env.do(t, fiber.MethodGet, "/api/v1/datasets/abc", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = env.do(t, fiber.MethodPost, "/api/v1/datasets", `{"title":"Aforaments","format":"CSV","category":"Mobilitat"}`)
	assert.Equal(t, fiber.StatusUnauthorized, status, "changes need a session")

	env.session.authenticated = true
	status, out = env.do(t, fiber.MethodPost, "/api/v1/datasets", `{"title":"Aforaments","format":"CSV","category":"Mobilitat"}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "Aforaments", env.datasets.created.Title)

	status, _ = env.do(t, fiber.MethodPost, "/api/v1/datasets", `{"format":"CSV"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, out = env.do(t, fiber.MethodPut, "/api/v1/datasets/8", `{"title":"Aforaments 2026","format":"CSV","category":"Mobilitat"}`)
	require.Equal(t, fiber.StatusOK, status)
	var updated domain.Dataset
	require.NoError(t, json.Unmarshal(out.Data, &updated))
	assert.Equal(t, 8, updated.ID)

	status, _ = env.do(t, fiber.MethodDelete, "/api/v1/datasets/8", "")
	assert.Equal(t, fiber.StatusOK, status)

	env.datasets.err = fmt.Errorf("service: GET /datasets: %w", domain.ErrUnauthorized)
	status, _ = env.do(t, fiber.MethodDelete, "/api/v1/datasets/8", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestDatasets_UnavailableYieldsEmptyList(t *testing.T) {
	env := newTestEnv(t)
	env.datasets.err = errors.New("connection refused")

	status, out := env.do(t, fiber.MethodGet, "/api/v1/datasets", "")

	require.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `[]`, string(out.Data))
	assert.NotEmpty(t, out.Message)
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, fiber.MethodPut, "/api/v1/settings", `{"apiUrl":"http://api.local:8000","refreshIntervalSec":30}`)
	require.Equal(t, fiber.StatusOK, status)
	var saved domain.Settings
	require.NoError(t, json.Unmarshal(out.Data, &saved))
	assert.Equal(t, 30, saved.RefreshIntervalSec)
	assert.Equal(t, 4001, saved.PortFront, "missing fields keep defaults")

	status, _ = env.do(t, fiber.MethodPut, "/api/v1/settings", `{"refreshIntervalSec":1}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/settings/export", nil)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "racc-config.json")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `"refreshIntervalSec": 30`)

	status, out = env.do(t, fiber.MethodDelete, "/api/v1/settings", "")
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(out.Data, &saved))
	assert.Equal(t, 60, saved.RefreshIntervalSec)
}

func TestAsk(t *testing.T) {
	env := newTestEnv(t)

	status, out := env.do(t, fiber.MethodPost, "/api/v1/ask", `{"question":"Quina via?"}`)
	require.Equal(t, fiber.StatusOK, status)
	var answer domain.AskResponse
	require.NoError(t, json.Unmarshal(out.Data, &answer))
	assert.Equal(t, "resposta", answer.Answer)

	status, _ = env.do(t, fiber.MethodPost, "/api/v1/ask", `{"question":" "}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
