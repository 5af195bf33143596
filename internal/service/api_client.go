package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/smartcity/racc-dashboard/internal/domain"
	"github.com/smartcity/racc-dashboard/internal/incident"
)

// Remote API paths
const (
	pathRawIncidents = "/api/incidencies/raw"
	pathSummary      = "/api/incidencies/summary"
	pathRanking      = "/api/incidencies/ranking_trams"
	pathMap          = "/api/incidents-map"
	pathDatasets     = "/datasets"
	pathAsk          = "/rag/ask"
)

// maxBody caps how much of a remote response is read
const maxBody = 32 << 20

// Doer sends authenticated requests to the remote API. session.Manager
// implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
	BaseURL() string
}

// APIClient is a typed client for the remote dashboard API
type APIClient struct {
	doer Doer
}

// NewAPIClient creates a new API client
func NewAPIClient(doer Doer) *APIClient {
	return &APIClient{doer: doer}
}

// FetchIncidents downloads and decodes the raw incident list
func (c *APIClient) FetchIncidents(ctx context.Context) ([]domain.Incident, error) {
	body, err := c.get(ctx, pathRawIncidents)
	if err != nil {
		return nil, err
	}
	incidents, err := incident.DecodeBytes(body)
	if err != nil {
		return nil, fmt.Errorf("service: failed to decode incidents: %w", err)
	}
	return incidents, nil
}

// FetchRemoteSummary returns the API's own summary payload unchanged
func (c *APIClient) FetchRemoteSummary(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, pathSummary)
}

// FetchRemoteRanking returns the API's road section ranking unchanged
func (c *APIClient) FetchRemoteRanking(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, pathRanking)
}

// FetchRemoteMap returns the API's map points unchanged
func (c *APIClient) FetchRemoteMap(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, pathMap)
}

// ListDatasets returns every dataset the API knows
func (c *APIClient) ListDatasets(ctx context.Context) ([]domain.Dataset, error) {
	body, err := c.get(ctx, pathDatasets)
	if err != nil {
		return nil, err
	}
	datasets := []domain.Dataset{}
	if err := json.Unmarshal(body, &datasets); err != nil {
		return nil, fmt.Errorf("service: failed to decode datasets: %w", err)
	}
	return datasets, nil
}

// GetDataset looks a dataset up by id. The API has no single-item read, so
// this filters the list.
func (c *APIClient) GetDataset(ctx context.Context, id int) (domain.Dataset, error) {
	datasets, err := c.ListDatasets(ctx)
	if err != nil {
		return domain.Dataset{}, err
	}
	for _, d := range datasets {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.Dataset{}, fmt.Errorf("service: dataset %d: %w", id, domain.ErrNotFound)
}

// CreateDataset posts new dataset metadata and returns what the API stored
func (c *APIClient) CreateDataset(ctx context.Context, d domain.Dataset) (domain.Dataset, error) {
	var out domain.Dataset
	if err := c.send(ctx, http.MethodPost, pathDatasets, d, &out); err != nil {
		return domain.Dataset{}, err
	}
	return out, nil
}

// UpdateDataset replaces the metadata of dataset id
func (c *APIClient) UpdateDataset(ctx context.Context, id int, d domain.Dataset) (domain.Dataset, error) {
	var out domain.Dataset
	if err := c.send(ctx, http.MethodPut, fmt.Sprintf("%s/%d", pathDatasets, id), d, &out); err != nil {
		return domain.Dataset{}, err
	}
	if out.ID == 0 {
		out = d
		out.ID = id
	}
	return out, nil
}

// DeleteDataset removes dataset id
func (c *APIClient) DeleteDataset(ctx context.Context, id int) error {
	return c.send(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", pathDatasets, id), nil, nil)
}

// Ask forwards a question to the document assistant
func (c *APIClient) Ask(ctx context.Context, req domain.AskRequest) (domain.AskResponse, error) {
	var out domain.AskResponse
	if err := c.send(ctx, http.MethodPost, pathAsk, req, &out); err != nil {
		return domain.AskResponse{}, err
	}
	return out, nil
}

func (c *APIClient) getRaw(ctx context.Context, path string) (json.RawMessage, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("service: %s returned invalid JSON", path)
	}
	return json.RawMessage(body), nil
}

func (c *APIClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.doer.BaseURL()+path, nil)
	if err != nil {
		return nil, fmt.Errorf("service: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

// send marshals in (when non-nil) as the body and decodes the response into
// out (when non-nil)
func (c *APIClient) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("service: failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.doer.BaseURL()+path, body)
	if err != nil {
		return fmt.Errorf("service: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	data, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("service: failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *APIClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("service: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("service: failed to read %s response: %w", req.URL.Path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("service: %s %s: %w", req.Method, req.URL.Path, domain.ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("service: %s %s: %w", req.Method, req.URL.Path, domain.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("service: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}
