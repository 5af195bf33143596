package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/smartcity/racc-dashboard/internal/domain"
	"github.com/smartcity/racc-dashboard/pkg/utils"
)

// DatasetService manages dataset metadata on the remote API
type DatasetService struct {
	client   *APIClient
	validate *validator.Validate
}

// NewDatasetService creates a new dataset service
func NewDatasetService(client *APIClient) *DatasetService {
	return &DatasetService{client: client, validate: validator.New()}
}

// Search lists datasets whose title, description or category contains q,
// ignoring case. An empty q returns everything.
func (s *DatasetService) Search(ctx context.Context, q string) ([]domain.Dataset, error) {
	datasets, err := s.client.ListDatasets(ctx)
	if err != nil {
		return nil, err
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return datasets, nil
	}

	out := make([]domain.Dataset, 0, len(datasets))
	for _, d := range datasets {
		if utils.ContainsFold(d.Title, q) || utils.ContainsFold(d.Description, q) || utils.ContainsFold(d.Category, q) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Get returns one dataset
func (s *DatasetService) Get(ctx context.Context, id int) (domain.Dataset, error) {
	return s.client.GetDataset(ctx, id)
}

// Create validates and stores new dataset metadata
func (s *DatasetService) Create(ctx context.Context, d domain.Dataset) (domain.Dataset, error) {
	if err := s.check(&d); err != nil {
		return domain.Dataset{}, err
	}
	d.ID = 0
	return s.client.CreateDataset(ctx, d)
}

// Update validates and replaces dataset id
func (s *DatasetService) Update(ctx context.Context, id int, d domain.Dataset) (domain.Dataset, error) {
	if err := s.check(&d); err != nil {
		return domain.Dataset{}, err
	}
	d.ID = id
	return s.client.UpdateDataset(ctx, id, d)
}

// Delete removes dataset id
func (s *DatasetService) Delete(ctx context.Context, id int) error {
	return s.client.DeleteDataset(ctx, id)
}

func (s *DatasetService) check(d *domain.Dataset) error {
	d.Title = strings.TrimSpace(d.Title)
	d.Format = strings.TrimSpace(d.Format)
	d.Category = strings.TrimSpace(d.Category)
	d.Link = strings.TrimSpace(d.Link)
	if err := s.validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidDataset, err)
	}
	return nil
}
