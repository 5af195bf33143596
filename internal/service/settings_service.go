package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/smartcity/racc-dashboard/internal/domain"
)

// defaultSelectionSize is how many datasets are preselected when the user
// has chosen none
const defaultSelectionSize = 2

// DatasetLister lists the datasets known to the API
type DatasetLister interface {
	ListDatasets(ctx context.Context) ([]domain.Dataset, error)
}

// SettingsService stores the user's dashboard settings in the state store
type SettingsService struct {
	store    domain.StateStore
	datasets DatasetLister
	validate *validator.Validate
	logger   *slog.Logger

	mu       sync.RWMutex
	watchers []func(domain.Settings)
}

// NewSettingsService creates a new settings service
func NewSettingsService(store domain.StateStore, datasets DatasetLister, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		store:    store,
		datasets: datasets,
		validate: validator.New(),
		logger:   logger.With("component", "settings"),
	}
}

// Load returns the stored settings merged over the defaults. A corrupt
// blob is ignored. When no dataset is selected the first datasets listed
// by the API become the selection.
func (s *SettingsService) Load(ctx context.Context) (domain.Settings, error) {
	settings, err := s.stored(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if len(settings.SelectedDatasetIDs) == 0 && s.datasets != nil {
		settings.SelectedDatasetIDs = s.defaultSelection(ctx)
	}
	return settings, nil
}

// RefreshInterval returns the stored poll period without contacting the API
func (s *SettingsService) RefreshInterval(ctx context.Context) (time.Duration, error) {
	settings, err := s.stored(ctx)
	if err != nil {
		return 0, err
	}
	return time.Duration(settings.RefreshIntervalSec) * time.Second, nil
}

// Watch registers fn to be called with the new settings after every Save
// and Reset
func (s *SettingsService) Watch(fn func(domain.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *SettingsService) notify(settings domain.Settings) {
	s.mu.RLock()
	watchers := s.watchers
	s.mu.RUnlock()
	for _, fn := range watchers {
		fn(settings)
	}
}

func (s *SettingsService) stored(ctx context.Context) (domain.Settings, error) {
	settings := domain.DefaultSettings()

	raw, ok, err := s.store.Get(ctx, domain.SettingsKey)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("service: failed to load settings: %w", err)
	}
	if ok {
		// fields absent from the blob keep their defaults
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			s.logger.Warn("Stored settings are corrupt, using defaults", "error", err)
			settings = domain.DefaultSettings()
		}
	}
	if settings.SelectedDatasetIDs == nil {
		settings.SelectedDatasetIDs = []int{}
	}
	return settings, nil
}

// Save validates and stores the settings
func (s *SettingsService) Save(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if err := s.validate.Struct(settings); err != nil {
		return domain.Settings{}, fmt.Errorf("%w: %v", domain.ErrInvalidSettings, err)
	}
	if settings.SelectedDatasetIDs == nil {
		settings.SelectedDatasetIDs = []int{}
	}

	blob, err := json.Marshal(settings)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("service: failed to marshal settings: %w", err)
	}
	if err := s.store.Set(ctx, domain.SettingsKey, string(blob)); err != nil {
		return domain.Settings{}, fmt.Errorf("service: failed to save settings: %w", err)
	}
	s.notify(settings)
	return settings, nil
}

// Reset deletes the stored settings and returns the defaults
func (s *SettingsService) Reset(ctx context.Context) (domain.Settings, error) {
	if err := s.store.Delete(ctx, domain.SettingsKey); err != nil {
		return domain.Settings{}, fmt.Errorf("service: failed to reset settings: %w", err)
	}
	settings, err := s.Load(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	s.notify(settings)
	return settings, nil
}

// Export renders the current settings as indented JSON
func (s *SettingsService) Export(ctx context.Context) ([]byte, error) {
	settings, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("service: failed to export settings: %w", err)
	}
	return out, nil
}

func (s *SettingsService) defaultSelection(ctx context.Context) []int {
	datasets, err := s.datasets.ListDatasets(ctx)
	if err != nil {
		s.logger.Debug("Dataset list unavailable for default selection", "error", err)
		return []int{}
	}
	ids := make([]int, 0, defaultSelectionSize)
	for _, d := range datasets {
		if len(ids) == defaultSelectionSize {
			break
		}
		ids = append(ids, d.ID)
	}
	return ids
}
