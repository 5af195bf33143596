package domain

import "errors"

var (
	// ErrNotFound is returned when the remote API has no such resource
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the remote API rejects the session
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidDataset is returned when dataset metadata fails validation
	ErrInvalidDataset = errors.New("invalid dataset")

	// ErrInvalidSettings is returned when a settings blob fails validation
	ErrInvalidSettings = errors.New("invalid settings")
)

// Dataset describes an open data source listed on the dashboard
type Dataset struct {
	ID          int    `json:"id"`
	Title       string `json:"title" yaml:"title" validate:"required,max=200"`
	Description string `json:"description" yaml:"description" validate:"max=2000"`
	Format      string `json:"format" yaml:"format" validate:"required,max=64"`
	LastUpdate  string `json:"lastUpdate" yaml:"last_update"`
	Category    string `json:"category" yaml:"category" validate:"required,max=100"`
	Coverage    string `json:"coverage" yaml:"coverage"`
	Link        string `json:"link" yaml:"link" validate:"omitempty,url"`
}

// Settings is the user-adjustable dashboard configuration
type Settings struct {
	APIURL             string `json:"apiUrl" yaml:"api_url" validate:"required,url"`
	PortFront          int    `json:"portFront" yaml:"port_front" validate:"min=1,max=65535"`
	SelectedDatasetIDs []int  `json:"selectedDatasetIds" yaml:"selected_dataset_ids"`
	ShowMapMarkers     bool   `json:"showMapMarkers" yaml:"show_map_markers"`
	MarkerRadius       int    `json:"markerRadius" yaml:"marker_radius" validate:"min=0,max=10000"`
	RefreshIntervalSec int    `json:"refreshIntervalSec" yaml:"refresh_interval_sec" validate:"min=5,max=86400"`
}

// DefaultSettings returns the settings used when nothing is stored
func DefaultSettings() Settings {
	return Settings{
		APIURL:             "http://localhost:8000",
		PortFront:          4001,
		SelectedDatasetIDs: []int{},
		ShowMapMarkers:     true,
		MarkerRadius:       200,
		RefreshIntervalSec: 60,
	}
}

// AskRequest is a question for the document assistant
type AskRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
	FileType string `json:"file_type,omitempty" validate:"omitempty,oneof=all csv pdf json xml"`
}

// AskResponse is the assistant's answer
type AskResponse struct {
	Answer string `json:"answer" yaml:"answer"`

	// Fallback is set when the assistant was unreachable and Answer is the
	// canned apology
	Fallback bool `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}
