// Package provider supplies health samples to the bridge. Mock generates
// randomized data; Cloud reads from the Health Kit REST API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrNotAuthorized is returned when the provider holds no usable credentials.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrUnsupportedKind is returned for a known kind the provider cannot read.
	ErrUnsupportedKind = errors.New("unsupported data kind")
)

// DataKind names a category of health measurement.
type DataKind string

const (
	HeartRate DataKind = "heartrate"
	Steps     DataKind = "steps"
	Sleep     DataKind = "sleep"
)

// Known reports whether k is one of the kinds the bridge documents.
func (k DataKind) Known() bool {
	switch k {
	case HeartRate, Steps, Sleep:
		return true
	}
	return false
}

// ReadRequest is a normalized read: times are epoch milliseconds and
// defaults have already been applied.
type ReadRequest struct {
	Kind      DataKind
	StartTime int64
	EndTime   int64
	Limit     int
}

// Sample is one data point. Sleep samples carry a SleepDetail whose fields
// are flattened into the same JSON object.
type Sample struct {
	Value     float64 `json:"value" jsonschema:"required"`
	Unit      string  `json:"unit" jsonschema:"required"`
	Timestamp int64   `json:"timestamp" jsonschema:"required"`
	*SleepDetail
}

// SleepDetail describes one night of sleep, in hours.
type SleepDetail struct {
	Duration   float64 `json:"duration"`
	Quality    string  `json:"quality"`
	DeepSleep  float64 `json:"deepSleep"`
	LightSleep float64 `json:"lightSleep"`
}

// HealthDataProvider is the source of health data behind the bridge.
type HealthDataProvider interface {
	Name() string
	// Simulated reports whether samples are synthetic.
	Simulated() bool
	Authorize(ctx context.Context, scopes []string) error
	// Read returns samples for req. Unknown kinds yield no samples and no error.
	Read(ctx context.Context, req ReadRequest) ([]Sample, error)
}

// Mode selects a provider implementation.
type Mode string

const (
	ModeMock  Mode = "mock"
	ModeCloud Mode = "cloud"
)

// Config selects and configures a provider.
type Config struct {
	Mode   Mode
	Seed   uint64
	Cloud  CloudConfig
	Logger *slog.Logger
}

// New builds the provider named by cfg.Mode. An empty mode means mock.
func New(cfg Config) (HealthDataProvider, error) {
	switch cfg.Mode {
	case "", ModeMock:
		return NewMock(MockConfig{Seed: cfg.Seed, Logger: cfg.Logger}), nil
	case ModeCloud:
		if cfg.Cloud.Logger == nil {
			cfg.Cloud.Logger = cfg.Logger
		}
		return NewCloud(cfg.Cloud)
	default:
		return nil, fmt.Errorf("unknown provider mode %q (want %q or %q)", cfg.Mode, ModeMock, ModeCloud)
	}
}
