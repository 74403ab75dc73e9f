package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

// DefaultCloudURL is the public Health Kit REST endpoint.
const DefaultCloudURL = "https://health-api.cloud.huawei.com"

// Health Kit data type names for the kinds the cloud provider can read.
var cloudDataTypes = map[DataKind]string{
	HeartRate: "com.huawei.instantaneous.heart_rate",
	Steps:     "com.huawei.continuous.steps.delta",
}

// CloudConfig configures the Cloud provider.
type CloudConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Cloud reads samples through the Health Kit sampleSet:polymerize endpoint.
// The access token comes from the native sign-in flow.
type Cloud struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewCloud creates a cloud provider.
func NewCloud(cfg CloudConfig) (*Cloud, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCloudURL
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("cloud base url %q must be http(s)", cfg.BaseURL)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cloud{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AccessToken,
		client:  cfg.HTTPClient,
		logger:  cfg.Logger,
	}, nil
}

func (c *Cloud) Name() string    { return "cloud" }
func (c *Cloud) Simulated() bool { return false }

// Authorize requires a configured access token. Scope consent happens in the
// native sign-in flow that issued it.
func (c *Cloud) Authorize(ctx context.Context, scopes []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.token == "" {
		return fmt.Errorf("cloud provider has no access token: %w", ErrNotAuthorized)
	}
	return nil
}

type polymerizeRequest struct {
	PolymerizeWith []polymerizeWith `json:"polymerizeWith"`
	StartTime      int64            `json:"startTime"`
	EndTime        int64            `json:"endTime"`
}

type polymerizeWith struct {
	DataTypeName string `json:"dataTypeName"`
}

type polymerizeResponse struct {
	Group []struct {
		SampleSet []struct {
			SamplePoints []samplePoint `json:"samplePoints"`
		} `json:"sampleSet"`
	} `json:"group"`
}

type samplePoint struct {
	// Nanoseconds since epoch.
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`
	Value     []struct {
		FieldName    string   `json:"fieldName"`
		IntegerValue *int64   `json:"integerValue,omitempty"`
		FloatValue   *float64 `json:"floatValue,omitempty"`
	} `json:"value"`
}

func (p samplePoint) number() (float64, bool) {
	for _, v := range p.Value {
		switch {
		case v.FloatValue != nil:
			return *v.FloatValue, true
		case v.IntegerValue != nil:
			return float64(*v.IntegerValue), true
		}
	}
	return 0, false
}

// Read fetches samples for req. Heart rate returns the newest points up to
// req.Limit; steps returns one point summing the window.
func (c *Cloud) Read(ctx context.Context, req ReadRequest) ([]Sample, error) {
	if req.Kind == Sleep {
		return nil, fmt.Errorf("%s: %w", req.Kind, ErrUnsupportedKind)
	}
	dataType, ok := cloudDataTypes[req.Kind]
	if !ok {
		c.logger.Warn("unknown data type requested", "data_type", string(req.Kind))
		return nil, nil
	}
	if c.token == "" {
		return nil, fmt.Errorf("cloud provider has no access token: %w", ErrNotAuthorized)
	}

	points, err := c.polymerize(ctx, dataType, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	switch req.Kind {
	case Steps:
		var total float64
		for _, p := range points {
			if v, ok := p.number(); ok {
				total += v
			}
		}
		return []Sample{{Value: total, Unit: "steps", Timestamp: req.EndTime}}, nil
	default:
		sort.Slice(points, func(i, j int) bool { return points[i].StartTime > points[j].StartTime })
		samples := make([]Sample, 0, len(points))
		for _, p := range points {
			if req.Limit > 0 && len(samples) == req.Limit {
				break
			}
			v, ok := p.number()
			if !ok {
				continue
			}
			samples = append(samples, Sample{Value: v, Unit: "bpm", Timestamp: p.StartTime / int64(time.Millisecond)})
		}
		return samples, nil
	}
}

func (c *Cloud) polymerize(ctx context.Context, dataType string, start, end int64) ([]samplePoint, error) {
	body, err := json.Marshal(polymerizeRequest{
		PolymerizeWith: []polymerizeWith{{DataTypeName: dataType}},
		StartTime:      start,
		EndTime:        end,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal polymerize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/healthkit/v2/sampleSet:polymerize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymerize %s: %w", dataType, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading polymerize response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("polymerize %s: status %d: %w", dataType, resp.StatusCode, ErrNotAuthorized)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("polymerize %s: status %d: %s", dataType, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out polymerizeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decoding polymerize response: %w", err)
	}
	var points []samplePoint
	for _, g := range out.Group {
		for _, set := range g.SampleSet {
			points = append(points, set.SamplePoints...)
		}
	}
	c.logger.Debug("polymerize", "data_type", dataType, "points", len(points))
	return points, nil
}
