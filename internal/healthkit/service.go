// Package healthkit is the host application's view of the health bridge:
// lazy authorization, convenience reads over fixed time windows, a combined
// summary and user-facing status text.
package healthkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wondertwin-ai/healthbridge/internal/bridge"
	"github.com/wondertwin-ai/healthbridge/internal/provider"
	"golang.org/x/sync/errgroup"
)

// SummarySource labels summaries produced by this service.
const SummarySource = "Huawei Health Kit"

// Options configures a Service.
type Options struct {
	Bridge    Bridge
	Companion bridge.Companion
	Logger    *slog.Logger
	// Now and Location anchor the read windows. Defaults: time.Now, time.Local.
	Now      func() time.Time
	Location *time.Location
}

// Service wraps a Bridge for host code. It is safe for concurrent use.
type Service struct {
	bridge    Bridge
	companion bridge.Companion
	logger    *slog.Logger
	now       func() time.Time
	loc       *time.Location

	mu          sync.Mutex
	initialized bool
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	d := bridge.DefaultCompanion()
	if opts.Companion.Name == "" {
		opts.Companion.Name = d.Name
	}
	if opts.Companion.StoreName == "" {
		opts.Companion.StoreName = d.StoreName
	}
	return &Service{
		bridge:    opts.Bridge,
		companion: opts.Companion,
		logger:    opts.Logger.With("component", "healthkit"),
		now:       opts.Now,
		loc:       opts.Location,
	}
}

// InitResult is the outcome of Initialize.
type InitResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Limitation marks failures caused by the platform rather than the user.
	Limitation bool `json:"isHuaweiLimitation,omitempty"`
}

// Initialize requests the default scopes. A successful call is remembered;
// reads call it lazily until one succeeds.
func (s *Service) Initialize(ctx context.Context) InitResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked(ctx)
}

func (s *Service) initializeLocked(ctx context.Context) InitResult {
	env, err := s.bridge.RequestAuthorization(ctx, bridge.DefaultScopes)
	if err == nil && !env.Success {
		err = errors.New(env.Error)
		if env.Error == "" {
			err = errors.New("authorization denied")
		}
	}
	if err != nil {
		s.logger.Error("initializing health kit", "error", err)
		return InitResult{
			Success:    false,
			Message:    fmt.Sprintf("Initialization error: %v", err),
			Limitation: true,
		}
	}
	s.initialized = true
	s.logger.Info("health kit initialized")
	return InitResult{Success: true, Message: "Connected to " + s.companion.Name}
}

// Initialized reports whether authorization has succeeded.
func (s *Service) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Service) ensureInitialized(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		s.initializeLocked(ctx)
	}
}

func (s *Service) read(ctx context.Context, kind provider.DataKind, start, end time.Time, limit int) ([]provider.Sample, error) {
	s.ensureInitialized(ctx)

	opts := bridge.ReadOptions{DataType: string(kind)}
	st, et := start.UnixMilli(), end.UnixMilli()
	opts.StartTime, opts.EndTime = &st, &et
	if limit > 0 {
		opts.Limit = &limit
	}

	res, err := s.bridge.ReadData(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", kind, err)
	}
	if !res.Success {
		return nil, fmt.Errorf("reading %s: %s", kind, res.Error)
	}
	return res.Data, nil
}

func (s *Service) heartRate(ctx context.Context) (float64, bool, error) {
	end := s.now()
	samples, err := s.read(ctx, provider.HeartRate, end.Add(-24*time.Hour), end, 1)
	if err != nil || len(samples) == 0 {
		return 0, false, err
	}
	return samples[0].Value, true, nil
}

func (s *Service) steps(ctx context.Context) (int, error) {
	now := s.now().In(s.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	samples, err := s.read(ctx, provider.Steps, midnight, now, 0)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, sm := range samples {
		total += sm.Value
	}
	return int(total), nil
}

func (s *Service) sleep(ctx context.Context) (*provider.SleepDetail, error) {
	now := s.now().In(s.loc)
	y, m, d := now.Date()
	start := time.Date(y, m, d-1, 18, 0, 0, 0, s.loc)
	end := time.Date(y, m, d, 12, 0, 0, 0, s.loc)

	samples, err := s.read(ctx, provider.Sleep, start, end, 0)
	if err != nil || len(samples) == 0 {
		return nil, err
	}
	if samples[0].SleepDetail == nil {
		return &provider.SleepDetail{Quality: "unknown"}, nil
	}
	detail := *samples[0].SleepDetail
	if detail.Quality == "" {
		detail.Quality = "unknown"
	}
	return &detail, nil
}

// HeartRate returns the latest heart rate from the last 24 hours. ok is
// false when there is no reading or the read failed.
func (s *Service) HeartRate(ctx context.Context) (bpm float64, ok bool) {
	bpm, ok, err := s.heartRate(ctx)
	if err != nil {
		s.logger.Error("getting heart rate", "error", err)
	}
	return bpm, ok
}

// Steps returns today's step total since local midnight, 0 on failure.
func (s *Service) Steps(ctx context.Context) int {
	n, err := s.steps(ctx)
	if err != nil {
		s.logger.Error("getting steps", "error", err)
	}
	return n
}

// Sleep returns last night's sleep (18:00 yesterday to 12:00 today), or nil.
func (s *Service) Sleep(ctx context.Context) *provider.SleepDetail {
	detail, err := s.sleep(ctx)
	if err != nil {
		s.logger.Error("getting sleep data", "error", err)
	}
	return detail
}

// Status is the companion app status with a user-facing recommendation.
type Status struct {
	IsInstalled    bool    `json:"isInstalled"`
	Version        *string `json:"version"`
	IsSupported    bool    `json:"isSupported"`
	Recommendation string  `json:"recommendation"`
}

// Status reports whether the companion app can be used.
func (s *Service) Status(ctx context.Context) Status {
	st, err := s.bridge.CheckAppStatus(ctx)
	if err == nil && st.Error != "" {
		err = errors.New(st.Error)
	}
	if err != nil {
		s.logger.Warn("checking app status", "error", err)
		return Status{
			Recommendation: fmt.Sprintf("Install the %s app from %s to use health data.", s.companion.Name, s.companion.StoreName),
		}
	}

	out := Status{IsInstalled: st.IsInstalled, Version: st.Version, IsSupported: st.IsSupported}
	if st.IsInstalled {
		out.Recommendation = fmt.Sprintf("%s app detected. You can use the Health Kit integration.", s.companion.Name)
	} else {
		out.Recommendation = fmt.Sprintf("Install the %s app to use this feature.", s.companion.Name)
	}
	return out
}

// SummaryData holds the readings of a Summary. Fields the Health Kit cannot
// provide stay nil.
type SummaryData struct {
	HeartRate     float64               `json:"heartRate"`
	Steps         int                   `json:"steps"`
	Sleep         *provider.SleepDetail `json:"sleep"`
	Battery       *float64              `json:"battery"`
	Temperature   *float64              `json:"temperature"`
	BloodPressure *float64              `json:"bloodPressure"`
	SpO2          *float64              `json:"spO2"`
}

// Summary combines the three reads.
type Summary struct {
	Timestamp   time.Time   `json:"timestamp"`
	Source      string      `json:"source"`
	Data        SummaryData `json:"data"`
	Limitations []string    `json:"limitations"`
}

var summaryLimitations = []string{
	"Data comes from the Huawei Health app history",
	"No real-time sensor access",
	"Depends on the wearable syncing with the app",
}

// Summary reads heart rate, steps and sleep concurrently. A failed read
// leaves its field at the fallback (0 or nil); only a cancelled ctx fails
// the summary.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		Timestamp:   s.now().UTC(),
		Source:      SummarySource,
		Limitations: summaryLimitations,
	}

	var g errgroup.Group
	g.Go(func() error {
		sum.Data.HeartRate, _ = s.HeartRate(ctx)
		return nil
	})
	g.Go(func() error {
		sum.Data.Steps = s.Steps(ctx)
		return nil
	})
	g.Go(func() error {
		sum.Data.Sleep = s.Sleep(ctx)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("health summary: %w", err)
	}
	return sum, nil
}

// OpenApp opens the companion app (or its store listing) for a manual sync.
func (s *Service) OpenApp(ctx context.Context) bool {
	env, err := s.bridge.OpenApp(ctx)
	if err != nil {
		s.logger.Error("opening companion app", "error", err)
		return false
	}
	return env.Success
}

// ExportInstructions explains a manual data export from the companion app.
type ExportInstructions struct {
	Title string   `json:"title"`
	Steps []string `json:"steps"`
	Note  string   `json:"note"`
}

// ManualExportInstructions returns the manual export walkthrough.
func (s *Service) ManualExportInstructions() ExportInstructions {
	name := s.companion.Name
	return ExportInstructions{
		Title: "How to export data from " + name,
		Steps: []string{
			"1. Open the " + name + " app",
			`2. Go to "Me" > "Settings"`,
			`3. Select "Account and privacy"`,
			`4. Tap "Export data"`,
			"5. Choose the period and data types",
			"6. Export as a CSV/JSON file",
			"7. Import the file into this app",
		},
		Note: "This is the only fully reliable way to get complete data from the watch.",
	}
}
