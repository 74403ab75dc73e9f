// Package bridge exposes a mobile health SDK to a cross-platform host through
// four operations: authorization, data read, app status and app launch.
//
// Every operation resolves a result value. Environment problems, provider
// errors and panics all come back as failure-shaped results so the host never
// has to handle a Go error or a crash from this layer.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wondertwin-ai/healthbridge/internal/device"
	"github.com/wondertwin-ai/healthbridge/internal/provider"
)

const simulatedNote = "Simulated data - would be real with proper Huawei Health Kit SDK"

// Options wires a HealthBridge to its collaborators.
type Options struct {
	Locator   device.Locator
	Launcher  device.Launcher
	Provider  provider.HealthDataProvider
	Companion Companion

	Logger *slog.Logger
	// Registerer receives the operation metrics. Nil skips registration.
	Registerer prometheus.Registerer
	// Now supplies the default read end time. Defaults to time.Now.
	Now func() time.Time
}

// HealthBridge is the shim between the host application and the health
// SDK. It holds no per-call state and is safe for concurrent use.
type HealthBridge struct {
	locator   device.Locator
	launcher  device.Launcher
	provider  provider.HealthDataProvider
	companion Companion
	logger    *slog.Logger
	metrics   *metrics
	now       func() time.Time
}

// New creates a HealthBridge.
func New(opts Options) (*HealthBridge, error) {
	if opts.Locator == nil || opts.Launcher == nil {
		return nil, errors.New("bridge: locator and launcher are required")
	}
	if opts.Provider == nil {
		return nil, errors.New("bridge: provider is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m, err := newMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}
	return &HealthBridge{
		locator:   opts.Locator,
		launcher:  opts.Launcher,
		provider:  opts.Provider,
		companion: opts.Companion.withDefaults(),
		logger:    opts.Logger.With("component", "bridge", "provider", opts.Provider.Name()),
		metrics:   m,
		now:       opts.Now,
	}, nil
}

// Companion returns the companion app the bridge fronts.
func (b *HealthBridge) Companion() Companion {
	return b.companion
}

// installed reports whether the companion app is present. A missing package
// is not an error; any other locator failure is.
func (b *HealthBridge) installed(ctx context.Context) (bool, error) {
	_, err := b.locator.Lookup(ctx, b.companion.Package)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, device.ErrPackageNotFound):
		return false, nil
	default:
		return false, err
	}
}

func failure(format string, args ...any) Envelope {
	return Envelope{Success: false, Error: fmt.Sprintf(format, args...)}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, provider.ErrNotAuthorized):
		return CodeNotAuthorized
	case errors.Is(err, provider.ErrUnsupportedKind):
		return CodeUnsupportedKind
	default:
		return CodeInternal
	}
}

// RequestAuthorization asks the provider to authorize scopes. It fails with
// the install_app action when the companion app is missing. An empty scope
// list requests DefaultScopes.
func (b *HealthBridge) RequestAuthorization(ctx context.Context, scopes []string) (env Envelope) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic requesting authorization", "panic", r)
			env = failure("Failed to request authorization: %v", r)
			env.ErrorCode = CodeInternal
		}
		b.metrics.observe(opAuthorize, start, env.Success)
	}()

	b.logger.Debug("requesting authorization", "scopes", len(scopes))

	ok, err := b.installed(ctx)
	if err != nil {
		b.logger.Error("checking companion app", "error", err)
		env = failure("Failed to request authorization: %v", err)
		env.ErrorCode = CodeInternal
		return env
	}
	if !ok {
		env = failure("%s app not installed. Please install from %s.", b.companion.Name, b.companion.StoreName)
		env.Action = ActionInstallApp
		return env
	}

	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	if err := b.provider.Authorize(ctx, scopes); err != nil {
		b.logger.Warn("authorization failed", "error", err)
		env = failure("Authorization failed: %v", err)
		env.ErrorCode = errorCode(err)
		return env
	}

	if b.provider.Simulated() {
		return Envelope{Success: true, Message: "Health Kit authorization simulated (would be real with proper SDK)"}
	}
	return Envelope{Success: true, Message: "Health Kit authorized successfully"}
}

// ReadData returns samples of one data type. Unknown types succeed with no
// samples without reaching the provider. Invalid time ranges or limits
// resolve a failure result.
func (b *HealthBridge) ReadData(ctx context.Context, opts ReadOptions) (res ReadResult) {
	start := time.Now()
	params := normalize(opts, b.now().UnixMilli())
	res = ReadResult{
		DataType:  params.DataType,
		StartTime: params.StartTime,
		EndTime:   params.EndTime,
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic reading health data", "panic", r, "data_type", params.DataType)
			res.Envelope = failure("Failed to read health data: %v", r)
			res.ErrorCode = CodeInternal
			res.Data = nil
		}
		b.metrics.observe(opRead, start, res.Success)
	}()

	b.logger.Debug("reading health data",
		"data_type", params.DataType,
		"start_time", params.StartTime,
		"end_time", params.EndTime,
		"limit", params.Limit,
	)

	if err := params.validate(); err != nil {
		res.Envelope = failure("Failed to read health data: %v", err)
		res.ErrorCode = CodeInvalidRequest
		return res
	}

	if kind := provider.DataKind(params.DataType); !kind.Known() {
		b.logger.Warn("unknown data type requested", "data_type", params.DataType)
		res.Envelope = Envelope{Success: true}
		if b.provider.Simulated() {
			res.Note = simulatedNote
		}
		res.Data = []provider.Sample{}
		return res
	}

	samples, err := b.provider.Read(ctx, params.request())
	if err != nil {
		b.logger.Error("reading health data", "error", err, "data_type", params.DataType)
		res.Envelope = failure("Failed to read health data: %v", err)
		res.ErrorCode = errorCode(err)
		return res
	}
	if samples == nil {
		samples = []provider.Sample{}
	}

	res.Envelope = Envelope{Success: true}
	if b.provider.Simulated() {
		res.Note = simulatedNote
	}
	res.Data = samples
	return res
}

// CheckAppStatus reports whether the companion app is installed and which
// version it is. A version lookup failure degrades to "unknown".
func (b *HealthBridge) CheckAppStatus(ctx context.Context) (st AppStatus) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic checking app status", "panic", r)
			st = AppStatus{Error: fmt.Sprint(r)}
		}
		b.metrics.observe(opStatus, start, st.Error == "")
	}()

	ok, err := b.installed(ctx)
	if err != nil {
		b.logger.Error("checking companion app", "error", err)
		return AppStatus{Error: err.Error()}
	}
	st = AppStatus{IsInstalled: ok, IsSupported: true}
	if !ok {
		return st
	}

	version, err := b.locator.Version(ctx, b.companion.Package)
	if err != nil {
		b.logger.Debug("companion version unavailable", "error", err)
		version = "unknown"
	}
	st.Version = &version
	return st
}

// OpenApp launches the companion app, falling back to its store listing.
// It fails only when neither can be opened.
func (b *HealthBridge) OpenApp(ctx context.Context) (env Envelope) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic opening app", "panic", r)
			env = failure("Failed to open %s: %v", b.companion.Name, r)
			env.ErrorCode = CodeInternal
		}
		b.metrics.observe(opOpen, start, env.Success)
	}()

	launchErr := b.launcher.LaunchPackage(ctx, b.companion.Package)
	if launchErr == nil {
		return Envelope{Success: true, Message: fmt.Sprintf("%s app opened successfully", b.companion.Name)}
	}
	b.logger.Info("companion app not launchable, opening store listing", "error", launchErr)

	if err := b.launcher.OpenURI(ctx, b.companion.StoreURI); err != nil {
		b.logger.Error("opening store listing", "error", err, "uri", b.companion.StoreURI)
		return failure("Failed to open %s: %s not installed and %s not available",
			b.companion.Name, b.companion.Name, b.companion.StoreName)
	}
	return Envelope{Success: true, Message: fmt.Sprintf("Opening %s to install %s", b.companion.StoreName, b.companion.Name)}
}
