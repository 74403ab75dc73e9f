// Package mobile exposes the health bridge to native host code through a
// gomobile-compatible surface: basic types in, JSON strings out.
//
// Native code implements NativePlatform for package lookup and launching.
// NewSimulatedBridge runs against a simulated device instead.
package mobile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wondertwin-ai/healthbridge/internal/bridge"
	"github.com/wondertwin-ai/healthbridge/internal/device"
	"github.com/wondertwin-ai/healthbridge/internal/healthkit"
	"github.com/wondertwin-ai/healthbridge/internal/provider"
	"github.com/wondertwin-ai/healthbridge/internal/store"
	"github.com/wondertwin-ai/healthbridge/internal/twincore"
)

// NativePlatform is implemented by the host's native layer.
type NativePlatform interface {
	IsPackageInstalled(pkg string) bool
	// PackageVersion returns "" when the version cannot be read.
	PackageVersion(pkg string) string
	LaunchPackage(pkg string) bool
	OpenURI(uri string) bool
}

// platformDevice adapts a NativePlatform to the device interfaces.
type platformDevice struct {
	p NativePlatform
}

func (d platformDevice) Lookup(ctx context.Context, pkg string) (device.Package, error) {
	if !d.p.IsPackageInstalled(pkg) {
		return device.Package{}, fmt.Errorf("%s: %w", pkg, device.ErrPackageNotFound)
	}
	return device.Package{ID: pkg, Name: pkg, Launchable: true}, nil
}

func (d platformDevice) Version(ctx context.Context, pkg string) (string, error) {
	v := d.p.PackageVersion(pkg)
	if v == "" {
		return "", fmt.Errorf("%s: %w", pkg, device.ErrVersionUnavailable)
	}
	return v, nil
}

func (d platformDevice) LaunchPackage(ctx context.Context, pkg string) error {
	if !d.p.LaunchPackage(pkg) {
		return fmt.Errorf("%s: %w", pkg, device.ErrNotLaunchable)
	}
	return nil
}

func (d platformDevice) OpenURI(ctx context.Context, uri string) error {
	if !d.p.OpenURI(uri) {
		return fmt.Errorf("%s: %w", uri, device.ErrNoHandler)
	}
	return nil
}

// Bridge is the host-facing handle. Every method returns a JSON document.
type Bridge struct {
	bridge  *bridge.HealthBridge
	service *healthkit.Service
	timeout time.Duration
}

// NewBridge creates a bridge over native code with the mock provider. A
// zero seed draws a random one.
func NewBridge(platform NativePlatform, seed int64, verbose bool) (*Bridge, error) {
	if platform == nil {
		return nil, fmt.Errorf("mobile: platform is required")
	}
	d := platformDevice{p: platform}
	return newBridge(d, d, time.Now, seed, twincore.NewLogger(verbose))
}

// NewSimulatedBridge creates a bridge over a simulated device loaded from a
// built-in profile name.
func NewSimulatedBridge(profile string, seed int64, verbose bool) (*Bridge, error) {
	p, err := device.BuiltinProfile(profile)
	if err != nil {
		return nil, err
	}
	clock := store.NewClock()
	logger := twincore.NewLogger(verbose)
	sim := device.NewSimulator(p, clock, logger)
	return newBridge(sim, sim, clock.Now, seed, logger)
}

func newBridge(loc device.Locator, launch device.Launcher, now func() time.Time, seed int64, logger *slog.Logger) (*Bridge, error) {
	logger = logger.With("surface", "mobile")
	prov := provider.NewMock(provider.MockConfig{Seed: uint64(seed), Logger: logger})
	b, err := bridge.New(bridge.Options{
		Locator:  loc,
		Launcher: launch,
		Provider: prov,
		Logger:   logger,
		Now:      now,
	})
	if err != nil {
		return nil, err
	}
	return &Bridge{
		bridge:  b,
		service: healthkit.New(healthkit.Options{Bridge: healthkit.InProcess(b), Logger: logger, Now: now}),
		timeout: 30 * time.Second,
	}, nil
}

// SetTimeoutMillis bounds each call. Zero or less means no bound.
func (b *Bridge) SetTimeoutMillis(ms int64) {
	b.timeout = time.Duration(ms) * time.Millisecond
}

func (b *Bridge) callContext() (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), b.timeout)
}

func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Default().Error("encoding mobile result", "error", err)
		return `{"success":false,"error":"internal encoding error","errorCode":"internal"}`
	}
	return string(data)
}

func invalid(err error) string {
	return encode(bridge.Envelope{
		Success:   false,
		Error:     "Invalid request: " + err.Error(),
		ErrorCode: bridge.CodeInvalidRequest,
	})
}

func decode(input string, v any) error {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	return json.Unmarshal([]byte(input), v)
}

// RequestAuthorization takes a JSON array of scopes (or "" for the
// defaults) and returns an envelope.
func (b *Bridge) RequestAuthorization(scopesJSON string) string {
	var scopes []string
	if err := decode(scopesJSON, &scopes); err != nil {
		return invalid(err)
	}
	ctx, cancel := b.callContext()
	defer cancel()
	return encode(b.bridge.RequestAuthorization(ctx, scopes))
}

// ReadData takes a JSON read request and returns a read result.
func (b *Bridge) ReadData(requestJSON string) string {
	var opts bridge.ReadOptions
	if err := decode(requestJSON, &opts); err != nil {
		return invalid(err)
	}
	ctx, cancel := b.callContext()
	defer cancel()
	return encode(b.bridge.ReadData(ctx, opts))
}

// CheckAppStatus returns the companion app status.
func (b *Bridge) CheckAppStatus() string {
	ctx, cancel := b.callContext()
	defer cancel()
	return encode(b.bridge.CheckAppStatus(ctx))
}

// OpenApp launches the companion app or its store listing.
func (b *Bridge) OpenApp() string {
	ctx, cancel := b.callContext()
	defer cancel()
	return encode(b.bridge.OpenApp(ctx))
}

// HealthSummary returns the combined heart rate, steps and sleep summary.
// Failed reads leave their fields empty; a failure envelope is returned only
// when the call times out.
func (b *Bridge) HealthSummary() string {
	ctx, cancel := b.callContext()
	defer cancel()
	sum, err := b.service.Summary(ctx)
	if err != nil {
		return encode(bridge.Envelope{Success: false, Error: err.Error(), ErrorCode: bridge.CodeInternal})
	}
	return encode(sum)
}

// ExportInstructions returns the manual data export walkthrough.
func (b *Bridge) ExportInstructions() string {
	return encode(b.service.ManualExportInstructions())
}
