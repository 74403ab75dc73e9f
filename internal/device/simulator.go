package device

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wondertwin-ai/healthbridge/internal/store"
)

// MemoryStore holds the simulated handset state.
type MemoryStore struct {
	Packages *store.Store[Package]
	Launches *store.Store[Launch]
	Clock    *store.Clock
}

// NewMemoryStore creates an empty store on the given clock.
func NewMemoryStore(clock *store.Clock) *MemoryStore {
	if clock == nil {
		clock = store.NewClock()
	}
	return &MemoryStore{
		Packages: store.New[Package]("pkg"),
		Launches: store.New[Launch]("launch"),
		Clock:    clock,
	}
}

// Simulator is an in-memory handset. It implements Locator and Launcher for
// the bridge and admin.StateStore for the control plane.
type Simulator struct {
	mu       sync.RWMutex
	profile  *Profile
	notifier Notifier

	state  *MemoryStore
	logger *slog.Logger
}

// NewSimulator creates a simulator with profile installed. A nil profile
// starts with no packages.
func NewSimulator(profile *Profile, clock *store.Clock, logger *slog.Logger) *Simulator {
	if profile == nil {
		profile = &Profile{Name: "empty"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Simulator{
		profile: profile,
		state:   NewMemoryStore(clock),
		logger:  logger,
	}
	s.install(profile)
	return s
}

func packageID(p Package) string { return p.ID }

// install replaces the installed packages with those of p in one swap, so a
// concurrent Lookup never sees a half-installed profile.
func (s *Simulator) install(p *Profile) {
	s.state.Packages.Replace(p.Packages, packageID)
}

// SetNotifier sets the receiver for launch events.
func (s *Simulator) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// Profile returns the name of the active profile.
func (s *Simulator) Profile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.Name
}

// Lookup returns the installed package with the given id.
func (s *Simulator) Lookup(ctx context.Context, pkg string) (Package, error) {
	if err := ctx.Err(); err != nil {
		return Package{}, err
	}
	p, ok := s.state.Packages.Get(pkg)
	if !ok {
		return Package{}, fmt.Errorf("%s: %w", pkg, ErrPackageNotFound)
	}
	return p, nil
}

// Version returns the installed version name of pkg.
func (s *Simulator) Version(ctx context.Context, pkg string) (string, error) {
	p, err := s.Lookup(ctx, pkg)
	if err != nil {
		return "", err
	}
	if p.VersionUnavailable || p.VersionName == "" {
		return "", fmt.Errorf("%s: %w", pkg, ErrVersionUnavailable)
	}
	return p.VersionName, nil
}

// LaunchPackage starts pkg if it is installed and has a launch intent.
func (s *Simulator) LaunchPackage(ctx context.Context, pkg string) error {
	p, err := s.Lookup(ctx, pkg)
	if err != nil {
		return err
	}
	if !p.Launchable {
		return fmt.Errorf("%s: %w", pkg, ErrNotLaunchable)
	}
	s.record(LaunchPackage, pkg, pkg, EventAppLaunched)
	return nil
}

// OpenURI hands uri to the first installed package claiming its scheme.
func (s *Simulator) OpenURI(ctx context.Context, uri string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, p := range s.state.Packages.List() {
		if p.HandlesURI(uri) {
			s.record(LaunchURI, uri, p.ID, EventStoreOpened)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", uri, ErrNoHandler)
}

func (s *Simulator) record(kind LaunchKind, target, handler, event string) {
	l := Launch{
		ID:         s.state.Launches.NextID(),
		Kind:       kind,
		Target:     target,
		Handler:    handler,
		LaunchedAt: s.state.Clock.Now(),
	}
	s.state.Launches.Set(l.ID, l)
	s.logger.Info("device launch", "kind", kind, "target", target, "handler", handler)

	s.mu.RLock()
	n := s.notifier
	s.mu.RUnlock()
	if n != nil {
		n.Notify(event, map[string]any{
			"launch_id": l.ID,
			"target":    target,
			"handler":   handler,
		})
	}
}

// Install adds or replaces a package.
func (s *Simulator) Install(p Package) {
	s.state.Packages.Set(p.ID, p)
}

// Uninstall removes a package and reports whether it was installed.
func (s *Simulator) Uninstall(id string) bool {
	return s.state.Packages.Delete(id)
}

// Packages lists installed packages in install order.
func (s *Simulator) Packages() []Package {
	return s.state.Packages.List()
}

// Launches pages through the launch history.
func (s *Simulator) Launches(cursor string, limit int) store.Page[Launch] {
	return s.state.Launches.Paginate(cursor, limit)
}

// stateSnapshot is the JSON-serializable state for admin endpoints.
type stateSnapshot struct {
	Profile  string             `json:"profile"`
	Packages map[string]Package `json:"packages"`
	Launches map[string]Launch  `json:"launches"`
}

// Snapshot returns the full state as a JSON-serializable value.
func (s *Simulator) Snapshot() any {
	return stateSnapshot{
		Profile:  s.Profile(),
		Packages: s.state.Packages.Snapshot(),
		Launches: s.state.Launches.Snapshot(),
	}
}

// LoadState replaces installed packages and launch history from a JSON
// snapshot. Packages without an id take their map key.
func (s *Simulator) LoadState(data []byte) error {
	var snap stateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding device state: %w", err)
	}
	for id, p := range snap.Packages {
		if p.ID == "" {
			p.ID = id
			snap.Packages[id] = p
		}
		if p.ID != id {
			return fmt.Errorf("package key %q does not match id %q", id, p.ID)
		}
	}

	if snap.Packages == nil {
		snap.Packages = map[string]Package{}
	}
	s.state.Packages.LoadSnapshot(snap.Packages)
	if snap.Launches == nil {
		s.state.Launches.Reset()
	} else {
		s.state.Launches.LoadSnapshot(snap.Launches)
	}
	return nil
}

// Reset reinstalls the active profile and clears launch history.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// SwitchProfile replaces the active profile and resets to it.
func (s *Simulator) SwitchProfile(p *Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
	s.resetLocked()
}

func (s *Simulator) resetLocked() {
	s.install(s.profile)
	s.state.Launches.Reset()
}
