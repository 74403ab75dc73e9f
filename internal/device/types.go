// Package device simulates the parts of a handset the health bridge talks to:
// the installed-package registry and the launcher that starts apps or opens
// store listings.
package device

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

var (
	// ErrPackageNotFound is returned when a package is not installed.
	ErrPackageNotFound = errors.New("package not found")
	// ErrVersionUnavailable is returned when a package reports no version.
	ErrVersionUnavailable = errors.New("package version unavailable")
	// ErrNotLaunchable is returned when a package has no launch intent.
	ErrNotLaunchable = errors.New("package has no launch intent")
	// ErrNoHandler is returned when no installed package handles a URI.
	ErrNoHandler = errors.New("no installed package handles uri")
)

// Locator answers whether a package is installed and which version it is.
type Locator interface {
	Lookup(ctx context.Context, pkg string) (Package, error)
	Version(ctx context.Context, pkg string) (string, error)
}

// Launcher starts packages and opens URIs (store listings, deep links).
type Launcher interface {
	LaunchPackage(ctx context.Context, pkg string) error
	OpenURI(ctx context.Context, uri string) error
}

// Notifier receives device events. The webhook dispatcher implements it.
type Notifier interface {
	Notify(eventType string, payload map[string]any)
}

// Event types emitted by the simulator.
const (
	EventAppLaunched = "app.launched"
	EventStoreOpened = "store.opened"
)

// Package is an installed application.
type Package struct {
	ID                 string   `json:"id" yaml:"id"`
	Name               string   `json:"name" yaml:"name"`
	VersionName        string   `json:"versionName,omitempty" yaml:"version"`
	Launchable         bool     `json:"launchable" yaml:"launchable"`
	VersionUnavailable bool     `json:"versionUnavailable,omitempty" yaml:"version_unavailable"`
	Handles            []string `json:"handles,omitempty" yaml:"handles"`
}

// HandlesURI reports whether the package claims the scheme of uri.
func (p Package) HandlesURI(uri string) bool {
	scheme, _, ok := strings.Cut(uri, "://")
	if !ok {
		return false
	}
	return slices.Contains(p.Handles, scheme)
}

// LaunchKind distinguishes package launches from URI opens.
type LaunchKind string

const (
	LaunchPackage LaunchKind = "package"
	LaunchURI     LaunchKind = "uri"
)

// Launch records one successful launch.
type Launch struct {
	ID         string     `json:"id"`
	Kind       LaunchKind `json:"kind"`
	Target     string     `json:"target"`
	Handler    string     `json:"handler,omitempty"`
	LaunchedAt time.Time  `json:"launchedAt"`
}
