package device

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wondertwin-ai/healthbridge/internal/store"
)

const (
	companion = "com.huawei.health"
	market    = "com.huawei.appmarket"
	listing   = "appmarket://details?id=com.huawei.health"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(eventType string, payload map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
}

func newDefaultSimulator(t *testing.T) *Simulator {
	t.Helper()
	p, err := LoadProfile("")
	require.NoError(t, err)
	return NewSimulator(p, store.NewClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)), nil)
}

func TestLookupAndVersion(t *testing.T) {
	sim := newDefaultSimulator(t)
	ctx := context.Background()

	pkg, err := sim.Lookup(ctx, companion)
	require.NoError(t, err)
	assert.Equal(t, "Huawei Health", pkg.Name)

	v, err := sim.Version(ctx, companion)
	require.NoError(t, err)
	assert.Equal(t, "14.1.1.300", v)

	_, err = sim.Lookup(ctx, "com.example.missing")
	assert.ErrorIs(t, err, ErrPackageNotFound)

	_, err = sim.Version(ctx, "com.example.missing")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestVersionUnavailable(t *testing.T) {
	sim := NewSimulator(&Profile{Packages: []Package{{ID: companion, VersionUnavailable: true, VersionName: "1.0"}}}, nil, nil)

	_, err := sim.Version(context.Background(), companion)
	assert.ErrorIs(t, err, ErrVersionUnavailable)
}

func TestLookupHonorsCancelledContext(t *testing.T) {
	sim := newDefaultSimulator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Lookup(ctx, companion)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, sim.OpenURI(ctx, listing), context.Canceled)
}

func TestLaunchPackage(t *testing.T) {
	sim := newDefaultSimulator(t)
	n := &recordingNotifier{}
	sim.SetNotifier(n)

	require.NoError(t, sim.LaunchPackage(context.Background(), companion))

	page := sim.Launches("", 0)
	require.Len(t, page.Data, 1)
	l := page.Data[0]
	assert.Equal(t, "launch_000001", l.ID)
	assert.Equal(t, LaunchPackage, l.Kind)
	assert.Equal(t, companion, l.Target)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), l.LaunchedAt)
	assert.Equal(t, []string{EventAppLaunched}, n.events)
}

func TestLaunchPackageErrors(t *testing.T) {
	sim := NewSimulator(&Profile{Packages: []Package{{ID: companion, Launchable: false}}}, nil, nil)
	ctx := context.Background()

	assert.ErrorIs(t, sim.LaunchPackage(ctx, companion), ErrNotLaunchable)
	assert.ErrorIs(t, sim.LaunchPackage(ctx, market), ErrPackageNotFound)
	assert.Zero(t, sim.Launches("", 0).Total)
}

func TestOpenURI(t *testing.T) {
	sim := newDefaultSimulator(t)
	n := &recordingNotifier{}
	sim.SetNotifier(n)

	require.NoError(t, sim.OpenURI(context.Background(), listing))
	l := sim.Launches("", 0).Data[0]
	assert.Equal(t, LaunchURI, l.Kind)
	assert.Equal(t, market, l.Handler)
	assert.Equal(t, []string{EventStoreOpened}, n.events)

	assert.ErrorIs(t, sim.OpenURI(context.Background(), "market://details?id=x"), ErrNoHandler)
	assert.ErrorIs(t, sim.OpenURI(context.Background(), "not a uri"), ErrNoHandler)
}

func TestInstallUninstall(t *testing.T) {
	sim := newDefaultSimulator(t)

	assert.True(t, sim.Uninstall(companion))
	assert.False(t, sim.Uninstall(companion))
	_, err := sim.Lookup(context.Background(), companion)
	assert.ErrorIs(t, err, ErrPackageNotFound)

	sim.Install(Package{ID: companion, Name: "Huawei Health", VersionName: "15.0.0", Launchable: true})
	v, err := sim.Version(context.Background(), companion)
	require.NoError(t, err)
	assert.Equal(t, "15.0.0", v)
}

func TestResetRestoresProfile(t *testing.T) {
	sim := newDefaultSimulator(t)
	sim.Uninstall(companion)
	require.NoError(t, sim.OpenURI(context.Background(), listing))

	sim.Reset()

	_, err := sim.Lookup(context.Background(), companion)
	assert.NoError(t, err)
	assert.Zero(t, sim.Launches("", 0).Total)
	assert.Len(t, sim.Packages(), 2)
}

func TestResetNeverHidesCompanion(t *testing.T) {
	sim := newDefaultSimulator(t)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 500 {
			sim.Reset()
		}
	}()

	for range 500 {
		_, err := sim.Lookup(ctx, companion)
		require.NoError(t, err)
	}
	<-done
	assert.Equal(t, companion, sim.Packages()[0].ID, "profile install order is kept")
}

func TestSwitchProfile(t *testing.T) {
	sim := newDefaultSimulator(t)
	p, err := LoadProfile("store-only")
	require.NoError(t, err)

	sim.SwitchProfile(p)
	assert.Equal(t, "store-only", sim.Profile())
	_, err = sim.Lookup(context.Background(), companion)
	assert.ErrorIs(t, err, ErrPackageNotFound)

	sim.Reset()
	assert.Len(t, sim.Packages(), 1)
}

func TestSnapshotRoundTrip(t *testing.T) {
	sim := newDefaultSimulator(t)
	require.NoError(t, sim.LaunchPackage(context.Background(), companion))

	data, err := json.Marshal(sim.Snapshot())
	require.NoError(t, err)

	other := NewSimulator(nil, nil, nil)
	require.NoError(t, other.LoadState(data))
	assert.Len(t, other.Packages(), 2)
	assert.Equal(t, 1, other.Launches("", 0).Total)

	require.NoError(t, other.LaunchPackage(context.Background(), market))
	assert.Equal(t, "launch_000002", other.Launches("launch_000001", 0).Data[0].ID)
}

func TestLoadStateFillsIDs(t *testing.T) {
	sim := NewSimulator(nil, nil, nil)
	err := sim.LoadState([]byte(`{"packages":{"com.huawei.health":{"name":"Huawei Health","launchable":true}}}`))
	require.NoError(t, err)

	pkg, err := sim.Lookup(context.Background(), companion)
	require.NoError(t, err)
	assert.Equal(t, companion, pkg.ID)
}

func TestLoadStateRejectsBadInput(t *testing.T) {
	sim := newDefaultSimulator(t)

	assert.Error(t, sim.LoadState([]byte(`{bad`)))
	assert.Error(t, sim.LoadState([]byte(`{"packages":{"a":{"id":"b"}}}`)))
	assert.Len(t, sim.Packages(), 2, "rejected state must not be applied")
}
