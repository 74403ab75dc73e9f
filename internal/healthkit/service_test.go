package healthkit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wondertwin-ai/healthbridge/internal/bridge"
	"github.com/wondertwin-ai/healthbridge/internal/device"
	"github.com/wondertwin-ai/healthbridge/internal/provider"
	"github.com/wondertwin-ai/healthbridge/internal/store"
)

var (
	saoPaulo = time.FixedZone("BRT", -3*3600)
	fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, saoPaulo)
)

// fakeBridge records read requests and returns canned results.
type fakeBridge struct {
	mu      sync.Mutex
	authEnv bridge.Envelope
	authErr error
	authN   int
	results map[string]bridge.ReadResult
	readErr error
	reads   []bridge.ReadOptions
	status  bridge.AppStatus
	statErr error
	openEnv bridge.Envelope
	openErr error
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		authEnv: bridge.Envelope{Success: true},
		results: map[string]bridge.ReadResult{},
	}
}

func (f *fakeBridge) RequestAuthorization(ctx context.Context, scopes []string) (bridge.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authN++
	return f.authEnv, f.authErr
}

func (f *fakeBridge) ReadData(ctx context.Context, opts bridge.ReadOptions) (bridge.ReadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, opts)
	if f.readErr != nil {
		return bridge.ReadResult{}, f.readErr
	}
	if res, ok := f.results[opts.DataType]; ok {
		return res, nil
	}
	return bridge.ReadResult{Envelope: bridge.Envelope{Success: true}, Data: []provider.Sample{}}, nil
}

func (f *fakeBridge) CheckAppStatus(ctx context.Context) (bridge.AppStatus, error) {
	return f.status, f.statErr
}

func (f *fakeBridge) OpenApp(ctx context.Context) (bridge.Envelope, error) {
	return f.openEnv, f.openErr
}

func (f *fakeBridge) readFor(kind string) bridge.ReadOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reads {
		if r.DataType == kind {
			return r
		}
	}
	return bridge.ReadOptions{}
}

func newTestService(b Bridge) *Service {
	return New(Options{
		Bridge:   b,
		Now:      func() time.Time { return fixedNow },
		Location: saoPaulo,
	})
}

func newInProcessService(t *testing.T, profile string) *Service {
	t.Helper()
	prof, err := device.LoadProfile(profile)
	require.NoError(t, err)
	sim := device.NewSimulator(prof, store.NewClockAt(fixedNow), nil)
	b, err := bridge.New(bridge.Options{
		Locator:  sim,
		Launcher: sim,
		Provider: provider.NewMock(provider.MockConfig{Seed: 7}),
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return newTestService(InProcess(b))
}

// ---------------------------------------------------------------------------
// Initialize
// ---------------------------------------------------------------------------

func TestInitialize(t *testing.T) {
	svc := newInProcessService(t, "default")

	res := svc.Initialize(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, "Connected to Huawei Health", res.Message)
	assert.True(t, svc.Initialized())
}

func TestInitializeAppMissing(t *testing.T) {
	svc := newInProcessService(t, "store-only")

	res := svc.Initialize(context.Background())
	assert.False(t, res.Success)
	assert.True(t, res.Limitation)
	assert.Contains(t, res.Message, "not installed")
	assert.False(t, svc.Initialized())
}

func TestInitializeTransportError(t *testing.T) {
	fb := newFakeBridge()
	fb.authErr = errors.New("connection refused")

	res := newTestService(fb).Initialize(context.Background())
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "connection refused")
}

func TestReadsInitializeOnce(t *testing.T) {
	fb := newFakeBridge()
	svc := newTestService(fb)

	svc.Steps(context.Background())
	svc.Steps(context.Background())
	assert.Equal(t, 1, fb.authN)
}

func TestReadsRetryFailedInitialization(t *testing.T) {
	fb := newFakeBridge()
	fb.authEnv = bridge.Envelope{Success: false}
	svc := newTestService(fb)

	svc.Steps(context.Background())
	svc.Steps(context.Background())
	assert.Equal(t, 2, fb.authN)
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func TestHeartRateWindow(t *testing.T) {
	fb := newFakeBridge()
	fb.results["heartrate"] = bridge.ReadResult{
		Envelope: bridge.Envelope{Success: true},
		Data:     []provider.Sample{{Value: 72, Unit: "bpm"}, {Value: 90, Unit: "bpm"}},
	}
	svc := newTestService(fb)

	bpm, ok := svc.HeartRate(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 72.0, bpm)

	req := fb.readFor("heartrate")
	require.NotNil(t, req.Limit)
	assert.Equal(t, 1, *req.Limit)
	assert.Equal(t, fixedNow.UnixMilli(), *req.EndTime)
	assert.Equal(t, fixedNow.Add(-24*time.Hour).UnixMilli(), *req.StartTime)
}

func TestHeartRateEmptyOrFailed(t *testing.T) {
	fb := newFakeBridge()
	svc := newTestService(fb)

	_, ok := svc.HeartRate(context.Background())
	assert.False(t, ok)

	fb.results["heartrate"] = bridge.ReadResult{Envelope: bridge.Envelope{Success: false, Error: "boom"}}
	_, ok = svc.HeartRate(context.Background())
	assert.False(t, ok)
}

func TestStepsSumSinceMidnight(t *testing.T) {
	fb := newFakeBridge()
	fb.results["steps"] = bridge.ReadResult{
		Envelope: bridge.Envelope{Success: true},
		Data:     []provider.Sample{{Value: 1200}, {Value: 800}},
	}
	svc := newTestService(fb)

	assert.Equal(t, 2000, svc.Steps(context.Background()))

	req := fb.readFor("steps")
	midnight := time.Date(2026, 3, 1, 0, 0, 0, 0, saoPaulo)
	assert.Equal(t, midnight.UnixMilli(), *req.StartTime)
	assert.Nil(t, req.Limit)
}

func TestStepsFailureIsZero(t *testing.T) {
	fb := newFakeBridge()
	fb.readErr = errors.New("timeout")
	assert.Equal(t, 0, newTestService(fb).Steps(context.Background()))
}

func TestSleepWindowAndDefaults(t *testing.T) {
	fb := newFakeBridge()
	fb.results["sleep"] = bridge.ReadResult{
		Envelope: bridge.Envelope{Success: true},
		Data:     []provider.Sample{{Value: 7, Unit: "h"}},
	}
	svc := newTestService(fb)

	detail := svc.Sleep(context.Background())
	require.NotNil(t, detail)
	assert.Equal(t, "unknown", detail.Quality)

	req := fb.readFor("sleep")
	assert.Equal(t, time.Date(2026, 2, 28, 18, 0, 0, 0, saoPaulo).UnixMilli(), *req.StartTime)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, saoPaulo).UnixMilli(), *req.EndTime)
}

func TestInProcessReads(t *testing.T) {
	svc := newInProcessService(t, "default")
	ctx := context.Background()

	bpm, ok := svc.HeartRate(ctx)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, bpm, 70.0)
	assert.Less(t, bpm, 100.0)

	steps := svc.Steps(ctx)
	assert.GreaterOrEqual(t, steps, 5000)
	assert.Less(t, steps, 15000)

	sleep := svc.Sleep(ctx)
	require.NotNil(t, sleep)
	assert.Contains(t, []string{"good", "fair"}, sleep.Quality)
	assert.LessOrEqual(t, sleep.DeepSleep+sleep.LightSleep, sleep.Duration)
}

// ---------------------------------------------------------------------------
// Status / OpenApp / instructions
// ---------------------------------------------------------------------------

func TestStatus(t *testing.T) {
	svc := newInProcessService(t, "default")
	st := svc.Status(context.Background())
	assert.True(t, st.IsInstalled)
	require.NotNil(t, st.Version)
	assert.Contains(t, st.Recommendation, "detected")

	absent := newInProcessService(t, "bare").Status(context.Background())
	assert.False(t, absent.IsInstalled)
	assert.Nil(t, absent.Version)
	assert.Equal(t, "Install the Huawei Health app to use this feature.", absent.Recommendation)
}

func TestStatusOnError(t *testing.T) {
	fb := newFakeBridge()
	fb.statErr = errors.New("unreachable")

	st := newTestService(fb).Status(context.Background())
	assert.False(t, st.IsInstalled)
	assert.False(t, st.IsSupported)
	assert.Nil(t, st.Version)
	assert.Contains(t, st.Recommendation, "AppGallery")

	fb.statErr = nil
	fb.status = bridge.AppStatus{Error: "package manager crashed"}
	st = newTestService(fb).Status(context.Background())
	assert.Contains(t, st.Recommendation, "AppGallery")
}

func TestOpenApp(t *testing.T) {
	assert.True(t, newInProcessService(t, "default").OpenApp(context.Background()))
	assert.True(t, newInProcessService(t, "store-only").OpenApp(context.Background()))
	assert.False(t, newInProcessService(t, "bare").OpenApp(context.Background()))

	fb := newFakeBridge()
	fb.openErr = errors.New("unreachable")
	assert.False(t, newTestService(fb).OpenApp(context.Background()))
}

func TestManualExportInstructions(t *testing.T) {
	ins := newTestService(newFakeBridge()).ManualExportInstructions()
	assert.Contains(t, ins.Title, "Huawei Health")
	assert.Len(t, ins.Steps, 7)
	assert.NotEmpty(t, ins.Note)
}

// ---------------------------------------------------------------------------
// Summary
// ---------------------------------------------------------------------------

func TestSummary(t *testing.T) {
	svc := newInProcessService(t, "default")

	sum, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SummarySource, sum.Source)
	assert.Equal(t, fixedNow.UTC(), sum.Timestamp)
	assert.GreaterOrEqual(t, sum.Data.HeartRate, 70.0)
	assert.GreaterOrEqual(t, sum.Data.Steps, 5000)
	require.NotNil(t, sum.Data.Sleep)
	assert.Nil(t, sum.Data.Battery)
	assert.Nil(t, sum.Data.SpO2)
	assert.Len(t, sum.Limitations, 3)
}

func TestSummaryKeepsReadsThatSucceed(t *testing.T) {
	fb := newFakeBridge()
	fb.results["heartrate"] = bridge.ReadResult{
		Envelope: bridge.Envelope{Success: true},
		Data:     []provider.Sample{{Value: 64, Unit: "bpm"}},
	}
	fb.results["steps"] = bridge.ReadResult{
		Envelope: bridge.Envelope{Success: true},
		Data:     []provider.Sample{{Value: 4200, Unit: "steps"}},
	}
	fb.results["sleep"] = bridge.ReadResult{
		Envelope: bridge.Envelope{Success: false, Error: "Failed to read health data: sleep: unsupported data kind"},
	}

	sum, err := newTestService(fb).Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 64.0, sum.Data.HeartRate)
	assert.Equal(t, 4200, sum.Data.Steps)
	assert.Nil(t, sum.Data.Sleep)
}

func TestSummaryTransportErrorsFallBack(t *testing.T) {
	fb := newFakeBridge()
	fb.readErr = errors.New("unreachable")

	sum, err := newTestService(fb).Summary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Data.HeartRate)
	assert.Zero(t, sum.Data.Steps)
	assert.Nil(t, sum.Data.Sleep)
	assert.Equal(t, SummarySource, sum.Source)
}

func TestSummaryCloudProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"group":[{"sampleSet":[{"samplePoints":[
			{"startTime":1000000,"value":[{"fieldName":"value","floatValue":72}]}
		]}]}]}`))
	}))
	t.Cleanup(srv.Close)

	cloud, err := provider.NewCloud(provider.CloudConfig{BaseURL: srv.URL, AccessToken: "test-token", HTTPClient: srv.Client()})
	require.NoError(t, err)
	prof, err := device.LoadProfile("default")
	require.NoError(t, err)
	sim := device.NewSimulator(prof, store.NewClockAt(fixedNow), nil)
	b, err := bridge.New(bridge.Options{
		Locator:  sim,
		Launcher: sim,
		Provider: cloud,
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	sum, err := newTestService(InProcess(b)).Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 72.0, sum.Data.HeartRate)
	assert.Equal(t, 72, sum.Data.Steps)
	assert.Nil(t, sum.Data.Sleep, "cloud provider has no sleep data")
}

func TestSummaryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := newTestService(newFakeBridge()).Summary(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, sum)
}
