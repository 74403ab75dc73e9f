package provider

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	heartRatePoints = 5
	hourMillis      = int64(time.Hour / time.Millisecond)
)

// MockConfig configures a Mock provider.
type MockConfig struct {
	// Seed fixes the random sequence. Zero seeds from the wall clock.
	Seed   uint64
	Logger *slog.Logger
}

// Mock generates random samples in plausible ranges. It always authorizes.
type Mock struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger *slog.Logger
}

// NewMock creates a mock provider.
func NewMock(cfg MockConfig) *Mock {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Mock{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger: cfg.Logger,
	}
}

func (m *Mock) Name() string    { return "mock" }
func (m *Mock) Simulated() bool { return true }

// Authorize accepts any scopes.
func (m *Mock) Authorize(ctx context.Context, scopes []string) error {
	return ctx.Err()
}

// Read generates samples anchored at req.EndTime, which the bridge has
// already defaulted.
func (m *Mock) Read(ctx context.Context, req ReadRequest) ([]Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end := req.EndTime

	m.mu.Lock()
	defer m.mu.Unlock()

	switch req.Kind {
	case HeartRate:
		n := heartRatePoints
		if req.Limit > 0 && req.Limit < n {
			n = req.Limit
		}
		samples := make([]Sample, n)
		for i := range samples {
			samples[i] = Sample{
				Value:     float64(70 + m.rng.IntN(30)),
				Unit:      "bpm",
				Timestamp: end - int64(i)*hourMillis,
			}
		}
		return samples, nil

	case Steps:
		return []Sample{{
			Value:     float64(5000 + m.rng.IntN(10000)),
			Unit:      "steps",
			Timestamp: end,
		}}, nil

	case Sleep:
		duration := 6.5 + m.rng.Float64()*2
		quality := "fair"
		if m.rng.Float64() > 0.5 {
			quality = "good"
		}
		deep := 1.5 + m.rng.Float64()
		light := min(4.0+m.rng.Float64()*2, duration-deep)
		return []Sample{{
			Value:     duration,
			Unit:      "h",
			Timestamp: end - 8*hourMillis,
			SleepDetail: &SleepDetail{
				Duration:   duration,
				Quality:    quality,
				DeepSleep:  deep,
				LightSleep: light,
			},
		}}, nil

	default:
		m.logger.Warn("unknown data type requested", "data_type", string(req.Kind))
		return nil, nil
	}
}
