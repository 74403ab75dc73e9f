package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCloudServer(t *testing.T, handler http.HandlerFunc) *Cloud {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewCloud(CloudConfig{BaseURL: srv.URL, AccessToken: "test-token", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return c
}

const heartRateResponse = `{
  "group": [{
    "sampleSet": [{
      "samplePoints": [
        {"startTime": 1000000000000000, "value": [{"fieldName": "bpm", "floatValue": 61}]},
        {"startTime": 3000000000000000, "value": [{"fieldName": "bpm", "floatValue": 75}]},
        {"startTime": 2000000000000000, "value": [{"fieldName": "bpm", "floatValue": 68}]},
        {"startTime": 4000000000000000, "value": []}
      ]
    }]
  }]
}`

func TestCloudHeartRate(t *testing.T) {
	var got polymerizeRequest
	c := newCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthkit/v2/sampleSet:polymerize", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(heartRateResponse))
	})

	samples, err := c.Read(context.Background(), ReadRequest{Kind: HeartRate, StartTime: 10, EndTime: 20, Limit: 2})
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 75.0, samples[0].Value)
	assert.Equal(t, int64(3000000000), samples[0].Timestamp)
	assert.Equal(t, 68.0, samples[1].Value)
	assert.Equal(t, "bpm", samples[1].Unit)

	require.Len(t, got.PolymerizeWith, 1)
	assert.Equal(t, "com.huawei.instantaneous.heart_rate", got.PolymerizeWith[0].DataTypeName)
	assert.Equal(t, int64(10), got.StartTime)
	assert.Equal(t, int64(20), got.EndTime)
}

func TestCloudStepsAreSummed(t *testing.T) {
	c := newCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"group":[
			{"sampleSet":[{"samplePoints":[{"startTime":1,"value":[{"fieldName":"steps_delta","integerValue":1200}]}]}]},
			{"sampleSet":[{"samplePoints":[{"startTime":2,"value":[{"fieldName":"steps_delta","integerValue":800}]}]}]}
		]}`))
	})

	samples, err := c.Read(context.Background(), ReadRequest{Kind: Steps, EndTime: 99})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 2000.0, samples[0].Value)
	assert.Equal(t, "steps", samples[0].Unit)
	assert.Equal(t, int64(99), samples[0].Timestamp)
}

func TestCloudErrors(t *testing.T) {
	t.Run("unauthorized", func(t *testing.T) {
		c := newCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := c.Read(context.Background(), ReadRequest{Kind: HeartRate})
		assert.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("server error", func(t *testing.T) {
		c := newCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		})
		_, err := c.Read(context.Background(), ReadRequest{Kind: Steps})
		assert.ErrorContains(t, err, "status 429: quota exceeded")
	})

	t.Run("bad body", func(t *testing.T) {
		c := newCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		})
		_, err := c.Read(context.Background(), ReadRequest{Kind: Steps})
		assert.ErrorContains(t, err, "decoding polymerize response")
	})
}

func TestCloudUnsupportedAndUnknownKinds(t *testing.T) {
	c := newCloudServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.Read(context.Background(), ReadRequest{Kind: Sleep})
	assert.ErrorIs(t, err, ErrUnsupportedKind)

	samples, err := c.Read(context.Background(), ReadRequest{Kind: "weight"})
	assert.NoError(t, err)
	assert.Empty(t, samples)
}

func TestCloudAuthorize(t *testing.T) {
	c, err := NewCloud(CloudConfig{})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Authorize(context.Background(), []string{"scope"}), ErrNotAuthorized)
	_, err = c.Read(context.Background(), ReadRequest{Kind: HeartRate})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	c, err = NewCloud(CloudConfig{AccessToken: "tok"})
	require.NoError(t, err)
	assert.NoError(t, c.Authorize(context.Background(), nil))
}

func TestNewCloudRejectsBadURL(t *testing.T) {
	_, err := NewCloud(CloudConfig{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}
