package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalink/telecare/internal/models"
)

func sampleBatch(n int) []models.Reading {
	temp := 37.1
	batch := make([]models.Reading, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, models.Reading{
			ID:          uuid.New(),
			UserID:      uuid.New(),
			Sensor:      models.SensorThermometer,
			Temperature: &temp,
			TakenAt:     time.Now().UTC(),
		})
	}
	return batch
}

func TestPushReadingsSendsBatchWithAuth(t *testing.T) {
	var got batchRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/readings/batch", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(batchResponse{Accepted: len(got.Readings)})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-key", nil)
	err := c.PushReadings(context.Background(), sampleBatch(3))
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-key", auth)
	assert.Len(t, got.Readings, 3)
	assert.Equal(t, "thermometer", got.Readings[0].Sensor)
}

func TestPushReadingsPartialAcceptIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(batchResponse{Accepted: 1})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	err := c.PushReadings(context.Background(), sampleBatch(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepted 1 of 2")
}

func TestPushReadingsServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	err := c.PushReadings(context.Background(), sampleBatch(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestPushReadingsEmptyBatchSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	require.NoError(t, c.PushReadings(context.Background(), nil))
	assert.False(t, called)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	require.NoError(t, c.Ping(context.Background()))
}
