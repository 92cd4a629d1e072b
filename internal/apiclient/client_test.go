package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifySendsTokenAndBody(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/notify", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(Response{Success: true, Message: "sent to 2/2 chats"})
	}))
	defer srv.Close()

	c := New(srv.URL, "sekrit")
	resp, err := c.Notify(context.Background(), NotifyRequest{
		Message: "hello",
		ChatIDs: []int64{1, 2},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sekrit", gotAuth)
	assert.Equal(t, "hello", gotBody["message"])
	assert.True(t, resp.Success)
	assert.Equal(t, "sent to 2/2 chats", resp.Message)
}

func TestErrorStatusCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(Response{Success: false, Message: "job not found"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Unschedule(context.Background(), "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "job not found", apiErr.Message)
}

func TestSystemMetricsDecodesData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/system", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"metrics": map[string]float64{"cpu_percent": 12.5, "disk_percent": 40},
			},
		})
	}))
	defer srv.Close()

	m, err := New(srv.URL, "").SystemMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.5, m["cpu_percent"])
	assert.Equal(t, 40.0, m["disk_percent"])
}

func TestScheduleWireTrigger(t *testing.T) {
	var got ScheduleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/schedule", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Response{Success: true, Message: "scheduled reminder"})
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "").Schedule(context.Background(), ScheduleRequest{
		JobID:   "reminder",
		Message: "standup",
		ChatIDs: []int64{7},
		Trigger: Trigger{Type: "cron", Minute: "0", Hour: "9"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "cron", got.Trigger.Type)
	assert.Equal(t, "0", got.Trigger.Minute)
	assert.Equal(t, "9", got.Trigger.Hour)
	assert.Equal(t, []int64{7}, got.ChatIDs)
}

func TestJobsDecodesList(t *testing.T) {
	created := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"jobs": []Job{{ID: "daily_report", Trigger: "cron(0 9 * * *)", CreatedAt: created}},
			},
		})
	}))
	defer srv.Close()

	jobs, err := New(srv.URL, "").Jobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "daily_report", jobs[0].ID)
	assert.Equal(t, "cron(0 9 * * *)", jobs[0].Trigger)
	assert.True(t, jobs[0].CreatedAt.Equal(created))
}

func TestHealthAccepts503(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "unhealthy", "bot_connected": false, "monitoring": true,
		})
	}))
	defer srv.Close()

	h, err := New(srv.URL, "").Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unhealthy", h.Status)
	assert.False(t, h.BotConnected)
	assert.True(t, h.Monitoring)
}
