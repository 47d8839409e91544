package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SubmitEvents(t *testing.T) {
	var got SubmitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/games/game%201/events", r.URL.EscapedPath())
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(SubmitResponse{AckedThrough: 7, ServerTime: "now"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 0)
	resp, err := c.SubmitEvents(context.Background(), "game 1", SubmitRequest{
		DeviceID:  "d1",
		SessionID: "s1",
		Events:    []Event{{EventID: "d1-7", Seq: 7, Type: "SHOT_HOME", TSLocal: "2024-01-01T00:00:00Z"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), resp.AckedThrough)
	assert.Equal(t, "d1", got.DeviceID)
	require.Len(t, got.Events, 1)
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "bad payload", Field: "events[0].payload"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).SendHeartbeat(context.Background(), Heartbeat{DeviceID: "d1"})

	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusUnprocessableEntity, serr.StatusCode)
	assert.Equal(t, "events[0].payload", serr.Body.Field)
	assert.Contains(t, err.Error(), "bad payload")
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, 0).SendHeartbeat(context.Background(), Heartbeat{DeviceID: "d1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}
