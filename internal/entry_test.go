package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/connector/inmemory"
	"github.com/starford/arbor/internal/sse"
)

func TestReadyHandler(t *testing.T) {
	repo := connector.NewRepository("ready", uuid.New(), "default", inmemory.NewFactory(), nil)
	require.NoError(t, repo.Init("extra"))
	broker := sse.NewBroker(time.Second)
	defer broker.Close()
	ch := broker.Subscribe("")
	defer broker.Unsubscribe(ch)

	handler := readyHandler(repo, "default", broker)
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got readiness
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, readiness{Status: "ok", Workspaces: 2, Subscribers: 1}, got)

	w = httptest.NewRecorder()
	readyHandler(repo, "missing", broker)(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "unavailable", got.Status)

}
