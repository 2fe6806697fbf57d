package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
)

func dial(t *testing.T, srv *httptest.Server, origin string) (*gws.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return gws.DefaultDialer.Dial(url, header)
}

func TestWSManager_BroadcastsStages(t *testing.T) {
	m := NewWSManager([]string{"http://localhost:8080"})
	srv := httptest.NewServer(http.HandlerFunc(m.HandleWebSocket))
	defer srv.Close()

	conn, _, err := dial(t, srv, "http://localhost:8080")
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return m.Clients() == 1 }, time.Second, 10*time.Millisecond)

	m.OnStage(context.Background(), domain.StageEvent{QueryID: "q1", Stage: domain.StageFiltering, Count: 7})
	m.OnSourceState(domain.SourceVulnerabilityDatabase, domain.FetchFailed)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var stage struct {
		Type    string            `json:"type"`
		Payload domain.StageEvent `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&stage))
	assert.Equal(t, TypeQueryStage, stage.Type)
	assert.Equal(t, "q1", stage.Payload.QueryID)
	assert.Equal(t, 7, stage.Payload.Count)

	var state struct {
		Type    string             `json:"type"`
		Payload SourceStatePayload `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&state))
	assert.Equal(t, TypeSourceState, state.Type)
	assert.Equal(t, domain.SourceVulnerabilityDatabase, state.Payload.Source)
	assert.Equal(t, domain.FetchFailed, state.Payload.State)
}

func TestWSManager_RejectsForeignOrigin(t *testing.T) {
	m := NewWSManager(nil)
	srv := httptest.NewServer(http.HandlerFunc(m.HandleWebSocket))
	defer srv.Close()

	_, resp, err := dial(t, srv, "http://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err, "same-origin requests carry no Origin header")
	conn.Close()
}

func TestWSManager_DropsClosedClients(t *testing.T) {
	m := NewWSManager(nil)
	srv := httptest.NewServer(http.HandlerFunc(m.HandleWebSocket))
	defer srv.Close()

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.Clients() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return m.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)

	m.OnStage(context.Background(), domain.StageEvent{Stage: domain.StageDone})
	m.Close()
}
