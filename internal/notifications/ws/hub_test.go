package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/notifications"
	"github.com/bissquit/uptime-garden/internal/notifications/ws"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, origins ...string) (string, *ws.Hub, context.CancelFunc) {
	t.Helper()

	hub := ws.New(origins)
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(hub)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancel
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_BroadcastsStatusChange(t *testing.T) {
	url, hub, _ := startHub(t)
	first := dial(t, url, nil)
	second := dial(t, url, nil)

	require.Eventually(t, func() bool { return hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	change := domain.StatusChange{
		ServiceID: "svc-1",
		From:      domain.ServiceStatusOperational,
		To:        domain.ServiceStatusPartialOutage,
		ChangedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	err := hub.Send(context.Background(), notifications.Notification{
		Body:    "api: Partial Outage",
		Payload: notifications.Payload{Change: change},
	})
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{first, second} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg ws.Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "status_change", msg.Event)
		assert.Equal(t, "api: Partial Outage", msg.Message)
		assert.Equal(t, change.ServiceID, msg.Data.ServiceID)
		assert.Equal(t, domain.ServiceStatusPartialOutage, msg.Data.To)
	}
}

func TestHub_RejectsUnknownOrigin(t *testing.T) {
	url, _, _ := startHub(t, "https://status.example.com")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	dial(t, url, http.Header{"Origin": []string{"https://status.example.com"}})
}

func TestHub_RunClosesClients(t *testing.T) {
	url, hub, cancel := startHub(t)
	conn := dial(t, url, nil)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()

	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_Type(t *testing.T) {
	assert.Equal(t, notifications.ChannelTypeWebSocket, ws.New(nil).Type())
}
