// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package push_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/novira/internal/crawler/push"
)

// eventFrame mirrors the server frame with the payload left raw.
type eventFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newSocketServer(t *testing.T, hub *push.Hub) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleSocket))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, response, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if response != nil && response.Body != nil {
		response.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) eventFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var decoded eventFrame
	require.NoError(t, json.Unmarshal(data, &decoded))
	return decoded
}

func taskIDOf(t *testing.T, received eventFrame) string {
	t.Helper()
	var payload struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(received.Payload, &payload))
	return payload.TaskID
}

func waitClients(t *testing.T, hub *push.Hub, count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == count
	}, time.Second, 5*time.Millisecond)
}

/*
TestHub_BroadcastReachesClient verifies a plain connection receives
broadcast frames with the type and payload intact.
*/
func TestHub_BroadcastReachesClient(t *testing.T) {
	hub := push.NewHub(slog.Default())
	url := newSocketServer(t, hub)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	hub.Broadcast("task_progress", "t1", map[string]any{
		"task_id":  "t1",
		"progress": map[string]any{"status": "running"},
	})

	received := readFrame(t, conn)
	assert.Equal(t, "task_progress", received.Type)
	assert.Equal(t, "t1", taskIDOf(t, received))
}

/*
TestHub_SubscriptionFilter checks that a subscribed client only receives
frames for its tasks while unfiltered clients keep the full stream.
*/
func TestHub_SubscriptionFilter(t *testing.T) {
	hub := push.NewHub(slog.Default())
	url := newSocketServer(t, hub)
	filtered := dial(t, url)
	firehose := dial(t, url)
	waitClients(t, hub, 2)

	// 1. Narrow one client to a single task; the ack proves the
	// subscription landed before any broadcast below
	require.NoError(t, filtered.WriteJSON(map[string]string{
		"action":  "subscribe",
		"task_id": "t1",
	}))
	ack := readFrame(t, filtered)
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, "t1", taskIDOf(t, ack))

	hub.Broadcast("task_log", "t2", map[string]string{"task_id": "t2"})
	hub.Broadcast("task_log", "t1", map[string]string{"task_id": "t1"})

	// 2. The subscribed client skips straight to its task
	received := readFrame(t, filtered)
	assert.Equal(t, "task_log", received.Type)
	assert.Equal(t, "t1", taskIDOf(t, received))

	// 3. The unfiltered client sees both, in broadcast order
	assert.Equal(t, "t2", taskIDOf(t, readFrame(t, firehose)))
	assert.Equal(t, "t1", taskIDOf(t, readFrame(t, firehose)))
}

/*
TestHub_Unsubscribe verifies dropping the last subscription returns the
client to the unfiltered stream.
*/
func TestHub_Unsubscribe(t *testing.T) {
	hub := push.NewHub(slog.Default())
	url := newSocketServer(t, hub)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"action":  "subscribe",
		"task_id": "t1",
	}))
	assert.Equal(t, "subscribed", readFrame(t, conn).Type)

	// Dropping the last subscription reopens the full stream
	require.NoError(t, conn.WriteJSON(map[string]string{
		"action":  "unsubscribe",
		"task_id": "t1",
	}))
	assert.Equal(t, "unsubscribed", readFrame(t, conn).Type)

	hub.Broadcast("task_stopped", "t9", map[string]string{"task_id": "t9"})
	received := readFrame(t, conn)
	assert.Equal(t, "task_stopped", received.Type)
	assert.Equal(t, "t9", taskIDOf(t, received))
}

/*
TestHub_MalformedControlIgnored sends garbage and incomplete control
messages; the connection must survive and keep receiving frames.
*/
func TestHub_MalformedControlIgnored(t *testing.T) {
	hub := push.NewHub(slog.Default())
	url := newSocketServer(t, hub)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	// Garbage and unknown actions must not kill the connection
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "dance", "task_id": "t1"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "subscribe"}))

	hub.Broadcast("task_started", "t1", map[string]string{"task_id": "t1"})
	received := readFrame(t, conn)
	assert.Equal(t, "task_started", received.Type)
}

/*
TestHub_DisconnectUnregisters closes the socket and waits for the hub to
forget the client.
*/
func TestHub_DisconnectUnregisters(t *testing.T) {
	hub := push.NewHub(slog.Default())
	url := newSocketServer(t, hub)
	conn := dial(t, url)
	waitClients(t, hub, 1)

	require.NoError(t, conn.Close())
	waitClients(t, hub, 0)

	// Broadcasting into an empty hub is harmless
	hub.Broadcast("task_stopped", "t1", map[string]string{"task_id": "t1"})
}
