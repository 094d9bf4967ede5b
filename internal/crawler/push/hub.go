// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package push streams task lifecycle events to websocket clients.

The [Hub] accepts connections on a single upgrade endpoint and fans task
events out as JSON frames. It implements the task supervisor's Broadcaster
contract, so wiring the hub into the manager is the only integration point.

# Protocol

Every server frame is {"type": ..., "payload": ...} where type is one of
task_started, task_progress, task_log, task_stopped. A fresh connection
receives every event. Clients narrow the stream by sending
{"action": "subscribe", "task_id": ...}; once at least one subscription
exists only frames for subscribed tasks are delivered. "unsubscribe"
reverses it. The hub acknowledges both with a "subscribed"/"unsubscribed"
frame. Frames the hub cannot parse are ignored.
*/
package push

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

const (
	readBufferSize  = 1024
	writeBufferSize = 1024

	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// The control API and the websocket page share an origin in deployment,
// but the dashboard is also opened straight from disk during config
// authoring, so origin checks stay off.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  readBufferSize,
	WriteBufferSize: writeBufferSize,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// frame is the wire shape of every server-to-client message.
type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// controlMessage is the only client-to-server shape the hub understands.
type controlMessage struct {
	Action string `json:"action"`
	TaskID string `json:"task_id"`
}

// ackPayload echoes the task id a control message acted on.
type ackPayload struct {
	TaskID string `json:"task_id"`
}

// client is one connected socket. The mutex serializes writes and guards
// the subscription set; gorilla allows only one concurrent writer.
type client struct {
	conn *websocket.Conn

	mu            sync.Mutex
	subscriptions map[string]bool
}

// wants reports whether a frame for the task should reach this client.
// No subscriptions means everything.
func (connected *client) wants(taskID string) bool {
	connected.mu.Lock()
	defer connected.mu.Unlock()
	if len(connected.subscriptions) == 0 {
		return true
	}
	return connected.subscriptions[taskID]
}

// write sends one marshaled frame under the client's write lock.
func (connected *client) write(data []byte) error {
	connected.mu.Lock()
	defer connected.mu.Unlock()
	return connected.conn.WriteMessage(websocket.TextMessage, data)
}

// # Hub Implementation

// Hub is the websocket fan-out point for task events.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub constructs an empty [Hub].
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]bool),
	}
}

// ClientCount returns the number of connected clients.
func (hub *Hub) ClientCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

/*
Broadcast fans one event out to every interested client.

Description: The frame marshals once; each delivery runs under the
target's write lock. A failed write only logs, the read loop notices the
dead socket and unregisters it.

Parameters:
  - event: string (Frame type)
  - taskID: string (Subscription filter key)
  - payload: any (Frame payload)
*/
func (hub *Hub) Broadcast(event string, taskID string, payload any) {
	data, err := json.Marshal(frame{Type: event, Payload: payload})
	if err != nil {
		hub.logger.Error("push_marshal_failed",
			slog.String("event", event),
			slog.Any("error", err))
		return
	}

	hub.mu.RLock()
	targets := make([]*client, 0, len(hub.clients))
	for connected := range hub.clients {
		targets = append(targets, connected)
	}
	hub.mu.RUnlock()

	for _, target := range targets {
		if !target.wants(taskID) {
			continue
		}
		if err := target.write(data); err != nil {
			hub.logger.Warn("push_write_failed",
				slog.String("event", event),
				slog.Any("error", err))
		}
	}
}

/*
HandleSocket upgrades the request and serves the connection until the
client goes away.

Description: The connection registers with the hub, then the read loop
consumes control messages. Any read error, including a normal close, tears
the client down.
*/
func (hub *Hub) HandleSocket(writer http.ResponseWriter, request *http.Request) {
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		// Upgrade already answered the request
		hub.logger.Warn("push_upgrade_failed", slog.Any("error", err))
		return
	}

	connected := &client{conn: conn, subscriptions: make(map[string]bool)}
	hub.mu.Lock()
	hub.clients[connected] = true
	total := len(hub.clients)
	hub.mu.Unlock()
	hub.logger.Info("push_client_connected", slog.Int("clients", total))

	defer func() {
		hub.mu.Lock()
		delete(hub.clients, connected)
		remaining := len(hub.clients)
		hub.mu.Unlock()

		conn.Close()
		hub.logger.Info("push_client_disconnected", slog.Int("clients", remaining))
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.logger.Warn("push_read_failed", slog.Any("error", err))
			}
			return
		}
		hub.handleControl(connected, message)
	}
}

// handleControl applies one client message to its subscription set.
func (hub *Hub) handleControl(connected *client, message []byte) {
	var control controlMessage
	if err := json.Unmarshal(message, &control); err != nil {
		return
	}
	if control.TaskID == "" {
		return
	}

	switch control.Action {
	case actionSubscribe:
		connected.mu.Lock()
		connected.subscriptions[control.TaskID] = true
		connected.mu.Unlock()
		hub.acknowledge(connected, "subscribed", control.TaskID)

	case actionUnsubscribe:
		connected.mu.Lock()
		delete(connected.subscriptions, control.TaskID)
		connected.mu.Unlock()
		hub.acknowledge(connected, "unsubscribed", control.TaskID)
	}
}

// acknowledge confirms a control action back to its sender.
func (hub *Hub) acknowledge(connected *client, kind, taskID string) {
	data, err := json.Marshal(frame{Type: kind, Payload: ackPayload{TaskID: taskID}})
	if err != nil {
		return
	}
	if err := connected.write(data); err != nil {
		hub.logger.Warn("push_ack_failed", slog.Any("error", err))
	}
}
