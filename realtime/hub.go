// Package realtime fans out tenant events — inbound messages, status
// updates, flow completions, agent handoffs — to connected dashboard
// clients over WebSocket, scoped to tenant and conversation rooms, and
// relayed across replicas through Valkey pub/sub (§4.5 "live updates").
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/wa-platform/core/infrastructure/valkey"
)

const pubsubChannel = "realtime_broadcast"

// Event is one fan-out message. Room scopes delivery: clients subscribe
// to a tenant room ("tenant:<id>") and, optionally, a conversation room
// ("tenant:<id>:conversation:<id>") for a focused chat view.
type Event struct {
	Room     string         `json:"room"`
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload"`
	SenderID string         `json:"sender_id,omitempty"`
}

// Hub tracks local WebSocket connections per room and relays broadcasts
// to other replicas via Valkey so every instance's local clients see
// every event regardless of which instance received it.
type Hub struct {
	valkey *valkey.Client
	selfID string

	mu    sync.RWMutex
	rooms map[string]map[*websocket.Conn]struct{}
}

// NewHub builds a Hub. vk may be nil, in which case fan-out is local to
// this process only (single-replica deployments, tests).
func NewHub(vk *valkey.Client, selfID string) *Hub {
	return &Hub{valkey: vk, selfID: selfID, rooms: make(map[string]map[*websocket.Conn]struct{})}
}

// Run starts the Valkey subscriber that relays other replicas'
// broadcasts to this instance's local clients. It blocks until ctx is
// cancelled; call it in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	if h.valkey == nil {
		<-ctx.Done()
		return
	}
	channel := h.valkey.Key(pubsubChannel)
	logrus.Infof("realtime: subscribing to %s", channel)
	err := h.valkey.Inner().Receive(ctx, h.valkey.Inner().B().Subscribe().Channel(channel).Build(), func(msg valkeylib.PubSubMessage) {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Message), &ev); err != nil {
			return
		}
		if ev.SenderID == h.selfID {
			return // already delivered locally before publishing
		}
		h.deliverLocal(ev)
	})
	if err != nil && ctx.Err() == nil {
		logrus.WithError(err).Error("realtime: valkey subscriber failed")
	}
}

// Join registers conn as a member of room; call Leave when the
// connection closes.
func (h *Hub) Join(room string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*websocket.Conn]struct{})
	}
	h.rooms[room][conn] = struct{}{}
}

// Leave removes conn from every room it belongs to.
func (h *Hub) Leave(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, members := range h.rooms {
		if _, ok := members[conn]; ok {
			delete(members, conn)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
}

// Emit delivers an event to the room's local members and relays it to
// other replicas through Valkey.
func (h *Hub) Emit(ev Event) {
	h.deliverLocal(ev)
	h.publishRemote(ev)
}

func (h *Hub) deliverLocal(ev Event) {
	h.mu.RLock()
	members := h.rooms[ev.Room]
	conns := make([]*websocket.Conn, 0, len(members))
	for c := range members {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logrus.WithError(err).Debug("realtime: write failed, dropping connection")
			go h.closeAndLeave(conn)
		}
	}
}

func (h *Hub) closeAndLeave(conn *websocket.Conn) {
	h.Leave(conn)
	_ = conn.Close()
}

func (h *Hub) publishRemote(ev Event) {
	if h.valkey == nil {
		return
	}
	ev.SenderID = h.selfID
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	channel := h.valkey.Key(pubsubChannel)
	cmd := h.valkey.Inner().B().Publish().Channel(channel).Message(string(data)).Build()
	if err := h.valkey.Inner().Do(ctx, cmd).Error(); err != nil {
		logrus.WithError(err).Warn("realtime: publish to valkey failed")
	}
}

// TenantRoom and ConversationRoom name the two room scopes clients join.
func TenantRoom(tenantID string) string { return "tenant:" + tenantID }
func ConversationRoom(tenantID, conversationID string) string {
	return "tenant:" + tenantID + ":conversation:" + conversationID
}

// Publish implements interpreter.EventPublisher and ingest's publisher
// seam, emitting to the tenant's room so every connected dashboard
// client for that tenant observes the event.
func (h *Hub) Publish(ctx context.Context, tenantID, event string, payload map[string]any) {
	h.Emit(Event{Room: TenantRoom(tenantID), Type: event, Payload: payload})
}
