// Package websocket registers the realtime protocol's HTTP upgrade route
// and bridges a connection's lifetime to the realtime.Hub (§4.6, §6
// "Realtime protocol"). The hub itself — room membership, local fan-out,
// and cross-replica relay — lives in package realtime; this package is
// only the fiber/gofiber-websocket wiring, mirroring how the teacher
// split RunHub (event loop) from RegisterRoutes (transport).
package websocket

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/wa-platform/core/pkg/auth"
	"github.com/wa-platform/core/realtime"
)

// joinMessage is the client's first frame after connecting: it carries
// the bearer token and, optionally, a conversation id to also join that
// conversation's focused room.
type joinMessage struct {
	Token          string `json:"token"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// RegisterRoutes mounts the /ws upgrade endpoint. Every connection must
// send a join frame within the handshake; on success it's added to its
// tenant's room (and its conversation's room, if named).
func RegisterRoutes(app fiber.Router, hub *realtime.Hub, jwtSecret []byte) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		defer func() { _ = conn.Close() }()

		var join joinMessage
		if err := conn.ReadJSON(&join); err != nil {
			logrus.WithError(err).Debug("realtime ws: missing join frame")
			return
		}
		token := strings.TrimPrefix(join.Token, "Bearer ")
		claims, err := auth.ValidateToken(jwtSecret, token)
		if err != nil {
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		rooms := []string{realtime.TenantRoom(claims.TenantID)}
		if join.ConversationID != "" {
			rooms = append(rooms, realtime.ConversationRoom(claims.TenantID, join.ConversationID))
		}
		for _, room := range rooms {
			hub.Join(room, conn)
		}
		defer hub.Leave(conn)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.WithError(err).Debug("realtime ws: read error")
				}
				return
			}
			// Clients only receive events on this socket; inbound frames
			// beyond the join handshake are presently ignored.
		}
	}))
}
