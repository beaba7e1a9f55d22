package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tonebox/backend/internal/events"
	"github.com/tonebox/backend/internal/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameBytes = 4 << 10
)

// clientFrame is one inbound control message.
type clientFrame struct {
	Action   string            `json:"action"`
	Room     string            `json:"room,omitempty"`
	LastSeqs map[string]uint64 `json:"lastSeqs,omitempty"`
}

// ackFrame wraps a subscription acknowledgement so the client can tell control
// responses apart from envelopes.
type ackFrame struct {
	Type string              `json:"type"`
	Ack  events.SubscribeAck `json:"ack"`
}

// catchUpFrame closes a catch-up exchange. Replayed envelopes are sent first
// as ordinary envelope messages; ResyncRooms lists rooms the client must
// refetch in full.
type catchUpFrame struct {
	Type        string   `json:"type"`
	Replayed    int      `json:"replayed"`
	ResyncRooms []string `json:"resyncRooms,omitempty"`
}

type pongFrame struct {
	Type string `json:"type"`
}

// WSHandler upgrades connections and bridges them onto the hub.
type WSHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

// NewWSHandler creates a WSHandler. Origin checking is left to the LAN
// deployment; the box has no cross-site surface worth locking down.
func NewWSHandler(hub *realtime.Hub) *WSHandler {
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the connection and runs the read and write pumps until
// either side drops.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws: upgrade failed", slog.Any("error", err))
		return
	}

	sessionID := uuid.NewString()
	session := h.hub.Register(sessionID)
	slog.Info("ws: connected", slog.String("session_id", sessionID))

	go h.writePump(conn, session)
	h.readPump(conn, session)

	h.hub.Unregister(sessionID)
	conn.Close()
	slog.Info("ws: disconnected", slog.String("session_id", sessionID))
}

// readPump parses client control frames until the connection errors.
func (h *WSHandler) readPump(conn *websocket.Conn, session *realtime.Session) {
	conn.SetReadLimit(maxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("ws: read error", slog.String("session_id", session.ID), slog.Any("error", err))
			}
			return
		}

		switch frame.Action {
		case "subscribe":
			ack, err := h.hub.Subscribe(session.ID, frame.Room)
			if err != nil {
				return
			}
			h.enqueue(session, ackFrame{Type: "subscribe_ack", Ack: ack})

		case "unsubscribe":
			if err := h.hub.Unsubscribe(session.ID, frame.Room); err != nil {
				return
			}

		case "catch_up":
			res, err := h.hub.CatchUp(session.ID, frame.LastSeqs)
			if err != nil {
				return
			}
			for _, env := range res.Replayed {
				h.enqueue(session, env)
			}
			h.enqueue(session, catchUpFrame{
				Type:        "catch_up_complete",
				Replayed:    len(res.Replayed),
				ResyncRooms: res.ResyncRooms,
			})

		case "ping":
			h.enqueue(session, pongFrame{Type: "pong"})

		default:
			slog.Debug("ws: unknown action",
				slog.String("session_id", session.ID), slog.String("action", frame.Action))
		}

		select {
		case <-session.Done:
			return
		default:
		}
	}
}

// writePump drains the outbound queue onto the wire and keeps the connection
// alive with pings.
func (h *WSHandler) writePump(conn *websocket.Conn, session *realtime.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg := <-session.Outbound:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				session.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				session.Close()
				return
			}

		case <-session.Done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "resync required"))
			return
		}
	}
}

// enqueue pushes a control response through the same outbound queue as
// broadcasts so the client observes a single ordered stream. A full queue
// drops the session, same as the hub's fan-out policy.
func (h *WSHandler) enqueue(session *realtime.Session, msg any) {
	select {
	case session.Outbound <- msg:
	default:
		slog.Warn("ws: outbound queue full on control response",
			slog.String("session_id", session.ID))
		session.Close()
	}
}
