package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"finsight/internal/auth"
	"finsight/internal/core"
	"finsight/internal/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Handler upgrades GET /api/realtime?table=... to a WebSocket that streams
// the caller's change events for one table as JSON text frames. The caller
// must already be authenticated by auth.Middleware.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewHandler builds the endpoint. allowedOrigins restricts browser origins;
// empty allows any, since the stream is authorized by bearer token only.
func NewHandler(hub *Hub, allowedOrigins []string, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Discard()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
		logger: logger.WithComponent(log.ComponentRealtime),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing auth token")
		return
	}
	table := r.URL.Query().Get("table")
	if !core.ValidTable(table) {
		writeError(w, http.StatusBadRequest, "invalid table", "table must be one of transactions, categories, goals, profiles")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection to WebSocket", log.FieldError, err.Error())
		return
	}
	sub, err := h.hub.Subscribe(table, userID)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	fields := log.NewFields().WithUser(userID)
	fields[log.FieldTable] = table
	h.logger.Info("Realtime client connected", fields.ToSlice()...)

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)

	h.logger.Info("Realtime client disconnected", fields.ToSlice()...)
}

// readPump discards client frames and handles pongs and close; done is
// closed when the connection ends.
func (h *Handler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Unexpected websocket close error", log.FieldError, err.Error())
			}
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, sub *Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Warn("Failed to write change event", log.FieldError, err.Error())
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(core.APIError{Message: msg, Details: details})
}
