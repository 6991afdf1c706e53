package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/kanban"
	"github.com/CrowderSoup/begtask/services"
)

// RealtimeHandler attaches WebSocket clients to a board room.
type RealtimeHandler struct {
	boardAccess
	boards   *kanban.Registry
	hub      *services.Hub
	upgrader websocket.Upgrader
}

// NewRealtimeHandler accepts connections from origins; "*" allows any.
func NewRealtimeHandler(data *database.DataService, boards *kanban.Registry, hub *services.Hub, origins []string) *RealtimeHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &RealtimeHandler{
		boardAccess: boardAccess{data: data},
		boards:      boards,
		hub:         hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// HandleWebSocket upgrades the connection for ?board= and sends the current
// snapshot as the first board message. The client joins the room before the
// snapshot is read, so no later change is missed.
func (h *RealtimeHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	boardID := r.URL.Query().Get("board")
	if boardID == "" {
		writeError(w, http.StatusBadRequest, "board is required")
		return
	}
	_, user, err := h.board(r, boardID)
	if err != nil {
		writeFailure(w, "authorizing board", err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading to WebSocket: %v", err)
		return
	}

	client := services.NewClient(h.hub, conn, boardID, user.ID)
	h.hub.Register(client)
	go client.WritePump()
	go client.ReadPump()

	snapshot, err := h.boards.Snapshot(r.Context(), boardID)
	if err != nil {
		log.Printf("Error loading board %s for WebSocket: %v", boardID, err)
		conn.Close()
		return
	}
	h.hub.SendTo(client, services.WebSocketMessage{Type: "snapshot", BoardID: boardID, Data: snapshot})
}
