package services

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/kanban"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// Client is one WebSocket connection watching one board.
type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	BoardID string
	UserID  string
}

func NewClient(hub *Hub, conn *websocket.Conn, boardID, userID string) *Client {
	return &Client{
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		BoardID: boardID,
		UserID:  userID,
	}
}

// WebSocketMessage is the standard message format for WebSocket communication
type WebSocketMessage struct {
	Type    string `json:"type"`
	BoardID string `json:"board_id,omitempty"`
	Data    any    `json:"data,omitempty"`
	User    string `json:"user,omitempty"`
}

// roomMessage goes to every client of a board except exclude, or only to
// only when it is set.
type roomMessage struct {
	boardID string
	exclude *Client
	only    *Client
	payload []byte
}

// relayTypes are the client messages passed on to the rest of a board room.
// Board state only ever comes from the server.
var relayTypes = map[string]bool{
	"presence": true,
	"typing":   true,
	"cursor":   true,
}

// ReadPump pumps messages from the WebSocket connection to the hub. Pings
// are answered and relayTypes are passed to the other clients of the same
// board; anything else is dropped.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var wsMessage WebSocketMessage
		if err := json.Unmarshal(message, &wsMessage); err != nil {
			log.Printf("Error unmarshalling WebSocket message: %v", err)
			continue
		}

		if wsMessage.Type == "ping" {
			pong, err := json.Marshal(WebSocketMessage{
				Type: "pong",
				Data: map[string]string{"timestamp": time.Now().Format(time.RFC3339)},
			})
			if err == nil {
				select {
				case c.Send <- pong:
				default:
				}
			}
			continue
		}
		if !relayTypes[wsMessage.Type] {
			log.Printf("Warning: dropping %q message from client %s", wsMessage.Type, c.UserID)
			continue
		}

		wsMessage.User = c.UserID
		wsMessage.BoardID = c.BoardID
		payload, err := json.Marshal(wsMessage)
		if err != nil {
			log.Printf("Error marshalling WebSocket message: %v", err)
			continue
		}
		select {
		case c.Hub.broadcast <- roomMessage{boardID: c.BoardID, exclude: c, payload: payload}:
		case <-c.Hub.stop:
			return
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON document per frame; clients parse frames individually.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub keeps one room of clients per board and fans messages out to them
type Hub struct {
	rooms      map[string]map[*Client]bool
	broadcast  chan roomMessage
	register   chan *Client
	unregister chan *Client
	count      chan countRequest
	stop       chan struct{}
	stopOnce   sync.Once
}

type countRequest struct {
	boardID string
	reply   chan int
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan roomMessage, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan countRequest),
		stop:       make(chan struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stop:
		close(client.Send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// Broadcast sends a message to every client of a board.
func (h *Hub) Broadcast(message WebSocketMessage) {
	jsonMessage, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshalling WebSocket message: %v", err)
		return
	}
	select {
	case h.broadcast <- roomMessage{boardID: message.BoardID, payload: jsonMessage}:
	case <-h.stop:
	}
}

// SendTo queues a message for one registered client. It shares the broadcast
// queue, so it is delivered after every board message published before it.
func (h *Hub) SendTo(client *Client, message WebSocketMessage) {
	jsonMessage, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshalling WebSocket message: %v", err)
		return
	}
	select {
	case h.broadcast <- roomMessage{boardID: client.BoardID, only: client, payload: jsonMessage}:
	case <-h.stop:
	}
}

// Publish pushes a new board state. Its signature matches kanban.Publisher.
func (h *Hub) Publish(boardID string, kind kanban.EventType, data *database.KanbanData) {
	h.Broadcast(WebSocketMessage{Type: string(kind), BoardID: boardID, Data: data})
}

// Clients returns how many connections watch a board.
func (h *Hub) Clients(boardID string) int {
	req := countRequest{boardID: boardID, reply: make(chan int, 1)}
	select {
	case h.count <- req:
	case <-h.stop:
		return 0
	}
	return <-req.reply
}

// Stop ends Run and disconnects every client. It is safe to call more than
// once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			room, ok := h.rooms[client.BoardID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.BoardID] = room
			}
			room[client] = true
			log.Printf("Client %s joined board %s", client.UserID, client.BoardID)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			for client := range h.rooms[msg.boardID] {
				if client == msg.exclude || (msg.only != nil && client != msg.only) {
					continue
				}
				select {
				case client.Send <- msg.payload:
				default:
					log.Printf("Client send buffer full, removing client: %s", client.UserID)
					h.remove(client)
				}
			}

		case req := <-h.count:
			req.reply <- len(h.rooms[req.boardID])

		case <-h.stop:
			for _, room := range h.rooms {
				for client := range room {
					close(client.Send)
				}
			}
			h.rooms = make(map[string]map[*Client]bool)
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	room, ok := h.rooms[client.BoardID]
	if !ok || !room[client] {
		return
	}
	delete(room, client)
	close(client.Send)
	if len(room) == 0 {
		delete(h.rooms, client.BoardID)
	}
	log.Printf("Client %s left board %s", client.UserID, client.BoardID)
}
