package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"chess-moves/internal/auth"
	"chess-moves/internal/db"
	"chess-moves/internal/middleware"
	"chess-moves/internal/models"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced on the REST API only
	},
}

// Publisher forwards broadcasts to other server instances
type Publisher interface {
	PublishBroadcast(sessionId string, message []byte, excludePlayerId string)
}

type WebSocketHandler struct {
	store     GameStore
	seats     *auth.SeatService
	hub       *Hub
	publisher Publisher
}

func NewWebSocketHandler(store GameStore, seats *auth.SeatService) *WebSocketHandler {
	hub := NewHub()
	go hub.Run()
	return &WebSocketHandler{store: store, seats: seats, hub: hub}
}

// Hub maintains active connections and broadcasts messages
type Hub struct {
	// Map of sessionId -> map of playerId -> connection
	sessions map[string]map[string]*Client
	mu       sync.Mutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionId string
	playerId  string
	send      chan []byte
}

type BroadcastMessage struct {
	SessionId       string
	Message         []byte
	ExcludePlayerId string
}

type WSMessage struct {
	Type           string       `json:"type"`
	Game           *models.Game `json:"game,omitempty"`
	Move           *models.Move `json:"move,omitempty"`
	ResigningColor string       `json:"resigningColor,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.sessions[client.sessionId] == nil {
				h.sessions[client.sessionId] = make(map[string]*Client)
			}
			// a reconnecting player replaces the old connection
			if old, ok := h.sessions[client.sessionId][client.playerId]; ok {
				close(old.send)
			}
			h.sessions[client.sessionId][client.playerId] = client
			h.mu.Unlock()
			log.Printf("Client registered: session=%s player=%s", client.sessionId, client.playerId)

		case client := <-h.unregister:
			h.mu.Lock()
			if session, ok := h.sessions[client.sessionId]; ok {
				if current, ok := session[client.playerId]; ok && current == client {
					delete(session, client.playerId)
					close(client.send)
					if len(session) == 0 {
						delete(h.sessions, client.sessionId)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered: session=%s player=%s", client.sessionId, client.playerId)

		case msg := <-h.broadcast:
			h.mu.Lock()
			if session, ok := h.sessions[msg.SessionId]; ok {
				for playerId, client := range session {
					if playerId != msg.ExcludePlayerId {
						select {
						case client.send <- msg.Message:
						default:
							close(client.send)
							delete(session, playerId)
						}
					}
				}
				if len(session) == 0 {
					delete(h.sessions, msg.SessionId)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) BroadcastToSession(sessionId string, message []byte, excludePlayerId string) {
	h.broadcast <- &BroadcastMessage{
		SessionId:       sessionId,
		Message:         message,
		ExcludePlayerId: excludePlayerId,
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleWebSocket subscribes a seated player to the updates of one game.
// Browsers cannot set headers on the upgrade request, so the seat token comes
// in the token query parameter. The current game state is sent as the first
// message.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionId := mux.Vars(r)["sessionId"]

	claims, err := h.seats.ValidateSeatFor(r.URL.Query().Get("token"), sessionId)
	if err != nil {
		http.Error(w, err.Error(), middleware.SeatErrorStatus(err))
		return
	}
	playerId := claims.PlayerID

	game, err := h.GetGame(r.Context(), sessionId)
	if err != nil {
		if errors.Is(err, db.ErrGameNotFound) {
			http.Error(w, "Game not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch game", http.StatusInternalServerError)
		return
	}
	if _, ok := game.Player(playerId); !ok {
		http.Error(w, "Player not in game", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:       h.hub,
		conn:      conn,
		sessionId: sessionId,
		playerId:  playerId,
		send:      make(chan []byte, 256),
	}

	if data, err := json.Marshal(WSMessage{Type: "game_state", Game: game}); err == nil {
		client.send <- data
	}

	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// SetPublisher makes every broadcast also reach clients connected to other
// server instances.
func (h *WebSocketHandler) SetPublisher(p Publisher) {
	h.publisher = p
}

func (h *WebSocketHandler) broadcast(sessionId string, msg WSMessage, excludePlayerId string) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal %s: %v", msg.Type, err)
		return
	}
	h.hub.BroadcastToSession(sessionId, data, excludePlayerId)
	if h.publisher != nil {
		go h.publisher.PublishBroadcast(sessionId, data, excludePlayerId)
	}
}

// BroadcastMove sends a move to all players in a session
func (h *WebSocketHandler) BroadcastMove(sessionId string, game *models.Game, move *models.Move, excludePlayerId string) {
	h.broadcast(sessionId, WSMessage{Type: "move", Game: game, Move: move}, excludePlayerId)
}

// BroadcastPlayerJoined notifies that a player has joined
func (h *WebSocketHandler) BroadcastPlayerJoined(sessionId string, game *models.Game) {
	h.broadcast(sessionId, WSMessage{Type: "player_joined", Game: game}, "")
}

// BroadcastGameOver notifies that the game ended by a king capture
func (h *WebSocketHandler) BroadcastGameOver(sessionId string, game *models.Game) {
	h.broadcast(sessionId, WSMessage{Type: "game_over", Game: game}, "")
}

// BroadcastResignation notifies that a player has resigned
func (h *WebSocketHandler) BroadcastResignation(sessionId string, game *models.Game, resigningColor string, excludePlayerId string) {
	h.broadcast(sessionId, WSMessage{Type: "resignation", Game: game, ResigningColor: resigningColor}, excludePlayerId)
}

// GetHub returns the hub for use by other handlers
func (h *WebSocketHandler) GetHub() *Hub {
	return h.hub
}

// GetGame fetches a game from the store
func (h *WebSocketHandler) GetGame(ctx context.Context, sessionId string) (*models.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.store.FindGame(ctx, sessionId)
}
