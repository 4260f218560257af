package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"chess-moves/internal/audit"
	"chess-moves/internal/auth"
	"chess-moves/internal/db"
	"chess-moves/internal/game"
	"chess-moves/internal/middleware"
	"chess-moves/internal/models"
	"chess-moves/internal/utils"

	"github.com/gorilla/mux"
)

// GameStore is the persistence the game handlers need. *db.MongoDB
// implements it.
type GameStore interface {
	CreateGame(ctx context.Context, game *models.Game) error
	FindGame(ctx context.Context, sessionID string) (*models.Game, error)
	UpdateGame(ctx context.Context, game *models.Game) error
	InsertMove(ctx context.Context, move *models.Move) error
	ListMoves(ctx context.Context, sessionID string) ([]models.Move, error)
}

type GameHandler struct {
	store        GameStore
	ws           *WebSocketHandler
	seats        *auth.SeatService
	passcodes    *auth.PasscodeService
	defaultRules string
	audit        *audit.Logger

	// serializes read-modify-write cycles per session
	locks sync.Map
}

func NewGameHandler(store GameStore, wsHandler *WebSocketHandler, seats *auth.SeatService, passcodes *auth.PasscodeService, defaultRules string) *GameHandler {
	return &GameHandler{
		store:        store,
		ws:           wsHandler,
		seats:        seats,
		passcodes:    passcodes,
		defaultRules: defaultRules,
	}
}

// SetAuditLogger records seat and resignation events through l
func (h *GameHandler) SetAuditLogger(l *audit.Logger) {
	h.audit = l
}

// Register wires the game routes onto api, which is expected to be the /api
// subrouter.
func (h *GameHandler) Register(api *mux.Router, seatAuth *middleware.SeatAuth, limiter *middleware.RateLimiter) {
	games := api.PathPrefix("/games").Subrouter()
	games.Handle("", limiter.IPRateLimitMiddleware(middleware.GameCreationLimit)(http.HandlerFunc(h.CreateGame))).Methods("POST")
	games.HandleFunc("/{sessionId}", h.GetGame).Methods("GET")
	games.Handle("/{sessionId}/join", limiter.IPRateLimitMiddleware(middleware.GameJoinLimit)(http.HandlerFunc(h.JoinGame))).Methods("POST")
	games.HandleFunc("/{sessionId}/moves", h.GetMoves).Methods("GET")
	games.Handle("/{sessionId}/squares/{square}/moves", limiter.IPRateLimitMiddleware(middleware.MoveQueryLimit)(http.HandlerFunc(h.GetSquareMoves))).Methods("GET")

	seated := games.PathPrefix("/{sessionId}").Subrouter()
	seated.Use(seatAuth.RequireSeat)
	seated.Use(limiter.SeatRateLimitMiddleware(middleware.MoveLimit))
	seated.HandleFunc("/move", h.MakeMove).Methods("POST")
	seated.HandleFunc("/resign", h.ResignGame).Methods("POST")
}

type CreateGameRequest struct {
	DisplayName string `json:"displayName,omitempty"`
	Rules       string `json:"rules,omitempty"`
	Passcode    string `json:"passcode,omitempty"`
}

type CreateGameResponse struct {
	SessionID string             `json:"sessionId"`
	PlayerID  string             `json:"playerId"`
	Color     models.PlayerColor `json:"color"`
	SeatToken string             `json:"seatToken"`
	ShareLink string             `json:"shareLink"`
	Rules     string             `json:"rules"`
}

type JoinGameRequest struct {
	DisplayName string `json:"displayName,omitempty"`
	Passcode    string `json:"passcode,omitempty"`
}

type JoinGameResponse struct {
	SessionID string             `json:"sessionId"`
	PlayerID  string             `json:"playerId"`
	Color     models.PlayerColor `json:"color"`
	SeatToken string             `json:"seatToken"`
	Game      *models.Game       `json:"game"`
}

type MakeMoveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type MakeMoveResponse struct {
	Success bool         `json:"success"`
	Move    *models.Move `json:"move,omitempty"`
	Game    *models.Game `json:"game,omitempty"`
}

type SquareMovesResponse struct {
	Square    string          `json:"square"`
	Piece     game.Piece      `json:"piece"`
	Moves     []string        `json:"moves"`
	Positions []game.Position `json:"positions"`
}

type GetMovesResponse struct {
	Moves []models.Move `json:"moves"`
}

type ResignResponse struct {
	Success bool   `json:"success"`
	Winner  string `json:"winner,omitempty"`
}

func generateID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func (h *GameHandler) lock(sessionID string) func() {
	v, _ := h.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// decodeOptional decodes a JSON body into v, accepting an empty body
func decodeOptional(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *GameHandler) findGame(ctx context.Context, w http.ResponseWriter, sessionID string) (*models.Game, bool) {
	g, err := h.store.FindGame(ctx, sessionID)
	if err != nil {
		if errors.Is(err, db.ErrGameNotFound) {
			respondWithError(w, http.StatusNotFound, "Game not found")
			return nil, false
		}
		log.Printf("Failed to fetch game %s: %v", sessionID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch game")
		return nil, false
	}
	return g, true
}

func (h *GameHandler) respondWithUpdateError(w http.ResponseWriter, sessionID string, err error) {
	if errors.Is(err, db.ErrGameConflict) {
		respondWithError(w, http.StatusConflict, "Game changed, please retry")
		return
	}
	log.Printf("Failed to update game %s: %v", sessionID, err)
	respondWithError(w, http.StatusInternalServerError, "Failed to update game")
}

func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req CreateGameRequest
	if err := decodeOptional(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	displayName, err := utils.NormalizeDisplayName(req.DisplayName)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	rulesName := req.Rules
	if rulesName == "" {
		rulesName = h.defaultRules
	}
	rules, ok := game.RulesByName(rulesName)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Unknown rules: "+req.Rules)
		return
	}

	var passcodeHash string
	if req.Passcode != "" {
		hash, err := h.passcodes.Hash(req.Passcode)
		if err != nil {
			if errors.Is(err, auth.ErrPasscodeTooShort) {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			respondWithError(w, http.StatusInternalServerError, "Failed to hash passcode")
			return
		}
		passcodeHash = hash
	}

	sessionID := generateID()
	playerID := generateID()
	now := time.Now()

	g := &models.Game{
		SessionID:    sessionID,
		Players:      []models.Player{{ID: playerID, DisplayName: displayName, Color: models.White, JoinedAt: now}},
		Status:       models.GameStatusWaiting,
		Rules:        rules.Name(),
		Pieces:       game.StartingPieces(),
		Turns:        []game.Turn{},
		CurrentTurn:  models.White,
		PasscodeHash: passcodeHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.store.CreateGame(ctx, g); err != nil {
		log.Printf("Failed to create game: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to create game")
		return
	}

	token, err := h.seats.GenerateSeatToken(sessionID, playerID, string(models.White))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to issue seat token")
		return
	}
	h.audit.LogEvent(audit.EventSeatIssued, sessionID, playerID, r, string(models.White))

	respondWithJSON(w, http.StatusCreated, CreateGameResponse{
		SessionID: sessionID,
		PlayerID:  playerID,
		Color:     models.White,
		SeatToken: token,
		ShareLink: "/game/" + sessionID,
		Rules:     g.Rules,
	})
}

func (h *GameHandler) JoinGame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sessionID := mux.Vars(r)["sessionId"]

	var req JoinGameRequest
	if err := decodeOptional(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// A seated player presenting its current token gets a fresh one for the
	// same seat
	var rejoin *auth.SeatClaims
	if token, ok := middleware.BearerToken(r); ok {
		claims, err := h.seats.ValidateSeatFor(token, sessionID)
		if err != nil {
			respondWithError(w, middleware.SeatErrorStatus(err), err.Error())
			return
		}
		rejoin = claims
	}

	unlock := h.lock(sessionID)
	defer unlock()

	existingGame, ok := h.findGame(ctx, w, sessionID)
	if !ok {
		return
	}

	if rejoin != nil {
		p, ok := existingGame.Player(rejoin.PlayerID)
		if !ok {
			respondWithError(w, http.StatusForbidden, "Player not in game")
			return
		}
		h.respondWithSeat(w, r, existingGame, p)
		return
	}

	if existingGame.Status == models.GameStatusComplete {
		respondWithError(w, http.StatusConflict, "Game is over")
		return
	}
	if len(existingGame.Players) >= 2 {
		respondWithError(w, http.StatusConflict, "Game is full")
		return
	}
	if err := h.passcodes.Compare(existingGame.PasscodeHash, req.Passcode); err != nil {
		h.audit.LogEvent(audit.EventPasscodeRejected, sessionID, "", r, "")
		respondWithError(w, http.StatusForbidden, "Wrong passcode")
		return
	}

	displayName, err := utils.NormalizeDisplayName(req.DisplayName)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	newPlayer := models.Player{
		ID:          generateID(),
		DisplayName: displayName,
		Color:       models.Black,
		JoinedAt:    now,
	}
	existingGame.Players = append(existingGame.Players, newPlayer)
	existingGame.Status = models.GameStatusActive
	existingGame.StartedAt = &now

	if err := h.store.UpdateGame(ctx, existingGame); err != nil {
		h.respondWithUpdateError(w, sessionID, err)
		return
	}

	if h.ws != nil {
		h.ws.BroadcastPlayerJoined(sessionID, existingGame)
	}

	h.respondWithSeat(w, r, existingGame, newPlayer)
}

func (h *GameHandler) respondWithSeat(w http.ResponseWriter, r *http.Request, g *models.Game, p models.Player) {
	token, err := h.seats.GenerateSeatToken(g.SessionID, p.ID, string(p.Color))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to issue seat token")
		return
	}
	h.audit.LogEvent(audit.EventSeatIssued, g.SessionID, p.ID, r, string(p.Color))
	respondWithJSON(w, http.StatusOK, JoinGameResponse{
		SessionID: g.SessionID,
		PlayerID:  p.ID,
		Color:     p.Color,
		SeatToken: token,
		Game:      g,
	})
}

// GetGame returns the game document, or an ASCII diagram of the board when
// called with ?format=text.
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	existingGame, ok := h.findGame(ctx, w, mux.Vars(r)["sessionId"])
	if !ok {
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, existingGame.Board().Draw())
		return
	}

	respondWithJSON(w, http.StatusOK, existingGame)
}

// GetSquareMoves lists the destinations of the piece standing on a square
func (h *GameHandler) GetSquareMoves(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	vars := mux.Vars(r)
	pos, err := game.ParseSquare(vars["square"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid square")
		return
	}

	existingGame, ok := h.findGame(ctx, w, vars["sessionId"])
	if !ok {
		return
	}

	board := existingGame.Board()
	piece, ok := board.PieceAt(pos)
	if !ok {
		respondWithError(w, http.StatusNotFound, "No piece on "+pos.String())
		return
	}
	positions, err := board.ValidPositions(pos)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	moves := make([]string, len(positions))
	for i, p := range positions {
		moves[i] = p.String()
	}
	respondWithJSON(w, http.StatusOK, SquareMovesResponse{
		Square:    pos.String(),
		Piece:     piece,
		Moves:     moves,
		Positions: positions,
	})
}

func (h *GameHandler) MakeMove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sessionID := mux.Vars(r)["sessionId"]
	seat, ok := middleware.GetSeatFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Seat token required")
		return
	}

	var req MakeMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	from, err := game.ParseSquare(req.From)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid from position")
		return
	}
	to, err := game.ParseSquare(req.To)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid to position")
		return
	}

	unlock := h.lock(sessionID)
	defer unlock()

	existingGame, ok := h.findGame(ctx, w, sessionID)
	if !ok {
		return
	}

	player, ok := existingGame.Player(seat.PlayerID)
	if !ok {
		respondWithError(w, http.StatusForbidden, "Player not in game")
		return
	}
	switch existingGame.Status {
	case models.GameStatusWaiting:
		respondWithError(w, http.StatusConflict, "Waiting for an opponent")
		return
	case models.GameStatusComplete:
		respondWithError(w, http.StatusConflict, "Game is over")
		return
	}
	if player.Color != existingGame.CurrentTurn {
		respondWithError(w, http.StatusBadRequest, "Not your turn")
		return
	}

	board := existingGame.Board()
	result, err := board.Apply(from, to)
	if err != nil {
		switch {
		case errors.Is(err, game.ErrGameOver):
			respondWithError(w, http.StatusConflict, err.Error())
		case errors.Is(err, game.ErrNotYourTurn):
			respondWithError(w, http.StatusBadRequest, "Not your piece")
		default:
			respondWithError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	now := time.Now()
	existingGame.SetBoard(board)
	if result.GameOver {
		existingGame.CompletedAt = &now
	}

	move := &models.Move{
		GameID:     existingGame.ID,
		SessionID:  sessionID,
		PlayerID:   player.ID,
		MoveNumber: existingGame.MoveCount,
		From:       from.String(),
		To:         to.String(),
		Piece:      result.Turn.PieceType.String(),
		Notation:   result.Turn.String(),
		Capture:    result.Captured != nil,
		EnPassant:  result.EnPassant,
		Energy:     result.Energy,
		CreatedAt:  now,
	}

	if err := h.store.UpdateGame(ctx, existingGame); err != nil {
		h.respondWithUpdateError(w, sessionID, err)
		return
	}
	// The game document is authoritative; the move log is history only
	if err := h.store.InsertMove(ctx, move); err != nil {
		log.Printf("Failed to record move %d in %s: %v", move.MoveNumber, sessionID, err)
	}

	if h.ws != nil {
		h.ws.BroadcastMove(sessionID, existingGame, move, player.ID)
		if result.GameOver {
			h.ws.BroadcastGameOver(sessionID, existingGame)
		}
	}

	respondWithJSON(w, http.StatusOK, MakeMoveResponse{
		Success: true,
		Move:    move,
		Game:    existingGame,
	})
}

func (h *GameHandler) GetMoves(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sessionID := mux.Vars(r)["sessionId"]
	if _, ok := h.findGame(ctx, w, sessionID); !ok {
		return
	}

	moves, err := h.store.ListMoves(ctx, sessionID)
	if err != nil {
		log.Printf("Failed to fetch moves for %s: %v", sessionID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch moves")
		return
	}

	respondWithJSON(w, http.StatusOK, GetMovesResponse{Moves: moves})
}

func (h *GameHandler) ResignGame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sessionID := mux.Vars(r)["sessionId"]
	seat, ok := middleware.GetSeatFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Seat token required")
		return
	}

	unlock := h.lock(sessionID)
	defer unlock()

	existingGame, ok := h.findGame(ctx, w, sessionID)
	if !ok {
		return
	}

	if existingGame.Status != models.GameStatusActive {
		respondWithError(w, http.StatusConflict, "Game is not active")
		return
	}

	resigningPlayer, ok := existingGame.Player(seat.PlayerID)
	if !ok {
		respondWithError(w, http.StatusForbidden, "Player not in game")
		return
	}
	winnerColor := models.ColorOf(resigningPlayer.Color.BoardColor().Opposite())

	now := time.Now()
	existingGame.Status = models.GameStatusComplete
	existingGame.Winner = winnerColor
	existingGame.WinReason = models.WinReasonResignation
	existingGame.CompletedAt = &now

	if err := h.store.UpdateGame(ctx, existingGame); err != nil {
		h.respondWithUpdateError(w, sessionID, err)
		return
	}

	// Record resignation as a move (for move history)
	resignMove := &models.Move{
		GameID:     existingGame.ID,
		SessionID:  sessionID,
		PlayerID:   resigningPlayer.ID,
		MoveNumber: existingGame.MoveCount + 1,
		Notation:   string(resigningPlayer.Color) + " resigns",
		CreatedAt:  now,
	}
	if err := h.store.InsertMove(ctx, resignMove); err != nil {
		log.Printf("Failed to record resignation in %s: %v", sessionID, err)
	}

	h.audit.LogEvent(audit.EventResignation, sessionID, resigningPlayer.ID, r, string(resigningPlayer.Color))

	if h.ws != nil {
		h.ws.BroadcastResignation(sessionID, existingGame, string(resigningPlayer.Color), resigningPlayer.ID)
	}

	respondWithJSON(w, http.StatusOK, ResignResponse{
		Success: true,
		Winner:  string(winnerColor),
	})
}
