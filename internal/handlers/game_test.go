package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"chess-moves/internal/auth"
	"chess-moves/internal/db"
	"chess-moves/internal/game"
	"chess-moves/internal/middleware"
	"chess-moves/internal/models"
)

// memStore keeps games in memory and hands out copies, like a database would
type memStore struct {
	mu    sync.Mutex
	games map[string]models.Game
	moves map[string][]models.Move

	insertErr error
}

func newMemStore() *memStore {
	return &memStore{
		games: make(map[string]models.Game),
		moves: make(map[string][]models.Move),
	}
}

func cloneGame(g models.Game) models.Game {
	g.Players = append([]models.Player(nil), g.Players...)
	g.Pieces = append([]game.Piece(nil), g.Pieces...)
	g.Turns = append([]game.Turn(nil), g.Turns...)
	return g
}

func (s *memStore) CreateGame(ctx context.Context, g *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.SessionID] = cloneGame(*g)
	return nil
}

func (s *memStore) FindGame(ctx context.Context, sessionID string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[sessionID]
	if !ok {
		return nil, db.ErrGameNotFound
	}
	g = cloneGame(g)
	return &g, nil
}

func (s *memStore) UpdateGame(ctx context.Context, g *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[g.SessionID]; !ok {
		return db.ErrGameNotFound
	}
	g.UpdatedAt = time.Now()
	s.games[g.SessionID] = cloneGame(*g)
	return nil
}

func (s *memStore) InsertMove(ctx context.Context, move *models.Move) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.moves[move.SessionID] = append(s.moves[move.SessionID], *move)
	return nil
}

func (s *memStore) ListMoves(ctx context.Context, sessionID string) ([]models.Move, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Move{}, s.moves[sessionID]...), nil
}

type testEnv struct {
	srv   *httptest.Server
	store *memStore
	ws    *WebSocketHandler
	seats *auth.SeatService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	seats := auth.NewSeatService("test-secret", time.Hour)
	ws := NewWebSocketHandler(store, seats)
	h := NewGameHandler(store, ws, seats, auth.NewPasscodeService(bcrypt.MinCost), game.RulesStandard)

	limiter := middleware.NewRateLimiter()
	t.Cleanup(limiter.Stop)

	router := mux.NewRouter()
	router.HandleFunc("/ws/games/{sessionId}", ws.HandleWebSocket)
	h.Register(router.PathPrefix("/api").Subrouter(), middleware.NewSeatAuth(seats), limiter)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, ws: ws, seats: seats}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// startGame creates a game and seats a second player
func (e *testEnv) startGame(t *testing.T, create CreateGameRequest) (CreateGameResponse, JoinGameResponse) {
	t.Helper()
	var created CreateGameResponse
	if code := e.do(t, "POST", "/api/games", "", create, &created); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	var joined JoinGameResponse
	if code := e.do(t, "POST", "/api/games/"+created.SessionID+"/join", "", JoinGameRequest{Passcode: create.Passcode}, &joined); code != http.StatusOK {
		t.Fatalf("join: status %d", code)
	}
	return created, joined
}

func TestCreateJoinAndMove(t *testing.T) {
	e := newTestEnv(t)
	white, black := e.startGame(t, CreateGameRequest{DisplayName: "alice"})
	sid := white.SessionID

	if white.Color != models.White || black.Color != models.Black {
		t.Fatalf("colors = %s/%s", white.Color, black.Color)
	}
	if white.Rules != game.RulesStandard {
		t.Fatalf("rules = %q", white.Rules)
	}
	if black.Game.Status != models.GameStatusActive {
		t.Fatalf("status after join = %s", black.Game.Status)
	}

	var sq SquareMovesResponse
	if code := e.do(t, "GET", "/api/games/"+sid+"/squares/e2/moves", "", nil, &sq); code != http.StatusOK {
		t.Fatalf("square moves: status %d", code)
	}
	if diff := cmp.Diff([]string{"e3", "e4"}, sq.Moves); diff != "" {
		t.Fatalf("e2 moves mismatch (-want +got):\n%s", diff)
	}

	var moved MakeMoveResponse
	if code := e.do(t, "POST", "/api/games/"+sid+"/move", white.SeatToken, MakeMoveRequest{From: "e2", To: "e4"}, &moved); code != http.StatusOK {
		t.Fatalf("e2-e4: status %d", code)
	}
	if moved.Move.Notation != "wp 1:4 -> 3:4" || moved.Move.MoveNumber != 1 {
		t.Fatalf("unexpected move %+v", moved.Move)
	}
	if moved.Game.CurrentTurn != models.Black {
		t.Fatalf("current turn = %s", moved.Game.CurrentTurn)
	}

	if code := e.do(t, "POST", "/api/games/"+sid+"/move", white.SeatToken, MakeMoveRequest{From: "d2", To: "d4"}, nil); code != http.StatusBadRequest {
		t.Fatalf("second white move: status %d, want 400", code)
	}
	if code := e.do(t, "POST", "/api/games/"+sid+"/move", black.SeatToken, MakeMoveRequest{From: "e7", To: "e5"}, nil); code != http.StatusOK {
		t.Fatalf("e7-e5: status %d", code)
	}

	var list GetMovesResponse
	if code := e.do(t, "GET", "/api/games/"+sid+"/moves", "", nil, &list); code != http.StatusOK {
		t.Fatalf("list moves: status %d", code)
	}
	var notations []string
	for _, m := range list.Moves {
		notations = append(notations, m.Notation)
	}
	if diff := cmp.Diff([]string{"wp 1:4 -> 3:4", "bp 6:4 -> 4:4"}, notations); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}

	resp, err := http.Get(e.srv.URL + "/api/games/" + sid + "?format=text")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var text bytes.Buffer
	text.ReadFrom(resp.Body)
	if !strings.Contains(text.String(), "4 . . . . P . . . 4") {
		t.Fatalf("board diagram missing e4 pawn:\n%s", text.String())
	}
}

func TestMoveRequiresSeat(t *testing.T) {
	e := newTestEnv(t)
	white, _ := e.startGame(t, CreateGameRequest{})
	path := "/api/games/" + white.SessionID + "/move"
	body := MakeMoveRequest{From: "e2", To: "e4"}

	if code := e.do(t, "POST", path, "", body, nil); code != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", code)
	}
	if code := e.do(t, "POST", path, "not-a-token", body, nil); code != http.StatusUnauthorized {
		t.Errorf("garbage token: status %d, want 401", code)
	}
	other, err := e.seats.GenerateSeatToken("another-game", "someone", "white")
	if err != nil {
		t.Fatal(err)
	}
	if code := e.do(t, "POST", path, other, body, nil); code != http.StatusForbidden {
		t.Errorf("foreign token: status %d, want 403", code)
	}
	stranger, err := e.seats.GenerateSeatToken(white.SessionID, "stranger", "white")
	if err != nil {
		t.Fatal(err)
	}
	if code := e.do(t, "POST", path, stranger, body, nil); code != http.StatusForbidden {
		t.Errorf("unseated player: status %d, want 403", code)
	}
}

func TestMoveErrors(t *testing.T) {
	e := newTestEnv(t)

	var created CreateGameResponse
	e.do(t, "POST", "/api/games", "", nil, &created)
	if code := e.do(t, "POST", "/api/games/"+created.SessionID+"/move", created.SeatToken, MakeMoveRequest{From: "e2", To: "e4"}, nil); code != http.StatusConflict {
		t.Errorf("move before opponent joined: status %d, want 409", code)
	}

	white, _ := e.startGame(t, CreateGameRequest{})
	path := "/api/games/" + white.SessionID + "/move"
	tests := []struct {
		name string
		body MakeMoveRequest
		want int
	}{
		{"illegal destination", MakeMoveRequest{From: "e2", To: "e5"}, http.StatusBadRequest},
		{"capture own piece", MakeMoveRequest{From: "d1", To: "d2"}, http.StatusBadRequest},
		{"opponent piece", MakeMoveRequest{From: "e7", To: "e5"}, http.StatusBadRequest},
		{"empty square", MakeMoveRequest{From: "e4", To: "e5"}, http.StatusBadRequest},
		{"bad square", MakeMoveRequest{From: "z9", To: "e5"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if code := e.do(t, "POST", path, white.SeatToken, tt.body, nil); code != tt.want {
			t.Errorf("%s: status %d, want %d", tt.name, code, tt.want)
		}
	}

	list, _ := e.store.ListMoves(context.Background(), white.SessionID)
	if len(list) != 0 {
		t.Fatalf("rejected moves were recorded: %+v", list)
	}
}

func TestJoinPasscode(t *testing.T) {
	e := newTestEnv(t)

	if code := e.do(t, "POST", "/api/games", "", CreateGameRequest{Passcode: "12"}, nil); code != http.StatusBadRequest {
		t.Fatalf("short passcode: status %d, want 400", code)
	}

	var created CreateGameResponse
	e.do(t, "POST", "/api/games", "", CreateGameRequest{Passcode: "1234"}, &created)
	join := "/api/games/" + created.SessionID + "/join"

	if code := e.do(t, "POST", join, "", JoinGameRequest{}, nil); code != http.StatusForbidden {
		t.Fatalf("join without passcode: status %d, want 403", code)
	}
	if code := e.do(t, "POST", join, "", JoinGameRequest{Passcode: "4321"}, nil); code != http.StatusForbidden {
		t.Fatalf("join with wrong passcode: status %d, want 403", code)
	}
	if code := e.do(t, "POST", join, "", JoinGameRequest{Passcode: "1234"}, nil); code != http.StatusOK {
		t.Fatalf("join with passcode: status %d", code)
	}
	if code := e.do(t, "POST", join, "", JoinGameRequest{Passcode: "1234"}, nil); code != http.StatusConflict {
		t.Fatalf("third player: status %d, want 409", code)
	}

	stored, _ := e.store.FindGame(context.Background(), created.SessionID)
	if stored.PasscodeHash == "" || stored.PasscodeHash == "1234" {
		t.Fatalf("passcode not hashed: %q", stored.PasscodeHash)
	}
}

func TestRejoinReissuesSeat(t *testing.T) {
	e := newTestEnv(t)
	white, black := e.startGame(t, CreateGameRequest{Passcode: "1234"})

	var again JoinGameResponse
	if code := e.do(t, "POST", "/api/games/"+white.SessionID+"/join", black.SeatToken, nil, &again); code != http.StatusOK {
		t.Fatalf("rejoin: status %d", code)
	}
	if again.PlayerID != black.PlayerID || again.Color != models.Black {
		t.Fatalf("rejoin returned %+v", again)
	}
	claims, err := e.seats.ValidateSeatToken(again.SeatToken)
	if err != nil || claims.PlayerID != black.PlayerID {
		t.Fatalf("reissued token invalid: %v", err)
	}
}

func TestRejoinNeedsSeatToken(t *testing.T) {
	e := newTestEnv(t)
	var white CreateGameResponse
	e.do(t, "POST", "/api/games", "", CreateGameRequest{Passcode: "1234"}, &white)
	join := "/api/games/" + white.SessionID + "/join"

	resp, err := http.Get(e.srv.URL + "/api/games/" + white.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	var doc bytes.Buffer
	doc.ReadFrom(resp.Body)
	resp.Body.Close()
	if strings.Contains(doc.String(), white.PlayerID) {
		t.Fatalf("game document exposes the player id: %s", doc.String())
	}

	req, _ := http.NewRequest("POST", e.srv.URL+join, nil)
	req.Header.Set("X-Player-ID", white.PlayerID)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("join by player id alone: status %d, want 403", resp.StatusCode)
	}

	otherGame, _ := e.seats.GenerateSeatToken("another-game", white.PlayerID, "white")
	unseated, _ := e.seats.GenerateSeatToken(white.SessionID, "stranger", "black")
	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"forged token", "not-a-token", http.StatusUnauthorized},
		{"token for another game", otherGame, http.StatusForbidden},
		{"token for an empty seat", unseated, http.StatusForbidden},
	}
	for _, tt := range tests {
		if code := e.do(t, "POST", join, tt.token, nil, nil); code != tt.want {
			t.Errorf("%s: status %d, want %d", tt.name, code, tt.want)
		}
	}

	stored, _ := e.store.FindGame(context.Background(), white.SessionID)
	if len(stored.Players) != 1 {
		t.Fatalf("players = %d, want 1", len(stored.Players))
	}
}

func TestMoveSurvivesMoveLogFailure(t *testing.T) {
	e := newTestEnv(t)
	white, _ := e.startGame(t, CreateGameRequest{})
	sid := white.SessionID

	e.store.mu.Lock()
	e.store.insertErr = errors.New("write concern timeout")
	e.store.mu.Unlock()

	var moved MakeMoveResponse
	if code := e.do(t, "POST", "/api/games/"+sid+"/move", white.SeatToken, MakeMoveRequest{From: "e2", To: "e4"}, &moved); code != http.StatusOK {
		t.Fatalf("e2-e4: status %d, want 200", code)
	}
	if moved.Move == nil || moved.Move.MoveNumber != 1 {
		t.Fatalf("move %+v", moved.Move)
	}
	stored, _ := e.store.FindGame(context.Background(), sid)
	if stored.CurrentTurn != models.Black || stored.MoveCount != 1 {
		t.Fatalf("stored game turn=%s moves=%d", stored.CurrentTurn, stored.MoveCount)
	}
}

func TestRulesSelection(t *testing.T) {
	e := newTestEnv(t)

	if code := e.do(t, "POST", "/api/games", "", CreateGameRequest{Rules: "atomic"}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown rules: status %d, want 400", code)
	}

	var created CreateGameResponse
	e.do(t, "POST", "/api/games", "", CreateGameRequest{Rules: game.RulesClassic}, &created)
	if created.Rules != game.RulesClassic {
		t.Fatalf("rules = %q", created.Rules)
	}

	// rays pass over the pawn on a2
	var sq SquareMovesResponse
	if code := e.do(t, "GET", "/api/games/"+created.SessionID+"/squares/a1/moves", "", nil, &sq); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if diff := cmp.Diff([]string{"a3", "a4", "a5", "a6", "a7", "a8"}, sq.Moves); diff != "" {
		t.Fatalf("a1 moves mismatch (-want +got):\n%s", diff)
	}
	if sq.Piece.Type != game.Rook || sq.Piece.Color != game.White {
		t.Fatalf("piece = %+v", sq.Piece)
	}
}

func TestSquareMovesErrors(t *testing.T) {
	e := newTestEnv(t)
	var created CreateGameResponse
	e.do(t, "POST", "/api/games", "", nil, &created)
	base := "/api/games/" + created.SessionID + "/squares/"

	if code := e.do(t, "GET", base+"j9/moves", "", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad square: status %d, want 400", code)
	}
	if code := e.do(t, "GET", base+"e4/moves", "", nil, nil); code != http.StatusNotFound {
		t.Errorf("empty square: status %d, want 404", code)
	}
	if code := e.do(t, "GET", "/api/games/missing/squares/e2/moves", "", nil, nil); code != http.StatusNotFound {
		t.Errorf("unknown game: status %d, want 404", code)
	}
}

func TestResign(t *testing.T) {
	e := newTestEnv(t)
	white, black := e.startGame(t, CreateGameRequest{})
	sid := white.SessionID

	var res ResignResponse
	if code := e.do(t, "POST", "/api/games/"+sid+"/resign", black.SeatToken, nil, &res); code != http.StatusOK {
		t.Fatalf("resign: status %d", code)
	}
	if !res.Success || res.Winner != string(models.White) {
		t.Fatalf("resign response %+v", res)
	}

	stored, _ := e.store.FindGame(context.Background(), sid)
	if stored.Status != models.GameStatusComplete || stored.WinReason != models.WinReasonResignation {
		t.Fatalf("stored game %s/%s", stored.Status, stored.WinReason)
	}
	if code := e.do(t, "POST", "/api/games/"+sid+"/move", white.SeatToken, MakeMoveRequest{From: "e2", To: "e4"}, nil); code != http.StatusConflict {
		t.Fatalf("move after resignation: status %d, want 409", code)
	}
	if code := e.do(t, "POST", "/api/games/"+sid+"/resign", white.SeatToken, nil, nil); code != http.StatusConflict {
		t.Fatalf("second resignation: status %d, want 409", code)
	}
}

func TestKingCaptureEndsGame(t *testing.T) {
	e := newTestEnv(t)
	now := time.Now()
	g := &models.Game{
		SessionID: "endgame",
		Players: []models.Player{
			{ID: "w", Color: models.White, JoinedAt: now},
			{ID: "b", Color: models.Black, JoinedAt: now},
		},
		Status: models.GameStatusActive,
		Rules:  game.RulesStandard,
		Pieces: []game.Piece{
			{Color: game.White, Type: game.Queen, X: 0, Y: 0},
			{Color: game.White, Type: game.King, X: 0, Y: 4},
			{Color: game.Black, Type: game.King, X: 7, Y: 7},
		},
		CurrentTurn: models.White,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.store.CreateGame(context.Background(), g)
	token, _ := e.seats.GenerateSeatToken("endgame", "w", "white")

	var moved MakeMoveResponse
	if code := e.do(t, "POST", "/api/games/endgame/move", token, MakeMoveRequest{From: "a1", To: "h8"}, &moved); code != http.StatusOK {
		t.Fatalf("Qxh8: status %d", code)
	}
	if !moved.Move.Capture || moved.Move.Energy != game.KillEnergy {
		t.Fatalf("move %+v", moved.Move)
	}
	if moved.Game.Status != models.GameStatusComplete || moved.Game.Winner != models.White || moved.Game.WinReason != models.WinReasonKingCaptured {
		t.Fatalf("game %s winner=%s reason=%s", moved.Game.Status, moved.Game.Winner, moved.Game.WinReason)
	}
	if moved.Game.CompletedAt == nil {
		t.Fatalf("completedAt not set")
	}
}

func TestWebSocketReceivesMove(t *testing.T) {
	e := newTestEnv(t)
	white, black := e.startGame(t, CreateGameRequest{})
	sid := white.SessionID

	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/games/" + sid + "?token=" + black.SeatToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read initial state: %v", err)
	}
	if msg.Type != "game_state" || msg.Game.SessionID != sid {
		t.Fatalf("first message %+v", msg)
	}

	deadline := time.Now().Add(2 * time.Second)
	for connected(e.ws.GetHub(), sid) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if code := e.do(t, "POST", "/api/games/"+sid+"/move", white.SeatToken, MakeMoveRequest{From: "g1", To: "f3"}, nil); code != http.StatusOK {
		t.Fatalf("Nf3: status %d", code)
	}

	msg = WSMessage{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read move: %v", err)
	}
	if msg.Type != "move" || msg.Move == nil || msg.Move.Notation != "wk 0:6 -> 2:5" {
		t.Fatalf("move message %+v", msg)
	}
}

// connected counts the live connections of a session
func connected(h *Hub, sessionId string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionId])
}

func TestWebSocketRejectsStrangers(t *testing.T) {
	e := newTestEnv(t)
	white, _ := e.startGame(t, CreateGameRequest{})
	sid := white.SessionID

	otherGame, _ := e.seats.GenerateSeatToken("another-game", white.PlayerID, "white")
	unseated, _ := e.seats.GenerateSeatToken(sid, "stranger", "white")
	missing, _ := e.seats.GenerateSeatToken("missing", white.PlayerID, "white")

	base := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/games/"
	tests := []struct {
		name string
		url  string
		want int
	}{
		{"player id only", base + sid + "?playerId=" + white.PlayerID, http.StatusUnauthorized},
		{"forged token", base + sid + "?token=not-a-token", http.StatusUnauthorized},
		{"token for another game", base + sid + "?token=" + otherGame, http.StatusForbidden},
		{"token for an empty seat", base + sid + "?token=" + unseated, http.StatusForbidden},
		{"unknown game", base + "missing?token=" + missing, http.StatusNotFound},
	}
	for _, tt := range tests {
		_, resp, err := websocket.DefaultDialer.Dial(tt.url, nil)
		if err == nil || resp == nil || resp.StatusCode != tt.want {
			t.Errorf("%s: expected %d, got %v", tt.name, tt.want, err)
		}
	}
	if n := connected(e.ws.GetHub(), sid); n != 0 {
		t.Fatalf("rejected dials registered %d connection(s)", n)
	}
}
