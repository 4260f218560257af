package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"chess-moves/internal/game"
)

type PlayerColor string

const (
	White PlayerColor = "white"
	Black PlayerColor = "black"
)

// ColorOf converts a board color to its stored form
func ColorOf(c game.Color) PlayerColor {
	if c == game.Black {
		return Black
	}
	return White
}

// BoardColor converts a stored color to a board color
func (c PlayerColor) BoardColor() game.Color {
	if c == Black {
		return game.Black
	}
	return game.White
}

type GameStatus string

const (
	GameStatusWaiting  GameStatus = "waiting"  // Waiting for second player
	GameStatusActive   GameStatus = "active"   // Game in progress
	GameStatusComplete GameStatus = "complete" // Game finished
)

const (
	WinReasonKingCaptured = "king_captured"
	WinReasonResignation  = "resignation"
)

// Player is a seat in a game. The id is what seat tokens are issued for and
// never leaves the server in a game document.
type Player struct {
	ID          string      `json:"-" bson:"id"`
	DisplayName string      `json:"displayName" bson:"displayName"`
	Color       PlayerColor `json:"color" bson:"color"`
	JoinedAt    time.Time   `json:"joinedAt" bson:"joinedAt"`
}

type Game struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SessionID    string             `json:"sessionId" bson:"sessionId"`
	Players      []Player           `json:"players" bson:"players"`
	Status       GameStatus         `json:"status" bson:"status"`
	Rules        string             `json:"rules" bson:"rules"`
	Pieces       []game.Piece       `json:"pieces" bson:"pieces"`
	Turns        []game.Turn        `json:"turns" bson:"turns"`
	CurrentTurn  PlayerColor        `json:"currentTurn" bson:"currentTurn"`
	Winner       PlayerColor        `json:"winner,omitempty" bson:"winner,omitempty"`
	WinReason    string             `json:"winReason,omitempty" bson:"winReason,omitempty"` // "king_captured" or "resignation"
	PasscodeHash string             `json:"-" bson:"passcodeHash,omitempty"`
	MoveCount    int                `json:"moveCount" bson:"moveCount"`
	StartedAt    *time.Time         `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	CompletedAt  *time.Time         `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Player returns the seated player with the given id
func (g *Game) Player(id string) (Player, bool) {
	for _, p := range g.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Board rebuilds the live board from the stored document
func (g *Game) Board() *game.Board {
	rules, ok := game.RulesByName(g.Rules)
	if !ok {
		rules = game.StandardRules
	}
	b := &game.Board{
		Rules:   rules,
		Pieces:  append([]game.Piece(nil), g.Pieces...),
		History: game.History{Turns: append([]game.Turn(nil), g.Turns...)},
		ToMove:  g.CurrentTurn.BoardColor(),
		Over:    g.Status == GameStatusComplete,
	}
	if g.Winner != "" {
		b.Winner = g.Winner.BoardColor()
	}
	return b
}

// SetBoard copies the board state back into the document
func (g *Game) SetBoard(b *game.Board) {
	g.Pieces = b.Pieces
	g.Turns = b.History.Turns
	g.MoveCount = b.History.Len()
	g.CurrentTurn = ColorOf(b.ToMove)
	if b.Over {
		g.Status = GameStatusComplete
		g.Winner = ColorOf(b.Winner)
		g.WinReason = WinReasonKingCaptured
	}
}

type Move struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	GameID     primitive.ObjectID `json:"gameId" bson:"gameId"`
	SessionID  string             `json:"sessionId" bson:"sessionId"`
	PlayerID   string             `json:"-" bson:"playerId"`
	MoveNumber int                `json:"moveNumber" bson:"moveNumber"`
	From       string             `json:"from" bson:"from"`         // e.g., "e2"
	To         string             `json:"to" bson:"to"`             // e.g., "e4"
	Piece      string             `json:"piece" bson:"piece"`       // e.g., "pawn"
	Notation   string             `json:"notation" bson:"notation"` // e.g., "wp 1:4 -> 3:4"
	Capture    bool               `json:"capture" bson:"capture"`
	EnPassant  bool               `json:"enPassant,omitempty" bson:"enPassant,omitempty"`
	Energy     uint8              `json:"energy" bson:"energy"`
	CreatedAt  time.Time          `json:"createdAt" bson:"createdAt"`
}
