package game

import "fmt"

// Turn is a completed move. Turns are never modified once recorded.
type Turn struct {
	Color     Color     `json:"color" bson:"color"`
	PieceType PieceType `json:"pieceType" bson:"pieceType"`
	FromX     uint8     `json:"fromX" bson:"fromX"`
	FromY     uint8     `json:"fromY" bson:"fromY"`
	ToX       uint8     `json:"toX" bson:"toX"`
	ToY       uint8     `json:"toY" bson:"toY"`
}

// From returns the origin square
func (t Turn) From() Position {
	return Position{X: t.FromX, Y: t.FromY}
}

// To returns the destination square
func (t Turn) To() Position {
	return Position{X: t.ToX, Y: t.ToY}
}

// String renders the turn as e.g. "wp 1:4 -> 3:4". Knights use a lowercase
// "k" so they can be told apart from kings.
func (t Turn) String() string {
	color := "w"
	if t.Color == Black {
		color = "b"
	}
	var piece string
	switch t.PieceType {
	case King:
		piece = "K"
	case Queen:
		piece = "Q"
	case Bishop:
		piece = "B"
	case Knight:
		piece = "k"
	case Rook:
		piece = "R"
	case Pawn:
		piece = "p"
	}
	return fmt.Sprintf("%s%s %d:%d -> %d:%d", color, piece, t.FromX, t.FromY, t.ToX, t.ToY)
}

// History is the append-only list of turns played so far
type History struct {
	Turns []Turn `json:"turns" bson:"turns"`
}

// Push appends a turn
func (h *History) Push(t Turn) {
	h.Turns = append(h.Turns, t)
}

// Last returns the most recent turn, if any
func (h *History) Last() (Turn, bool) {
	if h == nil || len(h.Turns) == 0 {
		return Turn{}, false
	}
	return h.Turns[len(h.Turns)-1], true
}

// Len returns the number of recorded turns
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Turns)
}
