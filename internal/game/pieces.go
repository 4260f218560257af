package game

import (
	"fmt"
)

// BoardSize is the number of ranks and files on the board
const BoardSize = 8

// KillEnergy is the energy a piece gains for every capture
const KillEnergy uint8 = 10

// Color is the side a piece belongs to
type Color uint8

const (
	White Color = iota
	Black
)

// Opposite returns the other side
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	}
	return fmt.Sprintf("Color(%d)", uint8(c))
}

func (c Color) MarshalText() ([]byte, error) {
	if c != White && c != Black {
		return nil, fmt.Errorf("invalid color: %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	color, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = color
	return nil
}

// ParseColor converts "white" or "black" to a Color
func ParseColor(s string) (Color, error) {
	switch s {
	case "white":
		return White, nil
	case "black":
		return Black, nil
	}
	return White, fmt.Errorf("invalid color: %q", s)
}

// PieceType identifies how a piece moves
type PieceType uint8

const (
	King PieceType = iota
	Queen
	Bishop
	Knight
	Rook
	Pawn
)

var pieceTypeNames = [...]string{
	King:   "king",
	Queen:  "queen",
	Bishop: "bishop",
	Knight: "knight",
	Rook:   "rook",
	Pawn:   "pawn",
}

func (t PieceType) String() string {
	if int(t) < len(pieceTypeNames) {
		return pieceTypeNames[t]
	}
	return fmt.Sprintf("PieceType(%d)", uint8(t))
}

func (t PieceType) MarshalText() ([]byte, error) {
	if int(t) >= len(pieceTypeNames) {
		return nil, fmt.Errorf("invalid piece type: %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *PieceType) UnmarshalText(text []byte) error {
	for i, name := range pieceTypeNames {
		if name == string(text) {
			*t = PieceType(i)
			return nil
		}
	}
	return fmt.Errorf("invalid piece type: %q", string(text))
}

// Piece is a single piece on the board. X is the rank (the axis pawns
// advance along, White towards higher values) and Y is the file.
type Piece struct {
	Color  Color     `json:"color" bson:"color"`
	Type   PieceType `json:"type" bson:"type"`
	X      uint8     `json:"x" bson:"x"`
	Y      uint8     `json:"y" bson:"y"`
	Energy uint8     `json:"energy" bson:"energy"`
}

// Position returns the square the piece stands on
func (p Piece) Position() Position {
	return Position{X: p.X, Y: p.Y}
}

// Position is a square on the board
type Position struct {
	X uint8 `json:"x" bson:"x"`
	Y uint8 `json:"y" bson:"y"`
}

// ParseSquare converts algebraic notation (e.g., "e2") to a Position
func ParseSquare(s string) (Position, error) {
	if len(s) != 2 {
		return Position{}, fmt.Errorf("invalid square: %q", s)
	}
	file := int(s[0]) - 'a'
	rank := int(s[1]) - '1'
	if file < 0 || file >= BoardSize || rank < 0 || rank >= BoardSize {
		return Position{}, fmt.Errorf("invalid square: %q", s)
	}
	return Position{X: uint8(rank), Y: uint8(file)}, nil
}

// String converts the Position to algebraic notation
func (p Position) String() string {
	return fmt.Sprintf("%c%c", 'a'+p.Y, '1'+p.X)
}

// OnBoard reports whether both coordinates are inside the board
func (p Position) OnBoard() bool {
	return p.X < BoardSize && p.Y < BoardSize
}
