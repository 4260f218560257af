package game

import (
	"errors"
	"strings"

	"golang.org/x/exp/slices"
)

var (
	ErrGameOver    = errors.New("game is over")
	ErrNoPiece     = errors.New("no piece on source square")
	ErrNotYourTurn = errors.New("not your turn")
	ErrIllegalMove = errors.New("illegal move")
	ErrOffBoard    = errors.New("square is off the board")
)

// Board owns the pieces and the turn history of one game and applies moves
// to them. The move generator only ever reads from it.
type Board struct {
	Rules   Rules
	Pieces  []Piece
	History History
	ToMove  Color
	Over    bool
	Winner  Color
}

// MoveResult describes what a successfully applied move did
type MoveResult struct {
	Turn      Turn
	Captured  *Piece
	EnPassant bool
	// Energy of the moving piece after the move
	Energy   uint8
	GameOver bool
}

var backRank = [BoardSize]PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// StartingPieces returns the 32 pieces of the initial position
func StartingPieces() []Piece {
	pieces := make([]Piece, 0, 4*BoardSize)
	for y, t := range backRank {
		pieces = append(pieces, Piece{Color: White, Type: t, X: 0, Y: uint8(y)})
	}
	for y := uint8(0); y < BoardSize; y++ {
		pieces = append(pieces, Piece{Color: White, Type: Pawn, X: 1, Y: y})
	}
	for y, t := range backRank {
		pieces = append(pieces, Piece{Color: Black, Type: t, X: 7, Y: uint8(y)})
	}
	for y := uint8(0); y < BoardSize; y++ {
		pieces = append(pieces, Piece{Color: Black, Type: Pawn, X: 6, Y: y})
	}
	return pieces
}

// NewBoard returns a board in the starting position with White to move
func NewBoard(rules Rules) *Board {
	return &Board{
		Rules:  rules,
		Pieces: StartingPieces(),
		ToMove: White,
	}
}

// PieceAt returns the piece standing on pos
func (b *Board) PieceAt(pos Position) (Piece, bool) {
	i := b.indexAt(pos)
	if i < 0 {
		return Piece{}, false
	}
	return b.Pieces[i], true
}

func (b *Board) indexAt(pos Position) int {
	return slices.IndexFunc(b.Pieces, func(p Piece) bool {
		return p.X == pos.X && p.Y == pos.Y
	})
}

// ValidPositions returns the destinations of the piece on pos
func (b *Board) ValidPositions(pos Position) ([]Position, error) {
	if !pos.OnBoard() {
		return nil, ErrOffBoard
	}
	p, ok := b.PieceAt(pos)
	if !ok {
		return nil, ErrNoPiece
	}
	return b.Rules.ValidPositions(p, b.Pieces, &b.History), nil
}

// Apply moves the piece on from to to, removing any captured piece, recording
// the turn and handing the move to the other side.
func (b *Board) Apply(from, to Position) (MoveResult, error) {
	if b.Over {
		return MoveResult{}, ErrGameOver
	}
	if !from.OnBoard() || !to.OnBoard() {
		return MoveResult{}, ErrOffBoard
	}
	idx := b.indexAt(from)
	if idx < 0 {
		return MoveResult{}, ErrNoPiece
	}
	mover := b.Pieces[idx]
	if mover.Color != b.ToMove {
		return MoveResult{}, ErrNotYourTurn
	}
	if !b.Rules.IsMoveValid(mover, to, b.Pieces, &b.History) {
		return MoveResult{}, ErrIllegalMove
	}

	result := MoveResult{
		Turn: Turn{
			Color:     mover.Color,
			PieceType: mover.Type,
			FromX:     from.X,
			FromY:     from.Y,
			ToX:       to.X,
			ToY:       to.Y,
		},
	}

	// a pawn moving diagonally onto an empty square takes the pawn beside it
	victimSquare := to
	enPassant := mover.Type == Pawn && from.Y != to.Y && b.indexAt(to) < 0
	if enPassant {
		victimSquare = Position{X: from.X, Y: to.Y}
	}
	if v := b.indexAt(victimSquare); v >= 0 {
		captured := b.Pieces[v]
		result.Captured = &captured
		result.EnPassant = enPassant
		b.Pieces = slices.Delete(b.Pieces, v, v+1)
		if v < idx {
			idx--
		}
		mover.Energy = saturatingAdd(mover.Energy, KillEnergy)
		if captured.Type == King {
			b.Over = true
			b.Winner = mover.Color
		}
	}

	mover.X, mover.Y = to.X, to.Y
	b.Pieces[idx] = mover
	b.History.Push(result.Turn)
	b.ToMove = b.ToMove.Opposite()

	result.Energy = mover.Energy
	result.GameOver = b.Over
	return result, nil
}

func saturatingAdd(a, b uint8) uint8 {
	if a > 255-b {
		return 255
	}
	return a + b
}

var pieceLetters = [...]byte{King: 'K', Queen: 'Q', Bishop: 'B', Knight: 'N', Rook: 'R', Pawn: 'P'}

// Draw returns a visual representation of the board useful for debugging.
// White pieces are uppercase, the top row is the highest rank.
func (b *Board) Draw() string {
	var sb strings.Builder
	sb.WriteString("  a b c d e f g h\n")
	for x := BoardSize - 1; x >= 0; x-- {
		sb.WriteByte(byte('1' + x))
		sb.WriteByte(' ')
		for y := 0; y < BoardSize; y++ {
			p, ok := b.PieceAt(Position{X: uint8(x), Y: uint8(y)})
			switch {
			case !ok:
				sb.WriteByte('.')
			case p.Color == White:
				sb.WriteByte(pieceLetters[p.Type])
			default:
				sb.WriteByte(pieceLetters[p.Type] + 'a' - 'A')
			}
			sb.WriteByte(' ')
		}
		sb.WriteByte(byte('1' + x))
		sb.WriteByte('\n')
	}
	sb.WriteString("  a b c d e f g h\n")
	return sb.String()
}
