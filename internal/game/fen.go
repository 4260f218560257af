package game

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/dylhunn/dragontoothmg"
)

// StartingFEN is the initial position in FEN notation
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// SnapshotFromFEN converts the piece placement and side to move of a FEN
// string into a piece list. Castling rights, the en passant square and the
// clocks are ignored.
func SnapshotFromFEN(fen string) (pieces []Piece, toMove Color, err error) {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return nil, White, fmt.Errorf("invalid FEN: expected at least 4 fields, got %d", len(fields))
	}
	if ranks := strings.Split(fields[0], "/"); len(ranks) != BoardSize {
		return nil, White, fmt.Errorf("invalid FEN: expected %d ranks, got %d", BoardSize, len(ranks))
	}
	// the parser expects both clocks
	switch len(fields) {
	case 4:
		fields = append(fields, "0", "1")
	case 5:
		fields = append(fields, "1")
	}

	defer func() {
		if r := recover(); r != nil {
			pieces, toMove, err = nil, White, fmt.Errorf("invalid FEN %q: %v", fen, r)
		}
	}()
	board := dragontoothmg.ParseFen(strings.Join(fields, " "))

	pieces = make([]Piece, 0, 32)
	pieces = appendBitboards(pieces, White, &board.White)
	pieces = appendBitboards(pieces, Black, &board.Black)

	toMove = White
	if !board.Wtomove {
		toMove = Black
	}
	return pieces, toMove, nil
}

func appendBitboards(pieces []Piece, c Color, bb *dragontoothmg.Bitboards) []Piece {
	for _, set := range []struct {
		t  PieceType
		bb uint64
	}{
		{King, bb.Kings},
		{Queen, bb.Queens},
		{Rook, bb.Rooks},
		{Bishop, bb.Bishops},
		{Knight, bb.Knights},
		{Pawn, bb.Pawns},
	} {
		for b := set.bb; b != 0; b &= b - 1 {
			// square index is rank*8 + file, a1 = 0
			sq := uint8(bits.TrailingZeros64(b))
			pieces = append(pieces, Piece{Color: c, Type: set.t, X: sq / BoardSize, Y: sq % BoardSize})
		}
	}
	return pieces
}

// NewBoardFromFEN returns a board holding the position described by fen
func NewBoardFromFEN(fen string, rules Rules) (*Board, error) {
	pieces, toMove, err := SnapshotFromFEN(fen)
	if err != nil {
		return nil, err
	}
	return &Board{Rules: rules, Pieces: pieces, ToMove: toMove}, nil
}
