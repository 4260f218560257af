package game

import (
	"golang.org/x/exp/slices"
)

// Rules selects how two ambiguous movement details are resolved.
//
// SeeThroughRays keeps offering squares beyond the first occupied square of a
// rook, bishop or queen ray (only squares holding an own piece are skipped).
// UncheckedDoubleStep lets a pawn on its starting rank advance two squares
// even when the square in between is occupied.
type Rules struct {
	SeeThroughRays      bool
	UncheckedDoubleStep bool
}

var (
	// StandardRules stops rays at the first occupied square and requires both
	// squares of a double pawn push to be empty.
	StandardRules = Rules{}

	// ClassicRules lets rays pass over pieces and skips the intermediate
	// square check of the double pawn push.
	ClassicRules = Rules{SeeThroughRays: true, UncheckedDoubleStep: true}
)

const (
	RulesStandard = "standard"
	RulesClassic  = "classic"
)

// RulesByName resolves "standard" or "classic". An empty name means standard.
func RulesByName(name string) (Rules, bool) {
	switch name {
	case "", RulesStandard:
		return StandardRules, true
	case RulesClassic:
		return ClassicRules, true
	}
	return Rules{}, false
}

// Name returns the name RulesByName accepts for r, or "custom"
func (r Rules) Name() string {
	switch r {
	case StandardRules:
		return RulesStandard
	case ClassicRules:
		return RulesClassic
	}
	return "custom"
}

// CheckedOffset applies delta to a board coordinate. It reports false when the
// result would leave the board.
func CheckedOffset(coord uint8, delta int8) (uint8, bool) {
	v := int(coord) + int(delta)
	if v < 0 || v >= BoardSize {
		return 0, false
	}
	return uint8(v), true
}

// ValidPositions returns the pseudo-legal destinations of piece under StandardRules.
func ValidPositions(piece Piece, pieces []Piece, history *History) []Position {
	return StandardRules.ValidPositions(piece, pieces, history)
}

// IsMoveValid reports whether piece may move to target under StandardRules.
func IsMoveValid(piece Piece, target Position, pieces []Piece, history *History) bool {
	return StandardRules.IsMoveValid(piece, target, pieces, history)
}

// ValidPositions returns every square piece may move to given the other pieces
// on the board. History is only consulted for en passant. Moves that leave the
// own king in check are not filtered out.
func (r Rules) ValidPositions(piece Piece, pieces []Piece, history *History) []Position {
	g := generator{
		rules:   r,
		piece:   piece,
		pieces:  pieces,
		history: history,
		out:     make([]Position, 0, 8),
	}
	switch piece.Type {
	case King:
		g.king()
	case Queen:
		g.rook()
		g.bishop()
	case Bishop:
		g.bishop()
	case Knight:
		g.knight()
	case Rook:
		g.rook()
	case Pawn:
		g.pawn()
	}
	return g.out
}

// IsMoveValid reports whether piece may move to target. A square holding a
// piece of the mover's own color is never a valid target.
func (r Rules) IsMoveValid(piece Piece, target Position, pieces []Piece, history *History) bool {
	if c, ok := ColorOfSquare(target, pieces); ok && c == piece.Color {
		return false
	}
	return slices.Contains(r.ValidPositions(piece, pieces, history), target)
}

// ColorOfSquare returns the color of the first piece found on pos
func ColorOfSquare(pos Position, pieces []Piece) (Color, bool) {
	for _, p := range pieces {
		if p.X == pos.X && p.Y == pos.Y {
			return p.Color, true
		}
	}
	return White, false
}

var knightOffsets = [8][2]int8{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}

type generator struct {
	rules   Rules
	piece   Piece
	pieces  []Piece
	history *History
	out     []Position
}

func (g *generator) offset(dx, dy int8) (Position, bool) {
	x, ok := CheckedOffset(g.piece.X, dx)
	if !ok {
		return Position{}, false
	}
	y, ok := CheckedOffset(g.piece.Y, dy)
	if !ok {
		return Position{}, false
	}
	return Position{X: x, Y: y}, true
}

func (g *generator) occupied(pos Position) bool {
	return slices.IndexFunc(g.pieces, func(p Piece) bool {
		return p.X == pos.X && p.Y == pos.Y
	}) >= 0
}

func (g *generator) occupiedBy(pos Position, c Color) bool {
	return slices.IndexFunc(g.pieces, func(p Piece) bool {
		return p.Color == c && p.X == pos.X && p.Y == pos.Y
	}) >= 0
}

// step offers the square at (dx, dy) unless an own piece stands there
func (g *generator) step(dx, dy int8) {
	pos, ok := g.offset(dx, dy)
	if !ok || g.occupiedBy(pos, g.piece.Color) {
		return
	}
	g.out = append(g.out, pos)
}

func (g *generator) slide(dx, dy int8) {
	for n := int8(1); n <= BoardSize; n++ {
		pos, ok := g.offset(dx*n, dy*n)
		if !ok {
			return
		}
		if g.occupiedBy(pos, g.piece.Color) {
			if g.rules.SeeThroughRays {
				continue
			}
			return
		}
		g.out = append(g.out, pos)
		if !g.rules.SeeThroughRays && g.occupied(pos) {
			// enemy piece: capturable, but the ray ends here
			return
		}
	}
}

func (g *generator) rook() {
	g.slide(1, 0)
	g.slide(-1, 0)
	g.slide(0, 1)
	g.slide(0, -1)
}

func (g *generator) bishop() {
	g.slide(1, 1)
	g.slide(1, -1)
	g.slide(-1, -1)
	g.slide(-1, 1)
}

func (g *generator) knight() {
	for _, o := range knightOffsets {
		g.step(o[0], o[1])
	}
}

func (g *generator) king() {
	for dy := int8(-1); dy <= 1; dy++ {
		for dx := int8(-1); dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			g.step(dx, dy)
		}
	}
}

func (g *generator) pawn() {
	dir, startRank := int8(1), uint8(1)
	if g.piece.Color == Black {
		dir, startRank = -1, 6
	}

	g.advance(dir)
	g.capture(dir, -1)
	g.capture(dir, 1)
	if g.piece.X == startRank {
		if g.rules.UncheckedDoubleStep || g.canAdvance(dir) {
			g.advance(2 * dir)
		}
	}
	g.enPassant(dir)
}

func (g *generator) canAdvance(dx int8) bool {
	pos, ok := g.offset(dx, 0)
	return ok && !g.occupied(pos)
}

// advance offers the square dx ranks ahead if it is completely empty
func (g *generator) advance(dx int8) {
	if g.canAdvance(dx) {
		pos, _ := g.offset(dx, 0)
		g.out = append(g.out, pos)
	}
}

// capture offers a diagonal square only when an opponent piece stands on it
func (g *generator) capture(dx, dy int8) {
	pos, ok := g.offset(dx, dy)
	if !ok || !g.occupiedBy(pos, g.piece.Color.Opposite()) {
		return
	}
	g.out = append(g.out, pos)
}

// enPassant offers the square behind an opponent pawn that has just made a
// double step and now stands directly beside this pawn.
func (g *generator) enPassant(dir int8) {
	last, ok := g.history.Last()
	if !ok {
		return
	}
	if last.Color != g.piece.Color.Opposite() || last.PieceType != Pawn {
		return
	}
	if distance(last.ToX, last.FromX) != 2 || last.ToX != g.piece.X {
		return
	}
	if distance(last.ToY, g.piece.Y) != 1 {
		return
	}
	dy := int8(1)
	if last.ToY < g.piece.Y {
		dy = -1
	}
	g.step(dir, dy)
}

func distance(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
