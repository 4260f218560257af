package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	reference "github.com/Oliverans/GooseEngineMG/goosemg"

	"chess-moves/internal/game"
)

func main() {
	fen := flag.String("fen", game.StartingFEN, "FEN string (defaults to initial position)")
	square := flag.String("square", "", "Only list moves of the piece on this square, e.g. e2")
	rulesName := flag.String("rules", game.RulesStandard, "Movement rules: standard or classic")
	legal := flag.Bool("legal", false, "Also print the strictly legal moves for comparison")
	quiet := flag.Bool("quiet", false, "Do not draw the board")
	flag.Parse()

	rules, ok := game.RulesByName(*rulesName)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown rules %q\n", *rulesName)
		os.Exit(2)
	}

	board, err := game.NewBoardFromFEN(*fen, rules)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	if !*quiet {
		fmt.Print(board.Draw())
		fmt.Printf("%s to move, %s rules\n\n", board.ToMove, rules.Name())
	}

	var from []game.Position
	if *square != "" {
		pos, err := game.ParseSquare(*square)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		from = append(from, pos)
	} else {
		for _, p := range board.Pieces {
			if p.Color == board.ToMove {
				from = append(from, p.Position())
			}
		}
		sort.Slice(from, func(i, j int) bool { return from[i].String() < from[j].String() })
	}

	total := 0
	for _, pos := range from {
		piece, ok := board.PieceAt(pos)
		if !ok {
			fmt.Fprintf(os.Stderr, "no piece on %s\n", pos)
			os.Exit(1)
		}
		positions := rules.ValidPositions(piece, board.Pieces, &board.History)
		dests := make([]string, len(positions))
		for i, p := range positions {
			dests[i] = p.String()
		}
		sort.Strings(dests)
		total += len(dests)
		fmt.Printf("%s %-6s %2d: %s\n", pos, piece.Type, len(dests), strings.Join(dests, " "))
	}
	fmt.Printf("Total: %d\n", total)

	if *legal {
		printLegal(*fen, *square)
	}
}

// printLegal lists the moves a full chess engine accepts from the position,
// which drops moves leaving the own king attacked and adds castling.
func printLegal(fen, square string) {
	b, err := reference.ParseFEN(fen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ParseFEN error: %v\n", err)
		os.Exit(2)
	}
	var moves []string
	for m := range reference.PerftDivide(b, 1) {
		s := m.String()
		if square == "" || strings.HasPrefix(s, square) {
			moves = append(moves, s)
		}
	}
	sort.Strings(moves)
	fmt.Printf("\nLegal (%d): %s\n", len(moves), strings.Join(moves, " "))
}
