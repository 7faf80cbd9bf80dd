// Command play runs a game of Brandubh to completion, printing the board
// and the engine's reasoning after every move it makes. With no -model flag
// it drives the search off a uniform evaluator, which is enough to exercise
// the tree and rules without an ONNX model on hand. With -interactive, one
// side's moves are read from stdin instead of searched.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tafl-zero/brandubh/board"
	"github.com/tafl-zero/brandubh/codec"
	"github.com/tafl-zero/brandubh/engine"
	"github.com/tafl-zero/brandubh/inference"
	"github.com/tafl-zero/brandubh/internal/logging"
	"github.com/tafl-zero/brandubh/rules"
	"github.com/tafl-zero/brandubh/search"
)

func main() {
	modelPath := flag.String("model", "", "path to an ONNX policy/value model; empty uses a uniform evaluator")
	sims := flag.Int("sims", 200, "MCTS simulations per move")
	cpuct := flag.Float64("cpuct", float64(search.DefaultConfig.Cpuct), "PUCT exploration constant")
	fpu := flag.Float64("fpu", float64(search.DefaultConfig.FPUReduction), "first-play urgency reduction")
	tau := flag.Float64("tau", 0, "sampling temperature; 0 selects the most-visited move")
	maxMoves := flag.Int("max-moves", 200, "move cap before the game is declared a draw")
	seed := flag.Int64("seed", 1, "random seed for move sampling")
	logLevel := flag.String("log-level", "info", "debug, info, warn, or error")
	interactive := flag.Bool("interactive", false, "read one side's moves from stdin instead of searching them")
	humanSideFlag := flag.String("human-side", "attacker", "which side stdin plays under -interactive: attacker or defender")
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.New(os.Stderr, level)

	var humanSide board.Side
	if *interactive {
		humanSide, err = parseSide(*humanSideFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	eval, closeEval, err := buildEvaluator(*modelPath, logger)
	if err != nil {
		logger.Error("failed to build evaluator", "error", err)
		os.Exit(1)
	}
	if closeEval != nil {
		defer closeEval()
	}

	cfg := search.Config{
		Cpuct:        float32(*cpuct),
		FPUReduction: float32(*fpu),
		BatchSize:    search.DefaultConfig.BatchSize,
	}
	eng := engine.New(eval, cfg, rand.New(rand.NewSource(*seed)))

	pos := board.InitialPosition()
	side := board.AttackerSide
	stdin := bufio.NewScanner(os.Stdin)

	for turn := 1; turn <= *maxMoves; turn++ {
		if outcome := rules.IsTerminal(pos.WithSideToMove(side)); outcome != rules.NotOver {
			announceResult(logger, outcome, turn)
			return
		}

		var move board.Move
		if *interactive && side == humanSide {
			move, err = readHumanMove(stdin, pos, side)
			if err != nil {
				logger.Error("could not read a move", "turn", turn, "error", err)
				os.Exit(1)
			}
		} else {
			move, err = searchMove(logger, eng, pos, side, turn, *sims, float32(*tau))
			if err != nil {
				logger.Error("search failed", "turn", turn, "side", side, "error", err)
				os.Exit(1)
			}
		}

		next, err := rules.Apply(pos.WithSideToMove(side), move)
		if err != nil {
			logger.Error("illegal move", "turn", turn, "move", move, "error", err)
			os.Exit(1)
		}
		pos = next.WithSideToMove(side.Opponent())
		printBoard(pos)

		side = side.Opponent()
	}

	logger.Warn("move cap reached without a decisive result", "max_moves", *maxMoves)
}

// searchMove runs a search for side's move and logs a per-ply summary: the
// chosen move, the root's value estimate, and the top-3 moves by visit
// count, derived from the PolicyData BestMove returns.
func searchMove(logger *slog.Logger, eng *engine.Engine, pos board.Position, side board.Side, turn, sims int, tau float32) (board.Move, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	move, data, err := eng.BestMove(ctx, pos, side, sims, tau)
	cancel()
	if err != nil {
		return board.Move{}, err
	}

	// The tree eng just built for this position is still cached, so this
	// asks for zero additional simulations purely to read back the root's
	// current statistics (search.Engine.Search reuses rather than rebuilds).
	root, err := eng.Search(context.Background(), pos, side, 0)
	if err != nil {
		return board.Move{}, err
	}

	top, err := topMoves(data.VisitCounts, 3)
	if err != nil {
		return board.Move{}, err
	}

	logger.Info("move played",
		"turn", turn,
		"side", side,
		logging.Move("move", move),
		"root_value", root.Q(),
		"top_moves", top,
	)
	return move, nil
}

type rankedMove struct {
	Move        string  `json:"move"`
	VisitCount  int     `json:"visits"`
	Probability float32 `json:"probability"`
}

// topMoves ranks the k policy indices with the highest visit counts,
// decoding each back to a move via the codec.
func topMoves(counts map[int]int, k int) ([]rankedMove, error) {
	type entry struct {
		index int
		count int
	}
	entries := make([]entry, 0, len(counts))
	total := 0
	for idx, n := range counts {
		entries = append(entries, entry{idx, n})
		total += n
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].count > entries[j].count })
	if len(entries) > k {
		entries = entries[:k]
	}

	ranked := make([]rankedMove, len(entries))
	for i, e := range entries {
		move, err := codec.Decode(e.index)
		if err != nil {
			return nil, err
		}
		var prob float32
		if total > 0 {
			prob = float32(e.count) / float32(total)
		}
		ranked[i] = rankedMove{Move: squareString(move.From) + squareString(move.To), VisitCount: e.count, Probability: prob}
	}
	return ranked, nil
}

// readHumanMove prompts on stdout and reads algebraic-style move notation
// (e.g. "d2d4") from scanner until a legal move is entered or input ends.
func readHumanMove(scanner *bufio.Scanner, pos board.Position, side board.Side) (board.Move, error) {
	for {
		fmt.Printf("%s to move (from-to, e.g. d2d4): ", side)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return board.Move{}, err
			}
			return board.Move{}, fmt.Errorf("cmd/play: stdin closed before a move was entered")
		}
		move, err := parseMove(scanner.Text())
		if err != nil {
			fmt.Println(err)
			continue
		}
		if !rules.IsLegal(pos.WithSideToMove(side), side, move) {
			fmt.Println("that move is not legal in this position")
			continue
		}
		return move, nil
	}
}

func parseMove(s string) (board.Move, error) {
	s = strings.TrimSpace(s)
	if len(s) != 4 {
		return board.Move{}, fmt.Errorf("expected notation like d2d4, got %q", s)
	}
	from, err := parseSquare(s[0:2])
	if err != nil {
		return board.Move{}, err
	}
	to, err := parseSquare(s[2:4])
	if err != nil {
		return board.Move{}, err
	}
	return board.Move{From: from, To: to}, nil
}

func parseSquare(s string) (board.Square, error) {
	if len(s) != 2 {
		return board.Square{}, fmt.Errorf("invalid square %q", s)
	}
	col := int(s[0] - 'a')
	row, err := strconv.Atoi(s[1:])
	if err != nil {
		return board.Square{}, fmt.Errorf("invalid square %q", s)
	}
	sq := board.Square{Row: row - 1, Col: col}
	if !sq.InBounds() {
		return board.Square{}, fmt.Errorf("square %q is off the board", s)
	}
	return sq, nil
}

func parseSide(s string) (board.Side, error) {
	switch strings.ToLower(s) {
	case "attacker":
		return board.AttackerSide, nil
	case "defender":
		return board.DefenderSide, nil
	default:
		return 0, fmt.Errorf("cmd/play: unknown -human-side %q, want attacker or defender", s)
	}
}

func buildEvaluator(modelPath string, logger *slog.Logger) (inference.Evaluator, func(), error) {
	if modelPath == "" {
		logger.Info("no -model given, playing against a uniform evaluator")
		return inference.Uniform{}, nil, nil
	}
	logger.Info("loading model", "path", modelPath)
	onnx, err := inference.NewOnnxEvaluator(modelPath)
	if err != nil {
		return nil, nil, err
	}
	return onnx, func() { onnx.Close() }, nil
}

func announceResult(logger *slog.Logger, outcome rules.Outcome, turn int) {
	switch outcome {
	case rules.AttackerWins:
		logger.Info("game over: attackers win", "turn", turn)
	case rules.DefenderWins:
		logger.Info("game over: defenders win", "turn", turn)
	}
}

func squareString(sq board.Square) string {
	return fmt.Sprintf("%c%d", 'a'+sq.Col, sq.Row+1)
}

var glyphs = map[board.Piece]byte{
	board.Empty:    '.',
	board.Attacker: 'A',
	board.Defender: 'd',
	board.King:     'K',
}

// printBoard renders pos to stdout as a 7x7 ASCII grid, row 0 at the top.
func printBoard(pos board.Position) {
	var b strings.Builder
	for row := 0; row < board.Size; row++ {
		for col := 0; col < board.Size; col++ {
			sq := board.Square{Row: row, Col: col}
			b.WriteByte(glyphs[pos.At(sq)])
			b.WriteByte(' ')
		}
		b.WriteByte('\n')
	}
	fmt.Print(b.String())
}
