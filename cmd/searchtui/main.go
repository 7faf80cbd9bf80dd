// Command searchtui runs a live search against a fixed starting position and
// renders the growing tree in a terminal dashboard: total simulations, the
// board, and the current top moves by visit count. It is a debugging and
// demo tool, not part of the engine's programmatic API.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tafl-zero/brandubh/board"
	"github.com/tafl-zero/brandubh/engine"
	"github.com/tafl-zero/brandubh/inference"
	"github.com/tafl-zero/brandubh/search"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// searchUpdate reports the tree's state after a batch of simulations. It
// carries the same search.Progress shape cmd/server streams over its
// WebSocket feed, plus the root itself for ranking top moves.
type searchUpdate struct {
	progress search.Progress
	root     *search.Node
	done     bool
	err      error
}

type tickMsg time.Time

type model struct {
	updates    chan searchUpdate
	pos        board.Position
	side       board.Side
	simsTarget int
	progress   search.Progress
	topMoves   []engine.RankedMove
	err        error
	done       bool
}

func initialModel(updates chan searchUpdate, pos board.Position, side board.Side, simsTarget int) model {
	return model{updates: updates, pos: pos, side: side, simsTarget: simsTarget}
}

func waitForUpdate(updates chan searchUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return tickMsg(time.Now())
		}
		return u
	}
}

func (m model) Init() tea.Cmd {
	return waitForUpdate(m.updates)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case searchUpdate:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.progress = msg.progress
		if msg.root != nil {
			m.topMoves = rankChildren(msg.root)
		}
		if msg.done {
			m.done = true
			return m, tea.Quit
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func rankChildren(root *search.Node) []engine.RankedMove {
	total := 0
	for _, c := range root.Children {
		total += c.VisitCount
	}
	ranked := make([]engine.RankedMove, len(root.Children))
	for i, c := range root.Children {
		var prob float32
		if total > 0 {
			prob = float32(c.VisitCount) / float32(total)
		}
		ranked[i] = engine.RankedMove{Move: c.IncomingMove, VisitCount: c.VisitCount, Probability: prob}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].VisitCount > ranked[j].VisitCount })
	if len(ranked) > 8 {
		ranked = ranked[:8]
	}
	return ranked
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("brandubh search") + "\n\n")
	b.WriteString(renderBoard(m.pos))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(fmt.Sprintf("search error: %v\n", m.err))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("side to move: %s\n", m.side))
	b.WriteString(fmt.Sprintf("simulations:  %d / %d\n", m.progress.SimsRun, m.simsTarget))
	b.WriteString(fmt.Sprintf("sims/sec:     %.1f\n", m.progress.SimsPerSec))
	b.WriteString(fmt.Sprintf("max depth:    %d\n", m.progress.MaxDepth))
	b.WriteString(fmt.Sprintf("root value:   %+.3f\n\n", m.progress.RootValue))

	b.WriteString(headerStyle.Render("top moves") + "\n")
	maxVisits := 1
	for _, mv := range m.topMoves {
		if mv.VisitCount > maxVisits {
			maxVisits = mv.VisitCount
		}
	}
	for _, mv := range m.topMoves {
		barLen := (mv.VisitCount * 20) / maxVisits
		bar := barStyle.Render(strings.Repeat("#", barLen))
		b.WriteString(fmt.Sprintf("%s -> %s  %-20s %4d visits (%.1f%%)\n",
			squareString(mv.Move.From), squareString(mv.Move.To), bar, mv.VisitCount, mv.Probability*100))
	}

	if m.done {
		b.WriteString(dimStyle.Render("\nsearch complete, press q to exit\n"))
	} else {
		b.WriteString(dimStyle.Render("\npress q to quit\n"))
	}
	return b.String()
}

var glyphs = map[board.Piece]rune{
	board.Empty:    '.',
	board.Attacker: 'A',
	board.Defender: 'd',
	board.King:     'K',
}

func renderBoard(pos board.Position) string {
	var b strings.Builder
	for row := 0; row < board.Size; row++ {
		for col := 0; col < board.Size; col++ {
			sq := board.Square{Row: row, Col: col}
			b.WriteRune(glyphs[pos.At(sq)])
			b.WriteByte(' ')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func squareString(sq board.Square) string {
	return fmt.Sprintf("%c%d", 'a'+sq.Col, sq.Row+1)
}

// runSearch drives the search in batches, publishing a searchUpdate after
// every batch so the TUI can redraw without blocking on the full budget.
func runSearch(ctx context.Context, eng *engine.Engine, pos board.Position, side board.Side, simsTarget, batch int, updates chan<- searchUpdate) {
	defer close(updates)
	started := time.Now()
	ran := 0
	for ran < simsTarget {
		step := batch
		if remaining := simsTarget - ran; step > remaining {
			step = remaining
		}
		// Search's nSims is an incremental request on top of whatever tree
		// already exists, not a cumulative target, so each call below asks
		// for exactly one more batch's worth of simulations.
		root, err := eng.Search(ctx, pos, side, step)
		if err != nil {
			updates <- searchUpdate{err: err}
			return
		}
		ran += step
		progress := search.ProgressFromRoot(root, simsTarget, time.Since(started))
		updates <- searchUpdate{progress: progress, root: root, done: ran >= simsTarget || root.Terminal}
		if root.Terminal {
			return
		}
	}
}

func main() {
	modelPath := flag.String("model", "", "path to an ONNX policy/value model; empty uses a uniform evaluator")
	sims := flag.Int("sims", 1000, "total MCTS simulations to run")
	batch := flag.Int("batch", 20, "simulations per dashboard refresh")
	cpuct := flag.Float64("cpuct", float64(search.DefaultConfig.Cpuct), "PUCT exploration constant")
	flag.Parse()

	var eval inference.Evaluator = inference.Uniform{}
	if *modelPath != "" {
		onnx, err := inference.NewOnnxEvaluator(*modelPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load model: %v\n", err)
			os.Exit(1)
		}
		defer onnx.Close()
		eval = onnx
	}

	pos := board.InitialPosition()
	side := board.AttackerSide
	eng := engine.New(eval, search.Config{Cpuct: float32(*cpuct)}, rand.New(rand.NewSource(1)))

	updates := make(chan searchUpdate)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runSearch(ctx, eng, pos, side, *sims, *batch, updates)

	p := tea.NewProgram(initialModel(updates, pos, side, *sims))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui error: %v\n", err)
		os.Exit(1)
	}
}
