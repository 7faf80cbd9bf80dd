// Package main implements an HTTP+WebSocket server exposing the search
// engine over the network: a JSON best-move endpoint shaped like this
// codebase's other game-playing HTTP servers, and a WebSocket endpoint that
// streams per-batch search progress for a live dashboard to consume.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tafl-zero/brandubh/board"
	"github.com/tafl-zero/brandubh/codec"
	"github.com/tafl-zero/brandubh/engine"
	"github.com/tafl-zero/brandubh/inference"
	"github.com/tafl-zero/brandubh/internal/logging"
	"github.com/tafl-zero/brandubh/rules"
	"github.com/tafl-zero/brandubh/search"
)

// MoveRequest is the JSON body accepted by POST /move: a board position as
// 49 piece codes, row-major from (0,0), plus the side to move.
type MoveRequest struct {
	Squares [board.Size * board.Size]string `json:"squares"`
	Side    string                          `json:"side"`
	Sims    int                             `json:"sims,omitempty"`
	Tau     float32                         `json:"tau,omitempty"`
}

// MoveResponse reports the chosen move and the search statistics behind it.
type MoveResponse struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Visits int    `json:"visits"`
}

// Server holds the shared engine and configuration behind every request.
// Like this codebase's Battlesnake server, one Server serves many requests
// concurrently, guarding the engine's tree with a mutex per game.
type Server struct {
	mu       sync.Mutex
	eng      *engine.Engine
	sims     int
	tau      float32
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(eval inference.Evaluator, cfg search.Config, sims int, tau float32, logger *slog.Logger) *Server {
	return &Server{
		eng:    engine.New(eval, cfg, rand.New(rand.NewSource(time.Now().UnixNano()))),
		sims:   sims,
		tau:    tau,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"engine": "brandubh-mcts", "version": "1"})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pos, side, err := decodeRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sims := req.Sims
	if sims <= 0 {
		sims = s.sims
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	s.mu.Lock()
	move, data, err := s.eng.BestMove(ctx, pos, side, sims, req.Tau)
	s.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	total := 0
	for _, n := range data.VisitCounts {
		total += n
	}

	resp := MoveResponse{
		From:   squareString(move.From),
		To:     squareString(move.To),
		Visits: total,
	}
	s.logger.Info("move served", logging.Move("move", move), "side", side, "visits", total)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// RawPolicyResponse is the body returned by GET /raw-policy: a single
// evaluator call's output, with no tree search behind it.
type RawPolicyResponse struct {
	PolicyLogits [codec.NumPolicyIndices]float32 `json:"policy_logits"`
	Value        float32                         `json:"value"`
}

// handleRawPolicy is a thin wrapper over engine.RawPolicy: encode the
// requested position and run one evaluator call, with no tree involved.
func (s *Server) handleRawPolicy(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pos, side, err := decodeRequest(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	s.mu.Lock()
	logits, value, err := s.eng.RawPolicy(ctx, pos, side)
	s.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RawPolicyResponse{PolicyLogits: logits, Value: value})
}

// handleSearchStream runs a search against the request's position, pushing a
// search.Progress frame after every batch of simulations until the search
// completes or the client disconnects.
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	_, message, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var req MoveRequest
	if err := json.Unmarshal(message, &req); err != nil {
		conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	pos, side, err := decodeRequest(req)
	if err != nil {
		conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	sims := req.Sims
	if sims <= 0 {
		sims = s.sims
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		if _, _, err := conn.ReadMessage(); err != nil {
			cancel()
		}
	}()

	const batch = 25
	started := time.Now()
	ran := 0
	for ran < sims {
		step := batch
		if remaining := sims - ran; step > remaining {
			step = remaining
		}
		// Search's nSims is an incremental request on top of whatever tree
		// already exists, not a cumulative target, so each call below asks
		// for exactly one more batch's worth of simulations.
		s.mu.Lock()
		root, err := s.eng.Search(ctx, pos, side, step)
		s.mu.Unlock()
		if err != nil {
			conn.WriteJSON(map[string]string{"error": err.Error()})
			return
		}
		ran += step
		if err := conn.WriteJSON(search.ProgressFromRoot(root, sims, time.Since(started))); err != nil {
			return
		}
		if root.Terminal {
			break
		}
	}
}

func decodeRequest(req MoveRequest) (board.Position, board.Side, error) {
	var side board.Side
	switch req.Side {
	case "attacker":
		side = board.AttackerSide
	case "defender":
		side = board.DefenderSide
	default:
		return board.Position{}, 0, fmt.Errorf("server: unknown side %q", req.Side)
	}

	var pos board.Position
	for i, code := range req.Squares {
		piece, err := pieceFromCode(code)
		if err != nil {
			return board.Position{}, 0, err
		}
		sq := board.Square{Row: i / board.Size, Col: i % board.Size}
		pos = pos.Set(sq, piece)
	}
	pos = pos.WithSideToMove(side)
	if err := rules.Validate(pos); err != nil {
		return board.Position{}, 0, err
	}
	return pos, side, nil
}

func pieceFromCode(code string) (board.Piece, error) {
	switch code {
	case "", ".":
		return board.Empty, nil
	case "A":
		return board.Attacker, nil
	case "D":
		return board.Defender, nil
	case "K":
		return board.King, nil
	default:
		return 0, fmt.Errorf("server: unknown piece code %q", code)
	}
}

func squareString(sq board.Square) string {
	return fmt.Sprintf("%c%d", 'a'+sq.Col, sq.Row+1)
}

func main() {
	listen := flag.String("listen", ":8080", "HTTP listen address")
	modelPath := flag.String("model", "", "path to an ONNX policy/value model; empty uses a uniform evaluator")
	sims := flag.Int("sims", 400, "default MCTS simulations per move")
	tau := flag.Float64("tau", 0, "default sampling temperature")
	cpuct := flag.Float64("cpuct", float64(search.DefaultConfig.Cpuct), "PUCT exploration constant")
	logLevel := flag.String("log-level", "info", "debug, info, warn, or error")
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.New(os.Stderr, level)

	var eval inference.Evaluator
	if *modelPath == "" {
		logger.Info("no -model given, serving off a uniform evaluator")
		eval = inference.Uniform{}
	} else {
		logger.Info("loading model", "path", *modelPath)
		onnx, err := inference.NewOnnxEvaluator(*modelPath)
		if err != nil {
			logger.Error("failed to load model", "error", err)
			os.Exit(1)
		}
		defer onnx.Close()
		eval = onnx
	}

	cfg := search.Config{Cpuct: float32(*cpuct)}
	server := NewServer(eval, cfg, *sims, float32(*tau), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/", server.handleIndex)
	mux.HandleFunc("/move", server.handleMove)
	mux.HandleFunc("/raw-policy", server.handleRawPolicy)
	mux.HandleFunc("/ws/search", server.handleSearchStream)

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("server listening", "addr", *listen)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
