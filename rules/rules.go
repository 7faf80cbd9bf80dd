// Package rules implements Brandubh legality, capture resolution, and
// termination on top of the board package's value-typed Position.
package rules

import (
	"errors"
	"fmt"

	"github.com/tafl-zero/brandubh/board"
)

// ErrInvalidPosition is returned when an operation is given a malformed
// position (piece-count invariants broken, etc).
var ErrInvalidPosition = errors.New("rules: invalid position")

// ErrIllegalMove is returned by Apply when the supplied move is not legal
// in the given position.
var ErrIllegalMove = errors.New("rules: illegal move")

// Direction is one of the four orthogonal slide directions, ordered to
// match the external move-codec ABI (codec.Direction uses the same order).
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

var directionDeltas = [4]board.Square{
	Up:    {Row: -1, Col: 0},
	Down:  {Row: 1, Col: 0},
	Left:  {Row: 0, Col: -1},
	Right: {Row: 0, Col: 1},
}

// MaxDistance is the longest possible slide on a 7x7 board.
const MaxDistance = board.Size - 1

// Outcome is the result of a terminal-position check.
type Outcome int

const (
	NotOver Outcome = iota
	AttackerWins
	DefenderWins
)

// Validate checks the piece-count invariants a well-formed Brandubh position
// must satisfy: at most 8 attackers, at most 4 defenders, at most 1 king.
func Validate(pos board.Position) error {
	if pos.PieceCount(board.Attacker) > 8 {
		return fmt.Errorf("%w: more than 8 attackers", ErrInvalidPosition)
	}
	if pos.PieceCount(board.Defender) > 4 {
		return fmt.Errorf("%w: more than 4 defenders", ErrInvalidPosition)
	}
	if pos.PieceCount(board.King) > 1 {
		return fmt.Errorf("%w: more than 1 king", ErrInvalidPosition)
	}
	return nil
}

// destinationAllowed reports whether piece may land on sq: only the King may
// stand on a restricted corner.
func destinationAllowed(sq board.Square, piece board.Piece) bool {
	if sq.IsCorner() {
		return piece == board.King
	}
	return true
}

// slideLegal reports whether sliding the piece at from to (from + dir*dist)
// is legal: in bounds, every intermediate square empty, destination empty
// and corner-eligible.
func slideLegal(pos board.Position, from board.Square, piece board.Piece, dir Direction, dist int) (board.Square, bool) {
	delta := directionDeltas[dir]
	to := board.Square{Row: from.Row + delta.Row*dist, Col: from.Col + delta.Col*dist}
	if !to.InBounds() {
		return to, false
	}
	for step := 1; step < dist; step++ {
		mid := board.Square{Row: from.Row + delta.Row*step, Col: from.Col + delta.Col*step}
		if pos.At(mid) != board.Empty {
			return to, false
		}
	}
	if pos.At(to) != board.Empty {
		return to, false
	}
	if !destinationAllowed(to, piece) {
		return to, false
	}
	return to, true
}

// LegalMoves enumerates every legal move for side in pos, in the stable
// order required for testability: pieces in row-major order, directions
// {Up, Down, Left, Right}, distances ascending.
func LegalMoves(pos board.Position, side board.Side) []board.Move {
	moves := make([]board.Move, 0, 16)
	pos.ForEachPiece(func(sq board.Square, piece board.Piece) {
		if !side.Owns(piece) {
			return
		}
		for dir := Up; dir <= Right; dir++ {
			for dist := 1; dist <= MaxDistance; dist++ {
				to, ok := slideLegal(pos, sq, piece, dir, dist)
				if !ok {
					// A blocked or off-board square at this distance means every
					// greater distance in the same direction is blocked too.
					break
				}
				moves = append(moves, board.Move{From: sq, To: to})
			}
		}
	})
	return moves
}

// IsLegal reports whether move is legal for side in pos.
func IsLegal(pos board.Position, side board.Side, move board.Move) bool {
	piece := pos.At(move.From)
	if !side.Owns(piece) {
		return false
	}
	dir, dist, ok := decomposeSlide(move)
	if !ok {
		return false
	}
	to, ok := slideLegal(pos, move.From, piece, dir, dist)
	return ok && to == move.To
}

// decomposeSlide recovers the direction and distance of a candidate move,
// or reports false if it is not a strict single-direction orthogonal slide.
func decomposeSlide(move board.Move) (Direction, int, bool) {
	dRow := move.To.Row - move.From.Row
	dCol := move.To.Col - move.From.Col
	switch {
	case dRow == 0 && dCol == 0:
		return 0, 0, false
	case dRow == 0:
		if dCol > 0 {
			return Right, dCol, true
		}
		return Left, -dCol, true
	case dCol == 0:
		if dRow > 0 {
			return Down, dRow, true
		}
		return Up, -dRow, true
	default:
		return 0, 0, false
	}
}

// Apply relocates the piece at move.From to move.To, resolves captures with
// the mover as the capturer, and returns the resulting position with the
// side to move flipped. It fails with ErrIllegalMove if move is not legal
// for pos's side to move.
func Apply(pos board.Position, move board.Move) (board.Position, error) {
	side := pos.SideToMove()
	if !IsLegal(pos, side, move) {
		return board.Position{}, fmt.Errorf("%w: %v by %v", ErrIllegalMove, move, side)
	}

	piece := pos.At(move.From)
	next := pos.Set(move.From, board.Empty).Set(move.To, piece)
	next = resolveCaptures(next, side, move.To)
	return next.WithSideToMove(side.Opponent()), nil
}

// resolveCaptures removes any enemy piece adjacent to at that is sandwiched
// between the mover (now standing at at) and either a friend of the mover
// or a hostile corner, per the custodial-capture rule. The King is captured
// by the same rule as every other piece.
func resolveCaptures(pos board.Position, moverSide board.Side, at board.Square) board.Position {
	for dir := Up; dir <= Right; dir++ {
		delta := directionDeltas[dir]
		neighbor := board.Square{Row: at.Row + delta.Row, Col: at.Col + delta.Col}
		if !neighbor.InBounds() {
			continue
		}
		neighborPiece := pos.At(neighbor)
		if neighborPiece == board.Empty || moverSide.Owns(neighborPiece) {
			continue
		}
		beyond := board.Square{Row: neighbor.Row + delta.Row, Col: neighbor.Col + delta.Col}
		if !beyond.InBounds() {
			continue
		}
		beyondPiece := pos.At(beyond)
		sandwiched := beyond.IsCorner() || moverSide.Owns(beyondPiece)
		if sandwiched {
			pos = pos.Set(neighbor, board.Empty)
		}
	}
	return pos
}

// kingSquare returns the King's square and whether the King is on the
// board.
func kingSquare(pos board.Position) (board.Square, bool) {
	found := board.Square{}
	ok := false
	pos.ForEachPiece(func(sq board.Square, piece board.Piece) {
		if piece == board.King {
			found = sq
			ok = true
		}
	})
	return found, ok
}

// IsTerminal classifies pos as NotOver, AttackerWins, or DefenderWins,
// checking, in order: King-on-corner, King captured, attacker count zero,
// and stalemate of the side to move.
//
// The attacker-count-zero rule resolves as a Defender win, matching the
// domain convention this engine targets even though it inverts the naive
// "a side with no pieces loses" reading; it is preserved exactly as
// specified.
func IsTerminal(pos board.Position) Outcome {
	sq, kingAlive := kingSquare(pos)
	if kingAlive && sq.IsCorner() {
		return DefenderWins
	}
	if !kingAlive {
		return AttackerWins
	}
	if pos.PieceCount(board.Attacker) == 0 {
		return DefenderWins
	}
	if len(LegalMoves(pos, pos.SideToMove())) == 0 {
		if pos.SideToMove() == board.AttackerSide {
			return DefenderWins
		}
		return AttackerWins
	}
	return NotOver
}

// ResultValue converts a terminal Outcome into a value from the perspective
// of sideToMove: +1 if that side won, -1 if it lost. Callers must not call
// this for NotOver.
func ResultValue(outcome Outcome, sideToMove board.Side) float32 {
	won := (outcome == AttackerWins && sideToMove == board.AttackerSide) ||
		(outcome == DefenderWins && sideToMove == board.DefenderSide)
	if won {
		return 1
	}
	return -1
}
