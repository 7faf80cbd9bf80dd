// Package codec implements the fixed arithmetic bijection between Brandubh
// moves and the policy index space [0, 1175] used by the evaluator's policy
// head. The codec has no knowledge of position: it is pure arithmetic over
// board.Move and rules.Direction.
package codec

import (
	"errors"
	"fmt"

	"github.com/tafl-zero/brandubh/board"
	"github.com/tafl-zero/brandubh/rules"
)

// NumPolicyIndices is the size of the policy index space: 49 squares * 4
// directions * 6 distances.
const NumPolicyIndices = board.Size * board.Size * 4 * rules.MaxDistance

// ErrIndexOutOfRange is returned by Decode when given an index outside
// [0, NumPolicyIndices).
var ErrIndexOutOfRange = errors.New("codec: policy index out of range")

// ErrOffBoard is returned by Decode when the index decodes to a move whose
// destination falls off the board. Such indices exist in the index space
// but are never produced by Encode or by a legal-move enumeration.
var ErrOffBoard = errors.New("codec: index decodes off-board")

// Encode maps move to its policy index: fromSquare*24 + direction*6 +
// (distance-1). It assumes move is a strict single-direction orthogonal
// slide; callers that pass an arbitrary from/to pair get an unspecified
// result rather than an error, since the codec does no legality checking.
func Encode(move board.Move) int {
	from := move.From.Row*board.Size + move.From.Col
	dir, dist := slideDirection(move)
	return from*24 + int(dir)*rules.MaxDistance + (dist - 1)
}

// Decode is the total inverse of Encode over [0, NumPolicyIndices). It
// returns ErrIndexOutOfRange for indices outside that range and ErrOffBoard
// when the decoded destination square falls off the board.
func Decode(index int) (board.Move, error) {
	if index < 0 || index >= NumPolicyIndices {
		return board.Move{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	fromSquare := index / 24
	rem := index % 24
	dir := rules.Direction(rem / rules.MaxDistance)
	dist := rem%rules.MaxDistance + 1

	from := board.Square{Row: fromSquare / board.Size, Col: fromSquare % board.Size}
	to := applyDirection(from, dir, dist)
	if !to.InBounds() {
		return board.Move{}, fmt.Errorf("%w: %d", ErrOffBoard, index)
	}
	return board.Move{From: from, To: to}, nil
}

func slideDirection(move board.Move) (rules.Direction, int) {
	dRow := move.To.Row - move.From.Row
	dCol := move.To.Col - move.From.Col
	switch {
	case dRow == 0 && dCol > 0:
		return rules.Right, dCol
	case dRow == 0 && dCol < 0:
		return rules.Left, -dCol
	case dCol == 0 && dRow > 0:
		return rules.Down, dRow
	default:
		return rules.Up, -dRow
	}
}

func applyDirection(from board.Square, dir rules.Direction, dist int) board.Square {
	switch dir {
	case rules.Up:
		return board.Square{Row: from.Row - dist, Col: from.Col}
	case rules.Down:
		return board.Square{Row: from.Row + dist, Col: from.Col}
	case rules.Left:
		return board.Square{Row: from.Row, Col: from.Col - dist}
	default:
		return board.Square{Row: from.Row, Col: from.Col + dist}
	}
}

// LegalEntry pairs a legal move with its policy index.
type LegalEntry struct {
	Move  board.Move
	Index int
}

// AllLegalMoves enumerates every legal move for side in pos together with
// its policy index, in the stable order defined by rules.LegalMoves: pieces
// in row-major order, directions {Up, Down, Left, Right}, distances
// ascending.
func AllLegalMoves(pos board.Position, side board.Side) []LegalEntry {
	moves := rules.LegalMoves(pos, side)
	entries := make([]LegalEntry, len(moves))
	for i, mv := range moves {
		entries[i] = LegalEntry{Move: mv, Index: Encode(mv)}
	}
	return entries
}

// LegalMask returns a length-NumPolicyIndices mask with 1.0 at every index
// reachable by a legal move for side in pos and 0.0 elsewhere. It agrees
// set-wise with AllLegalMoves.
func LegalMask(pos board.Position, side board.Side) [NumPolicyIndices]float32 {
	var mask [NumPolicyIndices]float32
	for _, mv := range rules.LegalMoves(pos, side) {
		mask[Encode(mv)] = 1
	}
	return mask
}
