// Package encode implements the state tensor encoding consumed by the
// evaluator: a fixed [4, 7, 7] plane-major float32 layout, grounded on the
// pooled encoder pattern used elsewhere in this codebase for evaluator
// inputs.
package encode

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/tafl-zero/brandubh/board"
)

const (
	// Planes is the number of input planes: Attackers, Defenders, King,
	// SideToMove.
	Planes = 4
	// FloatSize is the total element count of the state tensor.
	FloatSize = Planes * board.Size * board.Size
	// BytesPerFloat is the width of one float32 in the byte encoding.
	BytesPerFloat = 4
	// BufferSize is the byte length of the state tensor's byte encoding.
	BufferSize = FloatSize * BytesPerFloat
)

var floatPool = sync.Pool{
	New: func() interface{} {
		b := make([]float32, FloatSize)
		return &b
	},
}

var bytePool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, BufferSize)
		return &b
	},
}

// GetFloatBuffer returns a pooled float32 slice of length FloatSize. Callers
// must return it with PutFloatBuffer.
func GetFloatBuffer() *[]float32 {
	return floatPool.Get().(*[]float32)
}

// PutFloatBuffer returns a buffer obtained from GetFloatBuffer to the pool.
func PutFloatBuffer(b *[]float32) {
	clear(*b)
	floatPool.Put(b)
}

// GetByteBuffer returns a pooled byte slice of length BufferSize. Callers
// must return it with PutByteBuffer.
func GetByteBuffer() *[]byte {
	return bytePool.Get().(*[]byte)
}

// PutByteBuffer returns a buffer obtained from GetByteBuffer to the pool.
func PutByteBuffer(b *[]byte) {
	clear(*b)
	bytePool.Put(b)
}

func planeOffset(plane int) int {
	return plane * board.Size * board.Size
}

func writePlanes(pos board.Position, side board.Side, set func(idx int, val float32)) {
	pos.ForEachPiece(func(sq board.Square, piece board.Piece) {
		var plane int
		switch piece {
		case board.Attacker:
			plane = 0
		case board.Defender:
			plane = 1
		case board.King:
			plane = 2
		default:
			return
		}
		set(planeOffset(plane)+sq.Row*board.Size+sq.Col, 1.0)
	})
	if side == board.DefenderSide {
		base := planeOffset(3)
		for i := 0; i < board.Size*board.Size; i++ {
			set(base+i, 1.0)
		}
	}
}

// StateToFloat32 encodes pos from side's perspective into a pooled
// [Planes, Size, Size] float32 slice: Attackers on plane 0, Defenders on
// plane 1, the King on plane 2, and plane 3 uniformly 0 or 1 according to
// side. The caller must return the buffer via PutFloatBuffer. The encoding
// is deterministic and total; it never inspects legality or history.
func StateToFloat32(pos board.Position, side board.Side) *[]float32 {
	dataPtr := GetFloatBuffer()
	data := *dataPtr
	clear(data)
	writePlanes(pos, side, func(idx int, val float32) { data[idx] = val })
	return dataPtr
}

// StateToBytes encodes pos the same way as StateToFloat32 but flattens the
// result into a little-endian byte buffer, suitable for evaluator backends
// that accept raw tensor bytes. The caller must return the buffer via
// PutByteBuffer.
func StateToBytes(pos board.Position, side board.Side) *[]byte {
	dataPtr := GetByteBuffer()
	data := *dataPtr
	clear(data)
	writePlanes(pos, side, func(idx int, val float32) {
		binary.LittleEndian.PutUint32(data[idx*BytesPerFloat:], math.Float32bits(val))
	})
	return dataPtr
}

// Tensor is a plain, non-pooled copy of the state tensor, convenient for
// tests and for evaluator backends that want an owned slice.
func Tensor(pos board.Position, side board.Side) [FloatSize]float32 {
	var out [FloatSize]float32
	writePlanes(pos, side, func(idx int, val float32) { out[idx] = val })
	return out
}
