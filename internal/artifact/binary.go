package artifact

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MagicSize is the length of every binary artifact header.
const MagicSize = 8

// ErrBadMagic is returned when a binary artifact does not start with the
// expected header.
var ErrBadMagic = errors.New("unexpected binary magic")

// BinaryWriter accumulates little-endian records.
type BinaryWriter struct {
	buf bytes.Buffer
}

// NewBinaryWriter starts a buffer with the given 8-byte magic.
func NewBinaryWriter(magic string) *BinaryWriter {
	w := &BinaryWriter{}
	var m [MagicSize]byte
	copy(m[:], magic)
	w.buf.Write(m[:])
	return w
}

func (w *BinaryWriter) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *BinaryWriter) I32(v int32) {
	w.U32(uint32(v))
}

func (w *BinaryWriter) F64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf.Write(b[:])
}

// Bytes returns the encoded buffer.
func (w *BinaryWriter) Bytes() []byte {
	return w.buf.Bytes()
}

// BinaryReader decodes little-endian records. The first decoding failure is
// sticky and reported by Err.
type BinaryReader struct {
	data []byte
	off  int
	err  error
}

// NewBinaryReader checks the magic and positions the reader after it.
func NewBinaryReader(data []byte, magic string) (*BinaryReader, error) {
	if !HasMagic(data, magic) {
		return nil, fmt.Errorf("%w: want %q", ErrBadMagic, magic)
	}
	return &BinaryReader{data: data, off: MagicSize}, nil
}

// HasMagic reports whether data starts with magic.
func HasMagic(data []byte, magic string) bool {
	return len(data) >= MagicSize && string(data[:MagicSize]) == magic
}

func (r *BinaryReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("truncated record at offset %d: need %d bytes, have %d", r.off, n, len(r.data)-r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *BinaryReader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *BinaryReader) I32() int32 {
	return int32(r.U32())
}

func (r *BinaryReader) F64() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// Remaining returns the number of unread bytes.
func (r *BinaryReader) Remaining() int {
	return len(r.data) - r.off
}

// Err returns the first decoding failure, if any.
func (r *BinaryReader) Err() error {
	return r.err
}
