package btree

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"vectra/internal/vtxerr"
)

// Uint64Codec orders and serializes uint64 keys with a fixed 8-byte
// encoding. Neither the metadata index nor the inverted index uses it;
// this package's own tests key their trees on it.
type Uint64Codec struct{}

func (Uint64Codec) Compare(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (Uint64Codec) Encode(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func (Uint64Codec) Decode(data []byte) (uint64, int, error) {
	if len(data) < 8 {
		return 0, 0, vtxerr.New(vtxerr.Corruption, "btree: uint64 codec blob too small")
	}
	return binary.LittleEndian.Uint64(data[:8]), 8, nil
}

// UUIDCodec orders and serializes uuid.UUID keys, used for the metadata
// index's external id key space.
type UUIDCodec struct{}

func (UUIDCodec) Compare(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (UUIDCodec) Encode(v uuid.UUID) []byte {
	out := make([]byte, 16)
	copy(out, v[:])
	return out
}

func (UUIDCodec) Decode(data []byte) (uuid.UUID, int, error) {
	var out uuid.UUID
	if len(data) < 16 {
		return out, 0, vtxerr.New(vtxerr.Corruption, "btree: uuid codec blob too small")
	}
	copy(out[:], data[:16])
	return out, 16, nil
}

// MsgpackCodec serializes arbitrary values with msgpack. It has no
// natural ordering, so it only implements the Encode/Decode half of
// Codec; trees whose values use it must key on something else (this is
// the standard configuration: the tree orders on K, V just rides along).
type MsgpackCodec[V any] struct{}

func (MsgpackCodec[V]) Encode(v V) []byte {
	b, err := msgpack.Marshal(v)
	if err != nil {
		// Marshaling failure here means V contains a channel, func, or
		// unsafe.Pointer field, which is a programming error: every
		// value type stored in a tree must be msgpack-serializable.
		panic("btree: msgpack encode: " + err.Error())
	}
	return b
}

func (MsgpackCodec[V]) Decode(data []byte) (V, int, error) {
	var out V
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return out, 0, vtxerr.Wrap(vtxerr.Corruption, err)
	}
	return out, len(data), nil
}
