// Package kvpair defines the canonical key/value attribute type and the
// composite record type that the metadata index and inverted index are
// built on.
package kvpair

import (
	"encoding/binary"

	"vectra/internal/vtxerr"
)

// KVPair is an immutable (key, value) attribute. Two KVPairs are equal iff
// both fields are equal; they order totally by (key, value) lexicographic.
type KVPair struct {
	Key   string
	Value string
}

// New constructs a KVPair.
func New(key, value string) KVPair {
	return KVPair{Key: key, Value: value}
}

// Less reports whether a sorts strictly before b under (key, value)
// lexicographic order.
func Less(a, b KVPair) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	return a.Value < b.Value
}

// Compare returns -1, 0, or 1 for a<b, a==b, a>b under (key, value)
// lexicographic order.
func Compare(a, b KVPair) int {
	if a.Key != b.Key {
		if a.Key < b.Key {
			return -1
		}
		return 1
	}
	switch {
	case a.Value < b.Value:
		return -1
	case a.Value > b.Value:
		return 1
	default:
		return 0
	}
}

// Equal reports whether a and b have identical key and value.
func Equal(a, b KVPair) bool {
	return a.Key == b.Key && a.Value == b.Value
}

// Encode serializes a KVPair to its self-describing blob:
// [key_len:u64][key][value_len:u64][value].
func (kv KVPair) Encode() []byte {
	buf := make([]byte, 8+len(kv.Key)+8+len(kv.Value))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(kv.Key)))
	off := 8
	copy(buf[off:], kv.Key)
	off += len(kv.Key)
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(len(kv.Value)))
	off += 8
	copy(buf[off:], kv.Value)
	return buf
}

// Decode parses a KVPair blob produced by Encode and returns the pair
// along with the number of bytes consumed.
func Decode(data []byte) (KVPair, int, error) {
	if len(data) < 8 {
		return KVPair{}, 0, vtxerr.New(vtxerr.Corruption, "kvpair: blob too small for key length")
	}
	keyLen := binary.LittleEndian.Uint64(data[0:8])
	off := 8
	if uint64(len(data)-off) < keyLen {
		return KVPair{}, 0, vtxerr.New(vtxerr.Corruption, "kvpair: blob too small for key")
	}
	key := string(data[off : uint64(off)+keyLen])
	off += int(keyLen)

	if len(data)-off < 8 {
		return KVPair{}, 0, vtxerr.New(vtxerr.Corruption, "kvpair: blob too small for value length")
	}
	valLen := binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	if uint64(len(data)-off) < valLen {
		return KVPair{}, 0, vtxerr.New(vtxerr.Corruption, "kvpair: blob too small for value")
	}
	value := string(data[off : uint64(off)+valLen])
	off += int(valLen)

	return KVPair{Key: key, Value: value}, off, nil
}

// Codec implements btree.Codec[KVPair], letting the inverted index key a
// B+-tree directly on (key, value) attribute ordering.
type Codec struct{}

func (Codec) Compare(a, b KVPair) int { return Compare(a, b) }
func (Codec) Encode(v KVPair) []byte  { return v.Encode() }
func (Codec) Decode(data []byte) (KVPair, int, error) { return Decode(data) }
