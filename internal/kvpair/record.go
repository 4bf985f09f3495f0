package kvpair

import (
	"encoding/binary"

	"github.com/google/uuid"

	"vectra/internal/vtxerr"
)

// Record is a metadata index entry: the external id, its ordered multiset
// of attributes (insertion order and duplicates preserved), and the index
// of its vector in the dense vector store.
type Record struct {
	ID          uuid.UUID
	Attributes  []KVPair
	VectorIndex uint64
}

// Copy returns a deep copy of r; its Attributes slice does not alias r's.
func (r Record) Copy() Record {
	attrs := make([]KVPair, len(r.Attributes))
	copy(attrs, r.Attributes)
	return Record{ID: r.ID, Attributes: attrs, VectorIndex: r.VectorIndex}
}

// HasAttribute reports whether r carries the exact (key, value) pair.
func (r Record) HasAttribute(kv KVPair) bool {
	for _, a := range r.Attributes {
		if Equal(a, kv) {
			return true
		}
	}
	return false
}

// Encode serializes r as:
// [id:16][vector_index:u64][attr_count:u64][attr blobs concatenated].
func (r Record) Encode() []byte {
	idBytes, _ := r.ID.MarshalBinary()
	buf := make([]byte, 0, 16+8+8+64*len(r.Attributes))
	buf = append(buf, idBytes...)
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], r.VectorIndex)
	buf = append(buf, scratch[:]...)
	binary.LittleEndian.PutUint64(scratch[:], uint64(len(r.Attributes)))
	buf = append(buf, scratch[:]...)
	for _, a := range r.Attributes {
		buf = append(buf, a.Encode()...)
	}
	return buf
}

// DecodeRecord parses a Record blob produced by Encode.
func DecodeRecord(data []byte) (Record, error) {
	if len(data) < 16+8+8 {
		return Record{}, vtxerr.New(vtxerr.Corruption, "kvpair: record blob too small")
	}
	var id uuid.UUID
	if err := id.UnmarshalBinary(data[0:16]); err != nil {
		return Record{}, vtxerr.Wrap(vtxerr.Corruption, err)
	}
	vectorIndex := binary.LittleEndian.Uint64(data[16:24])
	attrCount := binary.LittleEndian.Uint64(data[24:32])

	off := 32
	attrs := make([]KVPair, 0, attrCount)
	for i := uint64(0); i < attrCount; i++ {
		kv, n, err := Decode(data[off:])
		if err != nil {
			return Record{}, err
		}
		attrs = append(attrs, kv)
		off += n
	}
	return Record{ID: id, Attributes: attrs, VectorIndex: vectorIndex}, nil
}
