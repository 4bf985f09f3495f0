// Package snapshot implements the whole-namespace save/load codec: the
// dense vector store, metadata index, inverted index, and ANN tree images
// are concatenated with length prefixes into one section-framed blob, then
// zstd-wrapped. A namespace is durable only as a complete snapshot — there
// is no incremental or per-mutation persistence.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/klauspost/compress/zstd"

	"vectra/internal/vtxerr"
)

// formatVersion is bumped whenever the section layout below changes
// incompatibly. LoadState refuses to decode a snapshot from a newer
// version than it understands.
const formatVersion = 1

// zstdDec is a package-level decoder, concurrent-safe, always available
// for reads.
var zstdDec *zstd.Decoder

func init() {
	var err error
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("snapshot: init zstd decoder: " + err.Error())
	}
}

// zstdEncPool amortizes the allocation cost of a zstd.Encoder's internal
// buffers across repeated SaveState calls, the way this codebase pools
// its own repeated-use compression path.
var zstdEncPool = sync.Pool{
	New: func() any {
		w, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return w
	},
}

// Sections holds the four component images that make up one namespace
// snapshot, already serialized to their own wire formats by their owning
// packages.
type Sections struct {
	VectorStore   []byte
	MetadataIndex []byte
	InvertedIndex []byte
	ANNTree       []byte
}

// Encode frames s's four sections as
// [version:u32][count:u32]{[len:u64][bytes]}*count and zstd-wraps the
// result.
func Encode(s Sections) ([]byte, error) {
	var body bytes.Buffer
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], formatVersion)
	binary.LittleEndian.PutUint32(header[4:8], 4)
	body.Write(header[:])

	for _, section := range [][]byte{s.VectorStore, s.MetadataIndex, s.InvertedIndex, s.ANNTree} {
		writeLengthPrefixed(&body, section)
	}

	enc := zstdEncPool.Get().(*zstd.Encoder)
	defer zstdEncPool.Put(enc)

	var out bytes.Buffer
	enc.Reset(&out)
	if _, err := enc.Write(body.Bytes()); err != nil {
		return nil, vtxerr.Wrap(vtxerr.Corruption, err)
	}
	if err := enc.Close(); err != nil {
		return nil, vtxerr.Wrap(vtxerr.Corruption, err)
	}
	return out.Bytes(), nil
}

func writeLengthPrefixed(buf *bytes.Buffer, section []byte) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(section)))
	buf.Write(lenBuf[:])
	buf.Write(section)
}

// Decode un-zstds data and splits it back into its four sections. A
// version newer than formatVersion, a section count other than 4, or any
// truncated framing surfaces as vtxerr.Corruption.
func Decode(data []byte) (Sections, error) {
	body, err := zstdDec.DecodeAll(data, nil)
	if err != nil {
		return Sections{}, vtxerr.Wrap(vtxerr.Corruption, err)
	}

	if len(body) < 8 {
		return Sections{}, vtxerr.New(vtxerr.Corruption, "snapshot: image too small for header")
	}
	version := binary.LittleEndian.Uint32(body[0:4])
	if version > formatVersion {
		return Sections{}, vtxerr.New(vtxerr.Corruption, "snapshot: unsupported format version")
	}
	count := binary.LittleEndian.Uint32(body[4:8])
	if count != 4 {
		return Sections{}, vtxerr.New(vtxerr.Corruption, "snapshot: expected 4 sections")
	}

	off := 8
	sections := make([][]byte, 4)
	for i := 0; i < 4; i++ {
		section, next, err := readLengthPrefixed(body, off)
		if err != nil {
			return Sections{}, err
		}
		sections[i] = section
		off = next
	}

	return Sections{
		VectorStore:   sections[0],
		MetadataIndex: sections[1],
		InvertedIndex: sections[2],
		ANNTree:       sections[3],
	}, nil
}

func readLengthPrefixed(body []byte, off int) ([]byte, int, error) {
	if len(body)-off < 8 {
		return nil, 0, vtxerr.New(vtxerr.Corruption, "snapshot: truncated section length")
	}
	n := binary.LittleEndian.Uint64(body[off : off+8])
	off += 8
	if uint64(len(body)-off) < n {
		return nil, 0, vtxerr.New(vtxerr.Corruption, "snapshot: truncated section body")
	}
	section := make([]byte, n)
	copy(section, body[off:off+int(n)])
	return section, off + int(n), nil
}
