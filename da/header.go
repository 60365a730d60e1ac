package da

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// ChunkHeaderVersion is the only header version the issuer has ever
	// produced. Anything else is rejected, not ignored.
	ChunkHeaderVersion = 0x01

	// ChunkHeaderSize is the fixed length of the header that precedes every
	// chunk body: version(1) + blob hash(32) + chunk index(2) + total(2).
	ChunkHeaderSize = 37
)

var (
	ErrHeaderTooShort = errors.New("chunk header too short")
	ErrUnknownVersion = errors.New("unknown chunk header version")
	ErrBadChunkIndex  = errors.New("chunk index not below total chunk count")
)

// ChunkHeader is the fixed 37-byte prefix of every chunk payload. Multi-byte
// fields are big-endian.
type ChunkHeader struct {
	Version     uint8
	BlobHash    chainhash.Hash
	ChunkIndex  uint16
	TotalChunks uint16
}

// ParseChunkHeader decodes the header at the start of payload.
func ParseChunkHeader(payload []byte) (*ChunkHeader, error) {
	if len(payload) < ChunkHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, want at least %d", ErrHeaderTooShort, len(payload), ChunkHeaderSize)
	}
	if payload[0] != ChunkHeaderVersion {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownVersion, payload[0])
	}
	h := &ChunkHeader{
		Version:     payload[0],
		ChunkIndex:  binary.BigEndian.Uint16(payload[33:35]),
		TotalChunks: binary.BigEndian.Uint16(payload[35:37]),
	}
	copy(h.BlobHash[:], payload[1:33])
	if h.ChunkIndex >= h.TotalChunks {
		return nil, fmt.Errorf("%w: index %d, total %d", ErrBadChunkIndex, h.ChunkIndex, h.TotalChunks)
	}
	return h, nil
}

// Encode serializes the header into its 37-byte wire form, the exact inverse
// of ParseChunkHeader.
func (h *ChunkHeader) Encode() []byte {
	buf := make([]byte, ChunkHeaderSize)
	buf[0] = h.Version
	copy(buf[1:33], h.BlobHash[:])
	binary.BigEndian.PutUint16(buf[33:35], h.ChunkIndex)
	binary.BigEndian.PutUint16(buf[35:37], h.TotalChunks)
	return buf
}
