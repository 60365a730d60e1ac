package da

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// BatchHeaderSize is the fixed prefix of every decoded blob: the last
	// rollup block number (u64, big-endian) followed by the 32-byte batch id
	// of the preceding state.
	BatchHeaderSize = 8 + common.HashLength

	// EmptyStateDiffMaxSize bounds the placeholder diff posted when a period
	// has no state changes: the zero counters for changed accounts, slots and
	// bytecodes. Anything at or below this length classifies as an empty
	// batch.
	EmptyStateDiffMaxSize = 12
)

var ErrBatchTooShort = errors.New("blob too short to hold batch header")

// BatchRecord is the decoded contents of a completed blob: one state-diff
// batch posted by the rollup. The diff bytes themselves are opaque here; only
// their length matters for classification.
type BatchRecord struct {
	LastBlockNum     uint64
	PrevBlockBatchID common.Hash
	StateDiff        []byte
}

// DecodeBatch decodes a reassembled blob into its batch record. A blob too
// short to hold the fixed fields is a decode error, never an empty batch.
func DecodeBatch(blob *Blob) (*BatchRecord, error) {
	if len(blob.Data) < BatchHeaderSize {
		return nil, fmt.Errorf("%w: blob %s holds %d bytes, want at least %d",
			ErrBatchTooShort, blob.BlobHash, len(blob.Data), BatchHeaderSize)
	}
	return &BatchRecord{
		LastBlockNum:     binary.BigEndian.Uint64(blob.Data[:8]),
		PrevBlockBatchID: common.BytesToHash(blob.Data[8:BatchHeaderSize]),
		StateDiff:        blob.Data[BatchHeaderSize:],
	}, nil
}

// Encode serializes the record back into blob-body form, the inverse of
// DecodeBatch.
func (r *BatchRecord) Encode() []byte {
	buf := make([]byte, BatchHeaderSize, BatchHeaderSize+len(r.StateDiff))
	binary.BigEndian.PutUint64(buf[:8], r.LastBlockNum)
	copy(buf[8:], r.PrevBlockBatchID.Bytes())
	return append(buf, r.StateDiff...)
}

// IsEmptyBatch reports whether the record is the placeholder posted to keep
// batch cadence and the back-reference chain unbroken through periods with no
// state changes.
func (r *BatchRecord) IsEmptyBatch() bool {
	return len(r.StateDiff) <= EmptyStateDiffMaxSize
}
