package syncer

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/bitrollup/da-syncer/da"
	"github.com/bitrollup/da-syncer/db"
	"github.com/bitrollup/da-syncer/util"
)

// toDBEnvelope flattens an extracted envelope into its persisted row. Hashes
// are stored as display-order hex, the same form the node RPC reports, and
// the body is stored with the chunk header already stripped.
func toDBEnvelope(env *da.Envelope) *db.Envelope {
	return &db.Envelope{
		TxHash:      env.Txid.String(),
		WtxHash:     env.Wtxid.String(),
		Height:      env.Height,
		TxIndex:     env.TxIndex,
		BlobHash:    env.BlobHash.String(),
		ChunkIndex:  uint32(env.ChunkIndex),
		TotalChunks: uint32(env.TotalChunks),
		PrevTail:    env.PrevTail.String(),
		Body:        env.ChunkBody(),
	}
}

// toDaEnvelope rebuilds the in-memory envelope from its row, re-encoding the
// chunk header in front of the stored body so the payload round-trips.
func toDaEnvelope(row *db.Envelope) (*da.Envelope, error) {
	txid, err := chainhash.NewHashFromStr(row.TxHash)
	if err != nil {
		return nil, fmt.Errorf("bad tx hash %q in envelope row %d: %w", row.TxHash, row.Id, err)
	}
	wtxid, err := chainhash.NewHashFromStr(row.WtxHash)
	if err != nil {
		return nil, fmt.Errorf("bad wtx hash %q in envelope row %d: %w", row.WtxHash, row.Id, err)
	}
	blobHash, err := chainhash.NewHashFromStr(row.BlobHash)
	if err != nil {
		return nil, fmt.Errorf("bad blob hash %q in envelope row %d: %w", row.BlobHash, row.Id, err)
	}
	prevTail, err := chainhash.NewHashFromStr(row.PrevTail)
	if err != nil {
		return nil, fmt.Errorf("bad prev tail %q in envelope row %d: %w", row.PrevTail, row.Id, err)
	}
	header := da.ChunkHeader{
		Version:     da.ChunkHeaderVersion,
		BlobHash:    *blobHash,
		ChunkIndex:  uint16(row.ChunkIndex),
		TotalChunks: uint16(row.TotalChunks),
	}
	return &da.Envelope{
		Txid:        *txid,
		Wtxid:       *wtxid,
		Height:      row.Height,
		TxIndex:     row.TxIndex,
		BlobHash:    *blobHash,
		ChunkIndex:  uint16(row.ChunkIndex),
		TotalChunks: uint16(row.TotalChunks),
		Payload:     append(header.Encode(), row.Body...),
		PrevTail:    *prevTail,
	}, nil
}

func toDaEnvelopes(rows []*db.Envelope) ([]*da.Envelope, error) {
	envs := make([]*da.Envelope, 0, len(rows))
	for _, row := range rows {
		env, err := toDaEnvelope(row)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

// toDBBatch builds the batch row for a blob that completed reassembly at the
// given height, inside the given bundle.
func toDBBatch(blob *da.Blob, record *da.BatchRecord, batchName, bundleName string, height uint64) *db.Batch {
	return &db.Batch{
		BlobHash:         blob.BlobHash.String(),
		Name:             batchName,
		BundleName:       bundleName,
		Height:           height,
		TotalChunks:      uint32(blob.TotalChunks),
		Size:             int64(blob.TotalSize),
		Checksum:         util.GenerateChecksumHex(blob.Data),
		LastBlockNum:     record.LastBlockNum,
		PrevBlockBatchID: hex.EncodeToString(record.PrevBlockBatchID.Bytes()),
		EmptyBatch:       record.IsEmptyBatch(),
	}
}
