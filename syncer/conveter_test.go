package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitrollup/da-syncer/da"
	"github.com/bitrollup/da-syncer/util"
)

func TestEnvelopeRowRoundTrip(t *testing.T) {
	env := makeEnvelope(testHash(1), 2, 5, []byte("chunk body"), testHash(7), testHash(6), 4242, 13)
	env.Txid = testHash(8)

	row := toDBEnvelope(env)
	assert.Equal(t, testHash(8).String(), row.TxHash)
	assert.Equal(t, testHash(7).String(), row.WtxHash)
	assert.Equal(t, testHash(1).String(), row.BlobHash)
	assert.Equal(t, testHash(6).String(), row.PrevTail)
	assert.Equal(t, uint64(4242), row.Height)
	assert.Equal(t, 13, row.TxIndex)
	assert.Equal(t, uint32(2), row.ChunkIndex)
	assert.Equal(t, uint32(5), row.TotalChunks)
	// the row stores the body only, the header is re-derived on load
	assert.Equal(t, []byte("chunk body"), row.Body)

	back, err := toDaEnvelope(row)
	require.NoError(t, err)
	assert.Equal(t, env, back)
}

func TestToDaEnvelopeBadHash(t *testing.T) {
	row := toDBEnvelope(makeEnvelope(testHash(1), 0, 1, []byte("x"), testHash(2), da.ZeroTail, 1, 0))
	row.BlobHash = "not hex"

	_, err := toDaEnvelope(row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad blob hash")
}

func TestToDBBatch(t *testing.T) {
	record := &da.BatchRecord{
		LastBlockNum:     512,
		PrevBlockBatchID: [32]byte{0xab, 0xcd},
		StateDiff:        []byte("diff"),
	}
	body := record.Encode()
	blob := &da.Blob{
		BlobHash:    testHash(3),
		TotalChunks: 2,
		TotalSize:   len(body),
		Data:        body,
	}

	batch := toDBBatch(blob, record, "batch_h9_x", "blocks_s8_e11", 9)
	assert.Equal(t, testHash(3).String(), batch.BlobHash)
	assert.Equal(t, "batch_h9_x", batch.Name)
	assert.Equal(t, "blocks_s8_e11", batch.BundleName)
	assert.Equal(t, uint64(9), batch.Height)
	assert.Equal(t, uint32(2), batch.TotalChunks)
	assert.Equal(t, int64(len(body)), batch.Size)
	assert.Equal(t, util.GenerateChecksumHex(body), batch.Checksum)
	assert.Equal(t, uint64(512), batch.LastBlockNum)
	assert.Equal(t, "abcd000000000000000000000000000000000000000000000000000000000000", batch.PrevBlockBatchID)
	assert.True(t, batch.EmptyBatch)
}
