package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bitrollup/da-syncer/config"
	"github.com/bitrollup/da-syncer/da"
	"github.com/bitrollup/da-syncer/db"
	"github.com/bitrollup/da-syncer/types"
)

var testMagic = [da.MagicSize]byte{'t', 'd', 'a', '1'}

func newTestDao(t *testing.T) db.DaDao {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	db.AutoMigrateDB(database)
	return db.NewDaSvcDB(database)
}

func newTestConfig(t *testing.T) *config.SyncerConfig {
	return &config.SyncerConfig{
		ChainConfig: config.ChainConfig{
			RPCAddrs:          []string{"http://127.0.0.1:0"},
			EnvelopeMagic:     "74646131", // "tda1"
			StartHeight:       100,
			ConfirmationDepth: 1,
		},
		ArchiveConfig: config.ArchiveConfig{
			BucketName:          "da-batches",
			TempFilePath:        t.TempDir(),
			BundleBlockInterval: 4,
		},
	}
}

// fakeChainClient serves canned blocks, standing in for the node RPC.
type fakeChainClient struct {
	head   uint64
	blocks map[uint64]*wire.MsgBlock
}

func (f *fakeChainClient) GetLatestBlockNum(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeChainClient) GetBlock(ctx context.Context, height uint64) (*wire.MsgBlock, error) {
	block, ok := f.blocks[height]
	if !ok {
		return nil, fmt.Errorf("no block at height %d", height)
	}
	return block, nil
}

func chunkPayload(blobHash chainhash.Hash, index, total uint16, body []byte) []byte {
	header := &da.ChunkHeader{
		Version:     da.ChunkHeaderVersion,
		BlobHash:    blobHash,
		ChunkIndex:  index,
		TotalChunks: total,
	}
	return append(header.Encode(), body...)
}

func buildCarrierTx(t *testing.T, payload []byte, prevTail chainhash.Hash, seed byte) *wire.MsgTx {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	prevOut := wire.OutPoint{Hash: chainhash.Hash{0xee, seed}}
	tx.AddTxIn(wire.NewTxIn(&prevOut, nil, wire.TxWitness{{0x01, seed}, payload}))

	tag := make([]byte, 0, da.MagicSize+chainhash.HashSize)
	tag = append(tag, testMagic[:]...)
	tag = append(tag, prevTail[:]...)
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(tag).
		Script()
	require.NoError(t, err)
	tx.AddTxOut(wire.NewTxOut(0, script))
	tx.AddTxOut(wire.NewTxOut(546, []byte{txscript.OP_TRUE}))
	return tx
}

func buildBlock(prev chainhash.Hash, txs ...*wire.MsgTx) *wire.MsgBlock {
	block := wire.NewMsgBlock(wire.NewBlockHeader(1, &prev, &chainhash.Hash{}, 0, 0))
	for _, tx := range txs {
		block.AddTransaction(tx)
	}
	return block
}

func makeEnvelope(blobHash chainhash.Hash, index, total uint16, body []byte, wtxid, prevTail chainhash.Hash, height uint64, txIndex int) *da.Envelope {
	return &da.Envelope{
		Txid:        wtxid,
		Wtxid:       wtxid,
		Height:      height,
		TxIndex:     txIndex,
		BlobHash:    blobHash,
		ChunkIndex:  index,
		TotalChunks: total,
		Payload:     chunkPayload(blobHash, index, total, body),
		PrevTail:    prevTail,
	}
}

func testHash(n byte) chainhash.Hash {
	return chainhash.HashH([]byte{0xda, n})
}

// TestSyncScansAndStagesBatch drives sync over two blocks carrying a 2-chunk
// blob and checks everything it leaves behind: block rows with chain state,
// envelope rows, the staged batch file and the batch row.
func TestSyncScansAndStagesBatch(t *testing.T) {
	dao := newTestDao(t)
	cfg := newTestConfig(t)

	record := &da.BatchRecord{LastBlockNum: 907, PrevBlockBatchID: [32]byte{0xbb}, StateDiff: []byte("a state diff larger than the empty batch bound")}
	body := record.Encode()
	blobHash := chainhash.HashH(body)
	split := len(body) / 2

	tx0 := buildCarrierTx(t, chunkPayload(blobHash, 0, 2, body[:split]), da.ZeroTail, 1)
	tx1 := buildCarrierTx(t, chunkPayload(blobHash, 1, 2, body[split:]), tx0.WitnessHash(), 2)

	block100 := buildBlock(chainhash.Hash{}, tx0)
	block101 := buildBlock(block100.BlockHash(), tx1)

	s := &DaSyncer{
		daDao: dao,
		client: &fakeChainClient{
			head:   110,
			blocks: map[uint64]*wire.MsgBlock{100: block100, 101: block101},
		},
		config:    cfg,
		extractor: da.NewExtractor(cfg.ChainConfig.Magic()),
		validator: da.NewChainValidator(da.ZeroTail),
	}
	require.NoError(t, s.LoadProgressAndResume(100))

	require.NoError(t, s.sync())
	require.NoError(t, s.sync())

	// block rows carry the register state: mid-blob after 100, settled after 101
	b100, err := dao.GetBlock(100)
	require.NoError(t, err)
	assert.Equal(t, 1, b100.EnvelopeCount)
	assert.False(t, b100.Quiescent)
	assert.Equal(t, da.ZeroTail.String(), b100.ChainTail)

	b101, err := dao.GetBlock(101)
	require.NoError(t, err)
	assert.True(t, b101.Quiescent)
	assert.Equal(t, tx1.WitnessHash().String(), b101.ChainTail)
	assert.Equal(t, block100.BlockHash().String(), b101.PrevHash)

	rows, err := dao.GetEnvelopesByBlobHash(blobHash.String())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, tx0.TxHash().String(), rows[0].TxHash)

	// the completed batch is recorded and staged in the open bundle dir
	batch, err := dao.GetBatchByBlobHash(blobHash.String())
	require.NoError(t, err)
	assert.Equal(t, uint64(101), batch.Height)
	assert.Equal(t, uint64(907), batch.LastBlockNum)
	assert.Equal(t, int64(len(body)), batch.Size)
	assert.False(t, batch.EmptyBatch)
	assert.Equal(t, types.GetBundleName(100, 103), batch.BundleName)

	staged, err := os.ReadFile(filepath.Join(cfg.ArchiveConfig.TempFilePath, batch.BundleName, batch.Name))
	require.NoError(t, err)
	assert.Equal(t, body, staged)

	bundle, err := dao.GetBundle(batch.BundleName)
	require.NoError(t, err)
	assert.Equal(t, db.Finalizing, bundle.Status)

	assert.Empty(t, s.pending)
	require.True(t, s.validator.Valid())
}

func TestSyncRejectsReorgedParent(t *testing.T) {
	dao := newTestDao(t)
	cfg := newTestConfig(t)

	require.NoError(t, dao.SaveBlockAndEnvelopes(&db.Block{
		Hash:      testHash(9).String(),
		Height:    100,
		ChainTail: da.ZeroTail.String(),
		Quiescent: true,
	}, nil))

	// block 101 links to a parent that is not the stored block 100
	block101 := buildBlock(testHash(1))
	s := &DaSyncer{
		daDao:     dao,
		client:    &fakeChainClient{head: 110, blocks: map[uint64]*wire.MsgBlock{101: block101}},
		config:    cfg,
		extractor: da.NewExtractor(cfg.ChainConfig.Magic()),
		validator: da.NewChainValidator(da.ZeroTail),
	}
	require.NoError(t, s.LoadProgressAndResume(101))

	err := s.sync()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "links to parent")
}

// TestVerifyRejectsChainViolation seeds a verified quiescent block and a
// processed block whose envelope does not reference the persisted tail. The
// verify pass must re-derive the break and leave the block unverified.
func TestVerifyRejectsChainViolation(t *testing.T) {
	dao := newTestDao(t)
	tail := testHash(40)

	require.NoError(t, dao.SaveBlockAndEnvelopes(&db.Block{
		Hash: "b100", Height: 100, ChainTail: tail.String(), Quiescent: true, Status: db.Verified,
	}, nil))

	// single-chunk blob whose back-reference skips the tail
	bad := makeEnvelope(testHash(1), 0, 1, []byte("x"), testHash(41), testHash(99), 101, 0)
	require.NoError(t, dao.SaveBlockAndEnvelopes(&db.Block{
		Hash: "b101", Height: 101, ChainTail: testHash(41).String(), Quiescent: true,
	}, []*db.Envelope{toDBEnvelope(bad)}))

	s := &DaSyncer{daDao: dao}
	err := s.verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain validation failed")

	block, err := dao.GetBlock(101)
	require.NoError(t, err)
	assert.Equal(t, db.Processed, block.Status)
	assert.Equal(t, uint64(101), s.verifyViolationsHeight)
}

func TestVerifyAcceptsLinkedBlock(t *testing.T) {
	dao := newTestDao(t)
	tail := testHash(40)

	require.NoError(t, dao.SaveBlockAndEnvelopes(&db.Block{
		Hash: "b100", Height: 100, ChainTail: tail.String(), Quiescent: true, Status: db.Verified,
	}, nil))

	env := makeEnvelope(testHash(1), 0, 1, []byte("x"), testHash(41), tail, 101, 0)
	require.NoError(t, dao.SaveBlockAndEnvelopes(&db.Block{
		Hash: "b101", Height: 101, ChainTail: testHash(41).String(), Quiescent: true,
	}, []*db.Envelope{toDBEnvelope(env)}))

	s := &DaSyncer{daDao: dao}
	require.NoError(t, s.verify())

	block, err := dao.GetBlock(101)
	require.NoError(t, err)
	assert.Equal(t, db.Verified, block.Status)
}

// TestResumeChainState restores the register from the newest quiescent block
// and replays the stored envelopes above it, dropping blobs that had already
// completed.
func TestResumeChainState(t *testing.T) {
	dao := newTestDao(t)

	tail := testHash(50)
	envB0 := makeEnvelope(testHash(1), 0, 3, []byte("b0"), testHash(60), tail, 101, 0)
	envB1 := makeEnvelope(testHash(1), 1, 3, []byte("b1"), testHash(61), testHash(60), 102, 0)
	envC0 := makeEnvelope(testHash(2), 0, 1, []byte("c0"), testHash(62), tail, 102, 3)

	require.NoError(t, dao.SaveBlockAndEnvelopes(&db.Block{
		Hash: "b100", Height: 100, ChainTail: tail.String(), Quiescent: true,
	}, nil))
	require.NoError(t, dao.SaveBlockAndEnvelopes(&db.Block{
		Hash: "b101", Height: 101, ChainTail: tail.String(),
	}, []*db.Envelope{toDBEnvelope(envB0)}))
	require.NoError(t, dao.SaveBlockAndEnvelopes(&db.Block{
		Hash: "b102", Height: 102, ChainTail: testHash(62).String(),
	}, []*db.Envelope{toDBEnvelope(envB1), toDBEnvelope(envC0)}))

	s := &DaSyncer{daDao: dao}
	require.NoError(t, s.resumeChainState())

	// blob C completed before the restart, only blob B stays pending
	require.Len(t, s.pending, 2)
	assert.Equal(t, envB0.Wtxid, s.pending[0].Wtxid)
	assert.Equal(t, envB1.Wtxid, s.pending[1].Wtxid)

	assert.True(t, s.validator.Valid())
	assert.Equal(t, testHash(62), s.validator.Tail())
	assert.False(t, s.validator.Quiescent())
}

func TestResumeChainStateEmptyDB(t *testing.T) {
	dao := newTestDao(t)
	s := &DaSyncer{daDao: dao}
	require.NoError(t, s.resumeChainState())

	assert.Empty(t, s.pending)
	assert.Equal(t, da.ZeroTail, s.validator.Tail())
	assert.True(t, s.validator.Quiescent())
}

func TestLoadProgressAndResume(t *testing.T) {
	dao := newTestDao(t)
	s := &DaSyncer{daDao: dao, config: newTestConfig(t)}

	// fresh DB: open a range right at the requested height
	require.NoError(t, s.LoadProgressAndResume(50))
	assert.Equal(t, types.GetBundleName(50, 53), s.bundleDetail.name)
	assert.Equal(t, uint64(50), s.bundleDetail.startHeight)
	assert.Equal(t, uint64(53), s.bundleDetail.finalizeHeight)

	// an open bundle is picked up again
	require.NoError(t, dao.CreateBundle(&db.Bundle{
		Name: types.GetBundleName(50, 53), StartHeight: 50, EndHeight: 53, Status: db.Finalizing, CreatedTime: 1700000000,
	}))
	require.NoError(t, s.LoadProgressAndResume(52))
	assert.Equal(t, types.GetBundleName(50, 53), s.bundleDetail.name)

	// a bundle the scanner moved past is deprecated, not resumed
	require.NoError(t, s.LoadProgressAndResume(80))
	assert.Equal(t, types.GetBundleName(80, 83), s.bundleDetail.name)
	old, err := dao.GetBundle(types.GetBundleName(50, 53))
	require.NoError(t, err)
	assert.Equal(t, db.Deprecated, old.Status)
}

func TestPrunePendingKeepsIncompleteBlobs(t *testing.T) {
	s := &DaSyncer{}
	s.pending = []*da.Envelope{
		makeEnvelope(testHash(1), 0, 2, []byte("a0"), testHash(10), da.ZeroTail, 5, 0),
		makeEnvelope(testHash(2), 0, 2, []byte("x0"), testHash(11), da.ZeroTail, 5, 1),
		makeEnvelope(testHash(1), 1, 2, []byte("a1"), testHash(12), testHash(10), 6, 0),
	}
	completed, _ := da.ReassembleWithReports(s.pending)
	require.Len(t, completed, 1)

	s.prunePending(completed)
	require.Len(t, s.pending, 1)
	assert.Equal(t, testHash(2), s.pending[0].BlobHash)
}
