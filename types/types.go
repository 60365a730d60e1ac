package types

// Blob is a reassembled DA payload as served over the API, raw bytes plus the
// chunk bookkeeping that produced them.
type Blob struct {
	BlobHash    string `json:"blob_hash"`
	Height      uint64 `json:"height"` // height of the block that completed the blob
	TotalChunks uint32 `json:"total_chunks"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	Data        string `json:"data"` // base64 of the reassembled bytes
}

// Batch is the decoded rollup batch carried by one blob.
type Batch struct {
	BlobHash         string `json:"blob_hash"`
	Height           uint64 `json:"height"`
	BundleName       string `json:"bundle_name"`
	LastBlockNum     uint64 `json:"last_block_num"`
	PrevBlockBatchID string `json:"prev_block_batch_id"`
	EmptyBatch       bool   `json:"empty_batch"`
	StateDiff        string `json:"state_diff"` // base64
}

// Envelope is the per-transaction view of a chunk, without its payload.
type Envelope struct {
	TxHash      string `json:"tx_hash"`
	WtxHash     string `json:"wtx_hash"`
	Height      uint64 `json:"height"`
	TxIndex     int    `json:"tx_index"`
	BlobHash    string `json:"blob_hash"`
	ChunkIndex  uint32 `json:"chunk_index"`
	TotalChunks uint32 `json:"total_chunks"`
	PrevTail    string `json:"prev_tail"`
}

// ChainStatus summarizes how far the observer has scanned and verified.
type ChainStatus struct {
	ScannedHeight    uint64 `json:"scanned_height"`
	VerifiedHeight   uint64 `json:"verified_height"`
	ChainTail        string `json:"chain_tail"`
	FinalizingBundle string `json:"finalizing_bundle,omitempty"`
}
