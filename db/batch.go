package db

type Batch struct {
	Id               int64
	BlobHash         string `gorm:"NOT NULL;uniqueIndex:idx_batch_blob_hash;size:64"`
	Name             string `gorm:"NOT NULL;size:96"`
	BundleName       string `gorm:"NOT NULL;size:64"`
	Height           uint64 `gorm:"NOT NULL;index:idx_batch_height"` // height of the block that completed the batch
	TotalChunks      uint32
	Size             int64
	Checksum         string `gorm:"NOT NULL;size:64"` // sha256 of the reassembled bytes
	LastBlockNum     uint64 `gorm:"index:idx_batch_last_block_num"`
	PrevBlockBatchID string `gorm:"size:64"`
	EmptyBatch       bool
}

func (*Batch) TableName() string {
	return "batch"
}
