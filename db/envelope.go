package db

type Envelope struct {
	Id          int64
	TxHash      string `gorm:"NOT NULL;size:64"`
	WtxHash     string `gorm:"NOT NULL;uniqueIndex:idx_envelope_wtx_hash;size:64"`
	Height      uint64 `gorm:"NOT NULL;index:idx_envelope_height_tx_index"`
	TxIndex     int    `gorm:"NOT NULL;index:idx_envelope_height_tx_index"`
	BlobHash    string `gorm:"NOT NULL;index:idx_envelope_blob_hash;size:64"`
	ChunkIndex  uint32 `gorm:"NOT NULL"`
	TotalChunks uint32 `gorm:"NOT NULL"`
	PrevTail    string `gorm:"NOT NULL;size:64"`

	// Body is the chunk payload with the envelope header already stripped.
	Body []byte `gorm:"type:mediumblob"`
}

func (*Envelope) TableName() string {
	return "envelope"
}
