package db

type Status int

const (
	Processed Status = 0
	Verified  Status = 1 // each block's envelopes are re-checked by the post-verification process
)

type Block struct {
	Id            int64
	Hash          string `gorm:"NOT NULL;index:idx_block_hash;size:64"`
	PrevHash      string `gorm:"size:64"`
	Height        uint64 `gorm:"NOT NULL;uniqueIndex:idx_block_height"`
	EnvelopeCount int

	// ChainTail is the display-order wtxid the next fresh blob must
	// reference, as of the end of this block.
	ChainTail string `gorm:"NOT NULL;size:64"`
	// Quiescent marks that no blob was mid-reassembly at the end of this
	// block, which makes ChainTail a safe resume checkpoint.
	Quiescent bool

	Status Status
}

func (*Block) TableName() string {
	return "block"
}
