package db

import (
	"strings"

	"gorm.io/gorm"
)

type DaDao interface {
	BlockDB
	EnvelopeDB
	BatchDB
	BundleDB
	SaveBlockAndEnvelopes(block *Block, envelopes []*Envelope) error
}

type DaSvcDB struct {
	db *gorm.DB
}

func NewDaSvcDB(db *gorm.DB) DaDao {
	return &DaSvcDB{
		db,
	}
}

type BlockDB interface {
	GetBlock(height uint64) (*Block, error)
	GetBlockByHash(hash string) (*Block, error)
	GetLatestProcessedBlock() (*Block, error)
	GetLatestVerifiedBlock() (*Block, error)
	GetLatestQuiescentBlock() (*Block, error)
	GetLatestQuiescentBlockBelow(height uint64) (*Block, error)
	GetFirstBlock() (*Block, error)
	UpdateBlockToVerifiedStatus(height uint64) error
	UpdateBlocksStatus(startHeight, endHeight uint64, status Status) error
}

func (d *DaSvcDB) GetBlock(height uint64) (*Block, error) {
	block := Block{}
	err := d.db.Model(Block{}).Where("height = ?", height).Take(&block).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return &block, nil
}

func (d *DaSvcDB) GetBlockByHash(hash string) (*Block, error) {
	block := Block{}
	err := d.db.Model(Block{}).Where("hash = ?", hash).Take(&block).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return &block, nil
}

func (d *DaSvcDB) GetLatestProcessedBlock() (*Block, error) {
	block := Block{}
	err := d.db.Model(Block{}).Order("height desc").Take(&block).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return &block, nil
}

func (d *DaSvcDB) GetLatestVerifiedBlock() (*Block, error) {
	block := Block{}
	err := d.db.Model(Block{}).Where("status = ?", Verified).Order("height desc").Take(&block).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return &block, nil
}

func (d *DaSvcDB) GetLatestQuiescentBlock() (*Block, error) {
	block := Block{}
	err := d.db.Model(Block{}).Where("quiescent = ?", true).Order("height desc").Take(&block).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return &block, nil
}

func (d *DaSvcDB) GetLatestQuiescentBlockBelow(height uint64) (*Block, error) {
	block := Block{}
	err := d.db.Model(Block{}).Where("quiescent = ? and height < ?", true, height).Order("height desc").Take(&block).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return &block, nil
}

func (d *DaSvcDB) GetFirstBlock() (*Block, error) {
	block := Block{}
	err := d.db.Model(Block{}).Order("height asc").Take(&block).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return &block, nil
}

func (d *DaSvcDB) UpdateBlockToVerifiedStatus(height uint64) error {
	return d.db.Transaction(func(dbTx *gorm.DB) error {
		return dbTx.Model(Block{}).Where("height = ?", height).Updates(
			Block{Status: Verified}).Error
	})
}

func (d *DaSvcDB) UpdateBlocksStatus(startHeight, endHeight uint64, status Status) error {
	return d.db.Transaction(func(dbTx *gorm.DB) error {
		// Update by column name so a reset to Processed (the zero value) is
		// not dropped by gorm's struct update.
		return dbTx.Model(Block{}).Where("height >= ? and height <= ?", startHeight, endHeight).
			Update("status", status).Error
	})
}

type EnvelopeDB interface {
	GetEnvelopesByHeight(height uint64) ([]*Envelope, error)
	GetEnvelopesByHeightRange(startHeight, endHeight uint64) ([]*Envelope, error)
	GetEnvelopesByBlobHash(blobHash string) ([]*Envelope, error)
}

func (d *DaSvcDB) GetEnvelopesByHeight(height uint64) ([]*Envelope, error) {
	envelopes := make([]*Envelope, 0)
	if err := d.db.Where("height = ?", height).Order("tx_index asc").Find(&envelopes).Error; err != nil {
		return envelopes, err
	}
	return envelopes, nil
}

func (d *DaSvcDB) GetEnvelopesByHeightRange(startHeight, endHeight uint64) ([]*Envelope, error) {
	envelopes := make([]*Envelope, 0)
	if err := d.db.Where("height >= ? and height <= ?", startHeight, endHeight).
		Order("height asc").Order("tx_index asc").Find(&envelopes).Error; err != nil {
		return envelopes, err
	}
	return envelopes, nil
}

func (d *DaSvcDB) GetEnvelopesByBlobHash(blobHash string) ([]*Envelope, error) {
	envelopes := make([]*Envelope, 0)
	if err := d.db.Where("blob_hash = ?", blobHash).
		Order("height asc").Order("tx_index asc").Find(&envelopes).Error; err != nil {
		return envelopes, err
	}
	return envelopes, nil
}

type BatchDB interface {
	GetBatchByBlobHash(blobHash string) (*Batch, error)
	GetBatchesByBundleName(bundleName string) ([]*Batch, error)
	GetBatchesByHeight(height uint64) ([]*Batch, error)
	GetLatestBatch() (*Batch, error)
	SaveBatches(batches []*Batch) error
}

func (d *DaSvcDB) GetBatchByBlobHash(blobHash string) (*Batch, error) {
	batch := Batch{}
	err := d.db.Model(Batch{}).Where("blob_hash = ?", blobHash).Take(&batch).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return &batch, nil
}

func (d *DaSvcDB) GetBatchesByBundleName(bundleName string) ([]*Batch, error) {
	batches := make([]*Batch, 0)
	if err := d.db.Where("bundle_name = ?", bundleName).
		Order("height asc").Order("id asc").Find(&batches).Error; err != nil {
		return batches, err
	}
	return batches, nil
}

func (d *DaSvcDB) GetBatchesByHeight(height uint64) ([]*Batch, error) {
	batches := make([]*Batch, 0)
	if err := d.db.Where("height = ?", height).Order("id asc").Find(&batches).Error; err != nil {
		return batches, err
	}
	return batches, nil
}

func (d *DaSvcDB) GetLatestBatch() (*Batch, error) {
	batch := Batch{}
	err := d.db.Model(Batch{}).Order("height desc").Take(&batch).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return &batch, nil
}

func (d *DaSvcDB) SaveBatches(batches []*Batch) error {
	return d.db.Transaction(func(dbTx *gorm.DB) error {
		for _, batch := range batches {
			err := dbTx.Create(batch).Error
			if err != nil {
				// A rescan can legitimately re-complete a batch.
				if MysqlErrCode(err) == ErrDuplicateEntryCode || strings.Contains(err.Error(), "Duplicate entry") {
					continue
				}
				return err
			}
		}
		return nil
	})
}

type BundleDB interface {
	GetBundle(name string) (*Bundle, error)
	GetLatestFinalizingBundle() (*Bundle, error)
	CreateBundle(*Bundle) error
	UpdateBundleStatus(bundleName string, status InnerBundleStatus) error
	MarkBundleCalibrated(bundleName string) error
}

func (d *DaSvcDB) GetBundle(name string) (*Bundle, error) {
	bundle := Bundle{}
	err := d.db.Model(Bundle{}).Where("name = ?", name).Take(&bundle).Error
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (d *DaSvcDB) GetLatestFinalizingBundle() (*Bundle, error) {
	bundle := Bundle{}
	err := d.db.Model(Bundle{}).Where("status = ?", Finalizing).Order("id desc").Take(&bundle).Error
	if err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (d *DaSvcDB) CreateBundle(b *Bundle) error {
	return d.db.Transaction(func(dbTx *gorm.DB) error {
		err := dbTx.Create(b).Error
		if err != nil && strings.Contains(err.Error(), " Duplicate entry") {
			return nil
		}
		return err
	})
}

func (d *DaSvcDB) UpdateBundleStatus(bundleName string, status InnerBundleStatus) error {
	return d.db.Transaction(func(dbTx *gorm.DB) error {
		return dbTx.Model(Bundle{}).Where("name = ?", bundleName).Updates(
			Bundle{Status: status}).Error
	})
}

func (d *DaSvcDB) MarkBundleCalibrated(bundleName string) error {
	return d.db.Transaction(func(dbTx *gorm.DB) error {
		return dbTx.Model(Bundle{}).Where("name = ?", bundleName).Updates(
			Bundle{Status: Finalized, Calibrated: true}).Error
	})
}

func (d *DaSvcDB) SaveBlockAndEnvelopes(block *Block, envelopes []*Envelope) error {
	return d.db.Transaction(func(dbTx *gorm.DB) error {
		err := dbTx.Save(block).Error
		if err != nil {
			return err
		}
		if len(envelopes) != 0 {
			err = dbTx.Save(envelopes).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func AutoMigrateDB(db *gorm.DB) {
	var err error
	if err = db.AutoMigrate(&Bundle{}); err != nil {
		panic(err)
	}
	if err = db.AutoMigrate(&Block{}); err != nil {
		panic(err)
	}
	if err = db.AutoMigrate(&Envelope{}); err != nil {
		panic(err)
	}
	if err = db.AutoMigrate(&Batch{}); err != nil {
		panic(err)
	}
}
