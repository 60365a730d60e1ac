package service

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/bitrollup/da-syncer/cache"
	"github.com/bitrollup/da-syncer/config"
	"github.com/bitrollup/da-syncer/da"
	"github.com/bitrollup/da-syncer/db"
	"github.com/bitrollup/da-syncer/external"
	"github.com/bitrollup/da-syncer/types"
)

// DaSvc is the singleton consumed by the API handlers, set once at startup.
var DaSvc Da

type Da interface {
	GetBlob(blobHash string) (*types.Blob, error)
	GetBatch(blobHash string) (*types.Batch, error)
	GetEnvelopes(blobHash string) ([]*types.Envelope, error)
	GetChainStatus() (*types.ChainStatus, error)
}

type DaService struct {
	daDB         db.DaDao
	s3Client     *external.S3Client
	cacheService cache.Cache
	config       *config.ServerConfig
}

func NewDaService(daDB db.DaDao, s3Client *external.S3Client, cache cache.Cache, config *config.ServerConfig) Da {
	return &DaService{
		daDB:         daDB,
		s3Client:     s3Client,
		cacheService: cache,
		config:       config,
	}
}

const objectFetchTimeout = 30 * time.Second

func (s DaService) GetBlob(blobHash string) (*types.Blob, error) {
	cached, found := s.cacheService.Get(cache.BlobKey(blobHash))
	if found {
		return cached.(*types.Blob), nil
	}
	batch, data, err := s.loadBatchObject(blobHash)
	if err != nil {
		return nil, err
	}
	blob := &types.Blob{
		BlobHash:    batch.BlobHash,
		Height:      batch.Height,
		TotalChunks: batch.TotalChunks,
		Size:        batch.Size,
		Checksum:    batch.Checksum,
		Data:        base64.StdEncoding.EncodeToString(data),
	}
	s.cacheService.Set(cache.BlobKey(blobHash), blob)
	return blob, nil
}

func (s DaService) GetBatch(blobHash string) (*types.Batch, error) {
	cached, found := s.cacheService.Get(cache.BatchKey(blobHash))
	if found {
		return cached.(*types.Batch), nil
	}
	batchMeta, data, err := s.loadBatchObject(blobHash)
	if err != nil {
		return nil, err
	}
	record, err := da.DecodeBatch(&da.Blob{Data: data})
	if err != nil {
		return nil, InternalErr.Enrich(err.Error())
	}
	batch := &types.Batch{
		BlobHash:         batchMeta.BlobHash,
		Height:           batchMeta.Height,
		BundleName:       batchMeta.BundleName,
		LastBlockNum:     record.LastBlockNum,
		PrevBlockBatchID: batchMeta.PrevBlockBatchID,
		EmptyBatch:       batchMeta.EmptyBatch,
		StateDiff:        base64.StdEncoding.EncodeToString(record.StateDiff),
	}
	s.cacheService.Set(cache.BatchKey(blobHash), batch)
	return batch, nil
}

func (s DaService) GetEnvelopes(blobHash string) ([]*types.Envelope, error) {
	rows, err := s.daDB.GetEnvelopesByBlobHash(blobHash)
	if err != nil {
		return nil, err
	}
	envelopes := make([]*types.Envelope, 0, len(rows))
	for _, row := range rows {
		envelopes = append(envelopes, &types.Envelope{
			TxHash:      row.TxHash,
			WtxHash:     row.WtxHash,
			Height:      row.Height,
			TxIndex:     row.TxIndex,
			BlobHash:    row.BlobHash,
			ChunkIndex:  row.ChunkIndex,
			TotalChunks: row.TotalChunks,
			PrevTail:    row.PrevTail,
		})
	}
	return envelopes, nil
}

func (s DaService) GetChainStatus() (*types.ChainStatus, error) {
	latestProcessed, err := s.daDB.GetLatestProcessedBlock()
	if err != nil {
		return nil, err
	}
	latestVerified, err := s.daDB.GetLatestVerifiedBlock()
	if err != nil {
		return nil, err
	}
	status := &types.ChainStatus{
		ScannedHeight:  latestProcessed.Height,
		VerifiedHeight: latestVerified.Height,
		ChainTail:      latestProcessed.ChainTail,
	}
	finalizing, err := s.daDB.GetLatestFinalizingBundle()
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	} else {
		status.FinalizingBundle = finalizing.Name
	}
	return status, nil
}

// loadBatchObject resolves the batch meta for a blob hash and fetches the
// archived bytes. A batch row without an archived object means the bundle is
// still being written.
func (s DaService) loadBatchObject(blobHash string) (*db.Batch, []byte, error) {
	batch, err := s.daDB.GetBatchByBlobHash(blobHash)
	if err != nil {
		return nil, nil, err
	}
	if batch.Name == "" {
		return nil, nil, ErrBlobNotFound
	}
	ctx, cancel := context.WithTimeout(context.Background(), objectFetchTimeout)
	defer cancel()
	data, err := s.s3Client.GetObjectBytes(ctx, types.GetBatchObjectKey(batch.BundleName, batch.Name))
	if err != nil {
		if errors.Is(err, external.ErrObjectNotFound) {
			return nil, nil, ErrBlobNotArchived
		}
		return nil, nil, err
	}
	return batch, data, nil
}
