package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/bitrollup/da-syncer/da"
	"github.com/bitrollup/da-syncer/db"
	"github.com/bitrollup/da-syncer/external"
	"github.com/bitrollup/da-syncer/logging"
	"github.com/bitrollup/da-syncer/metrics"
	"github.com/bitrollup/da-syncer/types"
	"github.com/bitrollup/da-syncer/util"
)

var (
	ErrVerificationFailed = errors.New("verification failed")
)

const bundleNotFinalizedAlertThresh = int64(time.Hour / time.Second)

// verify walks the scanned blocks one behind the other and re-derives what
// the scanner claimed: the posting chain must hold through the block, and
// every batch that completed at its height must reassemble back to the
// recorded checksum with the archived object carrying the same bytes. A chain
// violation leaves the block unverified; corruption on the archive side
// triggers a re-upload of the whole bundle from the DB.
func (s *DaSyncer) verify() error {
	var err error
	latestVerifiedBlock, err := s.daDao.GetLatestVerifiedBlock()
	if err != nil {
		logging.Logger.Errorf("failed to get latest verified block from DB, err=%s", err.Error())
		return err
	}
	var verifyHeight uint64
	if latestVerifiedBlock.Height == 0 {
		firstBlock, err := s.daDao.GetFirstBlock()
		if err != nil {
			logging.Logger.Errorf("failed to get first block from DB, err=%s", err.Error())
			return err
		}
		if firstBlock.Hash == "" {
			// nothing scanned yet
			time.Sleep(VerifyPauseTime)
			return nil
		}
		verifyHeight = firstBlock.Height
	} else {
		verifyHeight = latestVerifiedBlock.Height + 1
	}

	verifyBlock, err := s.daDao.GetBlock(verifyHeight)
	if err != nil {
		logging.Logger.Errorf("failed to get block from DB, height=%d err=%s", verifyHeight, err.Error())
		return err
	}
	if verifyBlock.Hash == "" {
		// the scanner has not reached this height yet
		time.Sleep(VerifyPauseTime)
		return nil
	}

	if err = s.verifyChain(verifyHeight); err != nil {
		return err
	}

	batches, err := s.daDao.GetBatchesByHeight(verifyHeight)
	if err != nil {
		return err
	}
	for _, batch := range batches {
		bundle, err := s.daDao.GetBundle(batch.BundleName)
		if err != nil {
			return err
		}
		switch bundle.Status {
		case db.Finalizing:
			if time.Now().Unix()-bundle.CreatedTime > bundleNotFinalizedAlertThresh {
				return fmt.Errorf("bundle %s is supposed to be finalized", bundle.Name)
			}
			// the bundle is still being written, check again later
			time.Sleep(VerifyPauseTime)
			return nil
		case db.Deprecated:
			// the bundle never made it to the archive
			return s.reUploadBundle(batch.BundleName)
		}

		if err = s.verifyBatch(batch); err != nil {
			logging.Logger.Errorf("failed to verify batch %s, err=%s", batch.Name, err.Error())
			if errors.Is(err, ErrVerificationFailed) || errors.Is(err, external.ErrObjectNotFound) {
				return s.reUploadBundle(batch.BundleName)
			}
			return err
		}
	}

	if err = s.daDao.UpdateBlockToVerifiedStatus(verifyHeight); err != nil {
		logging.Logger.Errorf("failed to update block status, height=%d err=%s", verifyHeight, err.Error())
		return err
	}
	metrics.VerifiedHeightGauge.Set(float64(verifyHeight))
	logging.Logger.Infof("successfully verify at block height %d", verifyHeight)
	return nil
}

// verifyChain re-derives the back-reference chain through the block at
// height, seeded from the newest quiescent checkpoint below it. Every block
// behind height is already verified, so any violation found belongs to this
// block and leaves it unverified.
func (s *DaSyncer) verifyChain(height uint64) error {
	checkpoint, err := s.daDao.GetLatestQuiescentBlockBelow(height)
	if err != nil {
		return err
	}
	expectedPrev := da.ZeroTail
	if checkpoint.ChainTail != "" {
		tail, err := chainhash.NewHashFromStr(checkpoint.ChainTail)
		if err != nil {
			return fmt.Errorf("bad chain tail %q at checkpoint height %d: %w", checkpoint.ChainTail, checkpoint.Height, err)
		}
		expectedPrev = *tail
	}
	rows, err := s.daDao.GetEnvelopesByHeightRange(checkpoint.Height+1, height)
	if err != nil {
		return err
	}
	envs, err := toDaEnvelopes(rows)
	if err != nil {
		return err
	}
	validator := da.NewChainValidator(expectedPrev)
	for _, env := range envs {
		validator.Process(env)
	}
	if validator.Valid() {
		return nil
	}
	violations := validator.Violations()
	if s.verifyViolationsHeight != height {
		s.verifyViolationsHeight = height
		for _, v := range violations {
			metrics.ChainViolationCounter.Inc()
			logging.Logger.Errorf("chain violation found during verification: %s", v.String())
		}
	}
	return fmt.Errorf("chain validation failed at block height %d, found %d violations", height, len(violations))
}

func (s *DaSyncer) verifyBatch(batch *db.Batch) error {
	data, err := s.reassembleFromDB(batch.BlobHash)
	if err != nil {
		return err
	}
	if util.GenerateChecksumHex(data) != batch.Checksum {
		logging.Logger.Errorf("found checksum mismatch between stored envelopes and batch meta, batch=%s", batch.Name)
		return ErrVerificationFailed
	}

	ctx, cancel := context.WithTimeout(context.Background(), RPCTimeout)
	defer cancel()
	reader, err := s.s3Client.GetObject(ctx, types.GetBatchObjectKey(batch.BundleName, batch.Name))
	if err != nil {
		return err
	}
	checksum, size, err := util.ChecksumReader(reader)
	closeErr := reader.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	if size != batch.Size || checksum != batch.Checksum {
		logging.Logger.Errorf("found archived object mismatch, batch=%s size=%d want size=%d", batch.Name, size, batch.Size)
		return ErrVerificationFailed
	}
	return nil
}

// reassembleFromDB rebuilds one blob's bytes from its stored envelope rows.
func (s *DaSyncer) reassembleFromDB(blobHash string) ([]byte, error) {
	rows, err := s.daDao.GetEnvelopesByBlobHash(blobHash)
	if err != nil {
		return nil, err
	}
	envs, err := toDaEnvelopes(rows)
	if err != nil {
		return nil, err
	}
	blobs := da.Reassemble(envs)
	if len(blobs) != 1 {
		return nil, fmt.Errorf("stored envelopes for blob %s do not reassemble", blobHash)
	}
	return blobs[0].Data, nil
}

// reUploadBundle rebuilds every batch of a bundle from the envelope rows and
// pushes the result back to the archive, overwriting whatever is there. The
// covered blocks are reset to Processed so the calibrated objects get
// verified like everything else.
func (s *DaSyncer) reUploadBundle(bundleName string) error {
	logging.Logger.Infof("calibrating bundle %s from DB", bundleName)
	startHeight, endHeight, err := types.ParseBundleName(bundleName)
	if err != nil {
		return err
	}
	batches, err := s.daDao.GetBatchesByBundleName(bundleName)
	if err != nil {
		return err
	}
	for _, batch := range batches {
		data, err := s.reassembleFromDB(batch.BlobHash)
		if err != nil {
			return err
		}
		if util.GenerateChecksumHex(data) != batch.Checksum {
			return fmt.Errorf("batch %s reassembled from DB does not match its recorded checksum, can not calibrate", batch.Name)
		}
		ctx, cancel := context.WithTimeout(context.Background(), UploadTimeout)
		err = s.s3Client.UploadObject(ctx, types.GetBatchObjectKey(bundleName, batch.Name), bytes.NewReader(data))
		cancel()
		if err != nil {
			logging.Logger.Errorf("failed to re-upload batch %s, err=%s", batch.Name, err.Error())
			return err
		}
	}
	if err = s.daDao.MarkBundleCalibrated(bundleName); err != nil {
		return err
	}
	return s.daDao.UpdateBlocksStatus(startHeight, endHeight, db.Processed)
}
