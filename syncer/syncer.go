package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"gorm.io/gorm"

	"github.com/bitrollup/da-syncer/config"
	"github.com/bitrollup/da-syncer/da"
	"github.com/bitrollup/da-syncer/db"
	"github.com/bitrollup/da-syncer/external"
	"github.com/bitrollup/da-syncer/logging"
	"github.com/bitrollup/da-syncer/metrics"
	"github.com/bitrollup/da-syncer/types"
)

const (
	LoopSleepTime   = 10 * time.Millisecond
	PauseTime       = 30 * time.Second
	VerifyPauseTime = 2 * time.Second
	RPCTimeout      = 20 * time.Second
	UploadTimeout   = 1 * time.Minute
	MonitorInterval = 1 * time.Minute
)

type curBundleDetail struct {
	name           string
	startHeight    uint64
	finalizeHeight uint64
}

// DaSyncer scans the base chain block by block, extracts DA envelopes,
// validates the posting chain, reassembles completed batches and archives
// them bundle by bundle.
type DaSyncer struct {
	daDao        db.DaDao
	client       external.IClient
	s3Client     *external.S3Client
	config       *config.SyncerConfig
	bundleDetail *curBundleDetail
	extractor    *da.Extractor

	// validator and pending carry the chain register and the not yet
	// reassembled envelopes across blocks. Both are rebuilt from the DB on
	// startup, so they are never the only copy of anything.
	validator      *da.ChainValidator
	pending        []*da.Envelope
	violationsSeen int

	// verifyViolationsHeight is the last height whose chain violations the
	// verify pass already reported, so a block stuck unverified does not
	// re-count them on every retry.
	verifyViolationsHeight uint64
}

func NewDaSyncer(
	daDao db.DaDao,
	cfg *config.SyncerConfig,
) *DaSyncer {
	s3Client, err := external.NewS3Client(&cfg.ArchiveConfig)
	if err != nil {
		panic(err)
	}
	return &DaSyncer{
		daDao:     daDao,
		client:    external.NewClient(cfg),
		s3Client:  s3Client,
		config:    cfg,
		extractor: da.NewExtractor(cfg.ChainConfig.Magic()),
		validator: da.NewChainValidator(da.ZeroTail),
	}
}

func (s *DaSyncer) StartLoop() {
	go func() {
		// nextHeight is the first block to process
		nextHeight, err := s.getNextHeight()
		if err != nil {
			panic(err)
		}
		if err = s.resumeChainState(); err != nil {
			panic(err)
		}
		if err = s.LoadProgressAndResume(nextHeight); err != nil {
			panic(err)
		}
		syncTicker := time.NewTicker(LoopSleepTime)
		for range syncTicker.C {
			if err = s.sync(); err != nil {
				logging.Logger.Error(err)
				continue
			}
		}
	}()
	go func() {
		verifyTicker := time.NewTicker(LoopSleepTime)
		for range verifyTicker.C {
			if err := s.verify(); err != nil {
				logging.Logger.Error(err)
				continue
			}
		}
	}()
	go s.monitorChainHead()
}

func (s *DaSyncer) sync() error {
	nextHeight, err := s.getNextHeight()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), RPCTimeout)
	defer cancel()

	chainHead, err := s.client.GetLatestBlockNum(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain head, err=%s", err.Error())
	}
	// hold off until the block is buried below the confirmation depth, so
	// that a shallow reorg cannot rewrite what was scanned
	if nextHeight+s.config.ChainConfig.GetConfirmationDepth() > chainHead {
		logging.Logger.Debugf("pause syncing for %v, next height=%d, chain head=%d", PauseTime, nextHeight, chainHead)
		time.Sleep(PauseTime)
		return nil
	}

	block, err := s.client.GetBlock(ctx, nextHeight)
	if err != nil {
		return fmt.Errorf("failed to get block at height %d, err=%s", nextHeight, err.Error())
	}
	if err = s.checkReorg(nextHeight, block); err != nil {
		return err
	}

	envelopes := make([]*da.Envelope, 0)
	for txIndex, tx := range block.Transactions {
		env, ok := s.extractor.Extract(tx, nextHeight, txIndex)
		if !ok {
			continue
		}
		s.validator.Process(env)
		envelopes = append(envelopes, env)
	}
	s.reportNewViolations()

	if err = s.process(nextHeight, envelopes); err != nil {
		return err
	}

	envelopeRows := make([]*db.Envelope, 0, len(envelopes))
	for _, env := range envelopes {
		envelopeRows = append(envelopeRows, toDBEnvelope(env))
	}
	blockRow := &db.Block{
		Hash:          block.BlockHash().String(),
		PrevHash:      block.Header.PrevBlock.String(),
		Height:        nextHeight,
		EnvelopeCount: len(envelopes),
		ChainTail:     s.validator.Tail().String(),
		Quiescent:     s.validator.Quiescent(),
		Status:        db.Processed,
	}
	if err = s.daDao.SaveBlockAndEnvelopes(blockRow, envelopeRows); err != nil {
		logging.Logger.Errorf("failed to save block(h=%d) and envelopes(num=%d), err=%s", nextHeight, len(envelopeRows), err.Error())
		return err
	}
	metrics.ScannedHeightGauge.Set(float64(nextHeight))
	metrics.ExtractedEnvelopeCounter.Add(float64(len(envelopes)))
	logging.Logger.Infof("saved block(h=%d) and envelopes(num=%d) to DB", nextHeight, len(envelopes))
	return nil
}

// process runs the bundle lifecycle for one block: open the bundle at its
// first height, stage every batch that completed reassembly in this block,
// and upload the bundle once its last height is reached.
func (s *DaSyncer) process(height uint64, envelopes []*da.Envelope) error {
	var err error
	// the bundle is created when its first block is scanned
	if height == s.bundleDetail.startHeight {
		if err = s.createLocalBundleDir(); err != nil {
			logging.Logger.Errorf("failed to create local bundle dir, bundle=%s, err=%s", s.bundleDetail.name, err.Error())
			return err
		}
	}

	s.pending = append(s.pending, envelopes...)
	completed, reports := da.ReassembleWithReports(s.pending)
	s.reportReassembly(reports, envelopes)

	if len(completed) != 0 {
		batchRows := make([]*db.Batch, 0, len(completed))
		for _, blob := range completed {
			record, decodeErr := da.DecodeBatch(blob)
			if decodeErr != nil {
				logging.Logger.Errorf("completed blob %s does not decode to a batch, err=%s", blob.BlobHash, decodeErr.Error())
				continue
			}
			batchName := types.GetBatchName(height, blob.BlobHash.String())
			if err = s.writeBatchToFile(blob, batchName); err != nil {
				return err
			}
			batchRows = append(batchRows, toDBBatch(blob, record, batchName, s.bundleDetail.name, height))
			metrics.ReassembledBatchCounter.Inc()
		}
		if err = s.daDao.SaveBatches(batchRows); err != nil {
			logging.Logger.Errorf("failed to save batches, err=%s", err.Error())
			return err
		}
	}
	// only shrink the window once the completed batches are durably staged,
	// so a failed attempt is retried with the full envelope set
	s.prunePending(completed)

	if height == s.bundleDetail.finalizeHeight {
		if err = s.finalizeCurBundle(); err != nil {
			logging.Logger.Errorf("failed to finalize bundle, bundle=%s, err=%s", s.bundleDetail.name, err.Error())
			return err
		}
		logging.Logger.Infof("successfully finalized bundle, bundle name: %s, height %d", s.bundleDetail.name, height)

		// init the next bundle
		startHeight := height + 1
		endHeight := height + s.getBundleInterval()
		s.bundleDetail = &curBundleDetail{
			name:           types.GetBundleName(startHeight, endHeight),
			startHeight:    startHeight,
			finalizeHeight: endHeight,
		}
	}
	return nil
}

// getNextHeight returns the next block to scan, resuming right above the
// latest processed block or at the configured start height on a fresh DB.
func (s *DaSyncer) getNextHeight() (uint64, error) {
	latestProcessedBlock, err := s.daDao.GetLatestProcessedBlock()
	if err != nil {
		return 0, fmt.Errorf("failed to get latest polled block from db, error: %s", err.Error())
	}
	nextHeight := s.config.ChainConfig.StartHeight
	if nextHeight <= latestProcessedBlock.Height {
		nextHeight = latestProcessedBlock.Height + 1
	}
	return nextHeight, nil
}

// resumeChainState rebuilds the validator register and the reassembly window
// after a restart. The newest quiescent block is a safe seed: nothing was
// mid-reassembly at its boundary, so replaying the envelopes stored above it
// reconstructs exactly the state the scanner held when it stopped.
func (s *DaSyncer) resumeChainState() error {
	checkpoint, err := s.daDao.GetLatestQuiescentBlock()
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
	s.validator = da.NewChainValidator(expectedPrev)
	s.pending = s.pending[:0]

	latestProcessedBlock, err := s.daDao.GetLatestProcessedBlock()
	if err != nil {
		return err
	}
	if latestProcessedBlock.Height > checkpoint.Height {
		rows, err := s.daDao.GetEnvelopesByHeightRange(checkpoint.Height+1, latestProcessedBlock.Height)
		if err != nil {
			return err
		}
		envs, err := toDaEnvelopes(rows)
		if err != nil {
			return err
		}
		for _, env := range envs {
			s.validator.Process(env)
		}
		s.pending = append(s.pending, envs...)
		// blobs that completed after the checkpoint were already archived
		completed, _ := da.ReassembleWithReports(s.pending)
		s.prunePending(completed)
		logging.Logger.Infof("resumed chain state from checkpoint height %d, replayed %d envelopes, %d still pending", checkpoint.Height, len(envs), len(s.pending))
	}
	s.violationsSeen = len(s.validator.Violations())
	return nil
}

// LoadProgressAndResume picks up the bundle that was being built when the
// syncer stopped, or opens a fresh range when there is none or the scanner
// already moved past its end.
func (s *DaSyncer) LoadProgressAndResume(nextHeight uint64) error {
	var (
		startHeight uint64
		endHeight   uint64
		err         error
	)
	finalizingBundle, err := s.daDao.GetLatestFinalizingBundle()
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return err
		}
		// no pending bundle, a new one is created when the next block is
		// processed
		startHeight = nextHeight
		endHeight = nextHeight + s.getBundleInterval() - 1
	} else {
		startHeight, endHeight, err = types.ParseBundleName(finalizingBundle.Name)
		if err != nil {
			return err
		}
		// the bundle can not be completed anymore once the scanner moved
		// past its end, the verifier re-uploads its batches from the DB
		if nextHeight > endHeight {
			if err = s.daDao.UpdateBundleStatus(finalizingBundle.Name, db.Deprecated); err != nil {
				return err
			}
			startHeight = nextHeight
			endHeight = nextHeight + s.getBundleInterval() - 1
		}
	}
	s.bundleDetail = &curBundleDetail{
		name:           types.GetBundleName(startHeight, endHeight),
		startHeight:    startHeight,
		finalizeHeight: endHeight,
	}
	return nil
}

// checkReorg refuses to extend past a parent link that does not match what
// was stored. Failing here means the chain reorganized deeper than the
// confirmation depth, which needs operator attention rather than silent
// rewriting.
func (s *DaSyncer) checkReorg(height uint64, block *wire.MsgBlock) error {
	if height == s.config.ChainConfig.StartHeight {
		return nil
	}
	parent, err := s.daDao.GetBlock(height - 1)
	if err != nil {
		return err
	}
	if parent.Hash == "" {
		return nil
	}
	prevHash := block.Header.PrevBlock.String()
	if parent.Hash != prevHash {
		return fmt.Errorf("block at height %d links to parent %s, stored block at height %d is %s", height, prevHash, height-1, parent.Hash)
	}
	return nil
}

func (s *DaSyncer) reportNewViolations() {
	violations := s.validator.Violations()
	for _, v := range violations[s.violationsSeen:] {
		metrics.ChainViolationCounter.Inc()
		logging.Logger.Errorf("chain violation: %s", v.String())
	}
	s.violationsSeen = len(violations)
}

// reportReassembly logs integrity findings for blobs touched by the fresh
// envelopes and refreshes the incomplete-blob gauge.
func (s *DaSyncer) reportReassembly(reports []*da.ReassemblyReport, fresh []*da.Envelope) {
	touched := make(map[chainhash.Hash]bool, len(fresh))
	for _, env := range fresh {
		touched[env.BlobHash] = true
	}
	incomplete := 0
	for _, report := range reports {
		if !report.Complete {
			incomplete++
		}
		if !touched[report.BlobHash] {
			continue
		}
		if report.TotalMismatch {
			logging.Logger.Errorf("blob %s envelopes disagree on the total chunk count", report.BlobHash)
		}
		if report.MismatchedDuplicate {
			logging.Logger.Errorf("blob %s has duplicate chunks with diverging payloads", report.BlobHash)
		}
		if len(report.DuplicateIndices) != 0 {
			logging.Logger.Infof("blob %s chunk indices %v delivered more than once", report.BlobHash, report.DuplicateIndices)
		}
	}
	metrics.IncompleteBlobGauge.Set(float64(incomplete))
}

func (s *DaSyncer) prunePending(completed []*da.Blob) {
	if len(completed) == 0 {
		return
	}
	done := make(map[chainhash.Hash]bool, len(completed))
	for _, blob := range completed {
		done[blob.BlobHash] = true
	}
	remaining := make([]*da.Envelope, 0, len(s.pending))
	for _, env := range s.pending {
		if !done[env.BlobHash] {
			remaining = append(remaining, env)
		}
	}
	s.pending = remaining
}

func (s *DaSyncer) createLocalBundleDir() error {
	bundleName := s.bundleDetail.name
	_, err := os.Stat(s.getBundleDir(bundleName))
	if os.IsNotExist(err) {
		err = os.MkdirAll(filepath.Dir(s.getBundleDir(bundleName)), os.ModePerm)
		if err != nil {
			return err
		}
	}
	return s.daDao.CreateBundle(&db.Bundle{
		Name:        bundleName,
		StartHeight: s.bundleDetail.startHeight,
		EndHeight:   s.bundleDetail.finalizeHeight,
		Status:      db.Finalizing,
		CreatedTime: time.Now().Unix(),
	})
}

func (s *DaSyncer) writeBatchToFile(blob *da.Blob, batchName string) error {
	file, err := os.Create(s.getBatchPath(s.bundleDetail.name, batchName))
	if err != nil {
		logging.Logger.Errorf("failed to create batch file, err=%s", err.Error())
		return err
	}
	defer file.Close()
	if _, err = file.Write(blob.Data); err != nil {
		logging.Logger.Errorf("failed to write batch file, err=%s", err.Error())
		return err
	}
	return nil
}

func (s *DaSyncer) finalizeCurBundle() error {
	return s.finalizeBundle(s.bundleDetail.name, s.getBundleDir(s.bundleDetail.name))
}

func (s *DaSyncer) finalizeBundle(bundleName, bundleDir string) error {
	batches, err := s.daDao.GetBatchesByBundleName(bundleName)
	if err != nil {
		return err
	}
	for _, batch := range batches {
		objectKey := types.GetBatchObjectKey(bundleName, batch.Name)
		filePath := filepath.Join(bundleDir, batch.Name)
		ctx, cancel := context.WithTimeout(context.Background(), UploadTimeout)
		if _, statErr := os.Stat(filePath); os.IsNotExist(statErr) {
			// a previous finalize attempt may have uploaded and cleaned up
			// this batch already
			_, headErr := s.s3Client.HeadObject(ctx, objectKey)
			cancel()
			if headErr == nil {
				continue
			}
			return fmt.Errorf("batch file %s is gone and the archive has no object %s", filePath, objectKey)
		}
		err = s.s3Client.UploadObjectFromFile(ctx, objectKey, filePath)
		cancel()
		if err != nil {
			logging.Logger.Errorf("failed to upload batch %s to the archive, err=%s", batch.Name, err.Error())
			return err
		}
	}
	if err = s.daDao.UpdateBundleStatus(bundleName, db.Finalized); err != nil {
		return err
	}
	if err = os.RemoveAll(bundleDir); err != nil {
		logging.Logger.Errorf("failed to remove the bundle files, err=%s", err.Error())
		return err
	}
	return nil
}

func (s *DaSyncer) getBundleDir(bundleName string) string {
	return fmt.Sprintf("%s/%s/", s.config.ArchiveConfig.TempFilePath, bundleName)
}

func (s *DaSyncer) getBatchPath(bundleName, batchName string) string {
	return fmt.Sprintf("%s/%s/%s", s.config.ArchiveConfig.TempFilePath, bundleName, batchName)
}

func (s *DaSyncer) getBundleInterval() uint64 {
	return s.config.ArchiveConfig.GetBundleBlockInterval()
}
