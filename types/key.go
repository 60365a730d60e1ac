package types

import (
	"fmt"
	"strings"

	"github.com/bitrollup/da-syncer/util"
)

func GetBatchName(height uint64, blobHash string) string {
	return fmt.Sprintf("batch_h%d_%s", height, blobHash)
}

func GetBundleName(startHeight, endHeight uint64) string {
	return fmt.Sprintf("blocks_s%d_e%d", startHeight, endHeight)
}

// GetBatchObjectKey is the archive key of one batch: bundle prefix plus batch
// name.
func GetBatchObjectKey(bundleName, batchName string) string {
	return fmt.Sprintf("%s/%s", bundleName, batchName)
}

func ParseBatchName(batchName string) (height uint64, blobHash string, err error) {
	parts := strings.Split(batchName, "_")
	if len(parts) != 3 {
		err = fmt.Errorf("invalid batch name %s", batchName)
		return
	}
	height, err = util.StringToUint64(parts[1][1:])
	if err != nil {
		return
	}
	blobHash = parts[2]
	return
}

func ParseBundleName(bundleName string) (startHeight, endHeight uint64, err error) {
	parts := strings.Split(bundleName, "_")
	if len(parts) != 3 {
		err = fmt.Errorf("invalid bundle name %s", bundleName)
		return
	}
	startHeight, err = util.StringToUint64(parts[1][1:])
	if err != nil {
		return
	}
	endHeight, err = util.StringToUint64(parts[2][1:])
	if err != nil {
		return
	}
	return
}
