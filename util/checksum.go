package util

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// GenerateChecksum generates the checksum of one piece of data
func GenerateChecksum(pieceData []byte) []byte {
	hash := sha256.New()
	hash.Write(pieceData)
	return hash.Sum(nil)
}

// GenerateChecksumHex is GenerateChecksum with hex encoding applied.
func GenerateChecksumHex(pieceData []byte) string {
	return hex.EncodeToString(GenerateChecksum(pieceData))
}

// ChecksumReader drains reader and returns the hex checksum plus the number
// of bytes read.
func ChecksumReader(reader io.Reader) (string, int64, error) {
	hash := sha256.New()
	n, err := io.Copy(hash, reader)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hash.Sum(nil)), n, nil
}
