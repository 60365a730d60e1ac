package da

import (
	"math/rand"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReassembleSingleBlob(t *testing.T) {
	blobHash := chainhash.HashH([]byte("single"))
	envs := []*Envelope{
		makeEnvelope(blobHash, 0, 3, []byte("aa"), testHash(1), ZeroTail, 10),
		makeEnvelope(blobHash, 1, 3, []byte("bb"), testHash(2), testHash(1), 10),
		makeEnvelope(blobHash, 2, 3, []byte("cc"), testHash(3), testHash(2), 11),
	}

	blobs := Reassemble(envs)
	require.Len(t, blobs, 1)
	assert.Equal(t, blobHash, blobs[0].BlobHash)
	assert.Equal(t, uint16(3), blobs[0].TotalChunks)
	assert.Equal(t, []byte("aabbcc"), blobs[0].Data)
	assert.Equal(t, len("aabbcc"), blobs[0].TotalSize)
	require.Len(t, blobs[0].Envelopes, 3)
	for i, env := range blobs[0].Envelopes {
		assert.Equal(t, uint16(i), env.ChunkIndex)
	}
}

func TestReassembleOrderInsensitive(t *testing.T) {
	blobHash := chainhash.HashH([]byte("shuffled"))
	bodies := [][]byte{[]byte("one"), []byte("two"), []byte("three"), []byte("four")}
	var envs []*Envelope
	for i, body := range bodies {
		envs = append(envs, makeEnvelope(blobHash, uint16(i), 4, body, testHash(byte(i)), ZeroTail, 5))
	}
	want := []byte("onetwothreefour")

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 10; trial++ {
		shuffled := append([]*Envelope{}, envs...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		blobs := Reassemble(shuffled)
		require.Len(t, blobs, 1)
		assert.Equal(t, want, blobs[0].Data)
	}
}

func TestReassembleIncompleteWithheld(t *testing.T) {
	complete := chainhash.HashH([]byte("complete"))
	missing := chainhash.HashH([]byte("missing-middle"))
	envs := []*Envelope{
		makeEnvelope(complete, 0, 1, []byte("whole"), testHash(1), ZeroTail, 1),
		makeEnvelope(missing, 0, 3, []byte("m0"), testHash(2), testHash(1), 2),
		makeEnvelope(missing, 2, 3, []byte("m2"), testHash(3), testHash(2), 2),
	}

	blobs, reports := ReassembleWithReports(envs)
	require.Len(t, blobs, 1)
	assert.Equal(t, complete, blobs[0].BlobHash)

	require.Len(t, reports, 2)
	byHash := map[chainhash.Hash]*ReassemblyReport{}
	for _, r := range reports {
		byHash[r.BlobHash] = r
	}
	require.Contains(t, byHash, missing)
	assert.False(t, byHash[missing].Complete)
	assert.Equal(t, 2, byHash[missing].DistinctIndices)
	assert.Equal(t, 2, byHash[missing].EnvelopesSeen)
	assert.True(t, byHash[complete].Complete)
}

func TestReassembleIdempotentDuplicates(t *testing.T) {
	blobHash := chainhash.HashH([]byte("republished"))
	base := []*Envelope{
		makeEnvelope(blobHash, 0, 2, []byte("left"), testHash(1), ZeroTail, 1),
		makeEnvelope(blobHash, 1, 2, []byte("right"), testHash(2), testHash(1), 1),
	}
	// The publisher retried chunk 1 in a later block with identical bytes.
	retry := makeEnvelope(blobHash, 1, 2, []byte("right"), testHash(3), testHash(1), 4)

	blobs, reports := ReassembleWithReports(append(base, retry))
	require.Len(t, blobs, 1)
	assert.Equal(t, []byte("leftright"), blobs[0].Data)
	// First-wins: the retry's envelope does not displace the original.
	assert.Equal(t, testHash(2), blobs[0].Envelopes[1].Wtxid)

	require.Len(t, reports, 1)
	assert.Equal(t, []uint16{1}, reports[0].DuplicateIndices)
	assert.False(t, reports[0].MismatchedDuplicate)
	assert.Equal(t, 3, reports[0].EnvelopesSeen)
	assert.Equal(t, 2, reports[0].DistinctIndices)
	assert.True(t, reports[0].Complete)
}

func TestReassembleMismatchedDuplicate(t *testing.T) {
	blobHash := chainhash.HashH([]byte("conflicting"))
	envs := []*Envelope{
		makeEnvelope(blobHash, 0, 1, []byte("original"), testHash(1), ZeroTail, 1),
		makeEnvelope(blobHash, 0, 1, []byte("tampered"), testHash(2), ZeroTail, 2),
	}

	blobs, reports := ReassembleWithReports(envs)
	require.Len(t, blobs, 1)
	// First-wins even when the payloads differ; the report carries the flag.
	assert.Equal(t, []byte("original"), blobs[0].Data)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].MismatchedDuplicate)
	assert.Equal(t, []uint16{0}, reports[0].DuplicateIndices)
}

func TestReassembleTotalMismatch(t *testing.T) {
	blobHash := chainhash.HashH([]byte("disagreeing-totals"))
	envs := []*Envelope{
		makeEnvelope(blobHash, 0, 2, []byte("a"), testHash(1), ZeroTail, 1),
		makeEnvelope(blobHash, 1, 3, []byte("b"), testHash(2), testHash(1), 1),
	}

	blobs, reports := ReassembleWithReports(envs)
	assert.Empty(t, blobs)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].TotalMismatch)
	assert.False(t, reports[0].Complete)
}

func TestReassembleManyBlobsInterleaved(t *testing.T) {
	hashA := chainhash.HashH([]byte("inter-a"))
	hashB := chainhash.HashH([]byte("inter-b"))
	hashC := chainhash.HashH([]byte("inter-c"))
	envs := []*Envelope{
		makeEnvelope(hashA, 0, 2, []byte("A0"), testHash(1), ZeroTail, 1),
		makeEnvelope(hashB, 0, 2, []byte("B0"), testHash(2), testHash(1), 1),
		makeEnvelope(hashC, 0, 1, []byte("C0"), testHash(3), testHash(2), 2),
		makeEnvelope(hashA, 1, 2, []byte("A1"), testHash(4), testHash(3), 2),
		makeEnvelope(hashB, 1, 2, []byte("B1"), testHash(5), testHash(4), 3),
	}

	blobs := Reassemble(envs)
	require.Len(t, blobs, 3)
	// Blobs come back in first-seen order.
	assert.Equal(t, hashA, blobs[0].BlobHash)
	assert.Equal(t, hashB, blobs[1].BlobHash)
	assert.Equal(t, hashC, blobs[2].BlobHash)
	assert.Equal(t, []byte("A0A1"), blobs[0].Data)
	assert.Equal(t, []byte("B0B1"), blobs[1].Data)
	assert.Equal(t, []byte("C0"), blobs[2].Data)
}

func TestReassembleEmptyInput(t *testing.T) {
	blobs, reports := ReassembleWithReports(nil)
	assert.Empty(t, blobs)
	assert.Empty(t, reports)
}
