package da

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Violation localizes one break in the back-reference chain. Scanning never
// stops at the first break; every violation in the window is surfaced.
type Violation struct {
	Height     uint64
	Wtxid      chainhash.Hash
	BlobHash   chainhash.Hash
	ChunkIndex uint16
	Expected   chainhash.Hash
	Actual     chainhash.Hash
	Reason     string
}

func (v Violation) String() string {
	return fmt.Sprintf("chain violation at height %d wtxid %s (blob %s chunk %d): %s, expected %s, got %s",
		v.Height, v.Wtxid, v.BlobHash, v.ChunkIndex, v.Reason, v.Expected, v.Actual)
}

type blobProgress struct {
	total   uint16
	byIndex map[uint16]chainhash.Hash
}

// ChainValidator walks envelopes in scan order and checks the back-reference
// chain invariant: the first chunk of every fresh blob must reference the
// wtxid of the previous blob's final chunk, and every continuing chunk must
// reference its immediate predecessor within the same blob. The validator is
// resumable: seed it with a previously persisted tail to continue across scan
// windows.
type ChainValidator struct {
	expectedPrev chainhash.Hash
	inProgress   map[chainhash.Hash]*blobProgress
	violations   []Violation
}

// NewChainValidator returns a validator whose next fresh blob must reference
// expectedPrev. Use ZeroTail when validating from the start of the chain.
func NewChainValidator(expectedPrev chainhash.Hash) *ChainValidator {
	return &ChainValidator{
		expectedPrev: expectedPrev,
		inProgress:   make(map[chainhash.Hash]*blobProgress),
	}
}

// Process feeds the next envelope in scan order.
func (v *ChainValidator) Process(env *Envelope) {
	prog, open := v.inProgress[env.BlobHash]
	switch {
	case env.ChunkIndex == 0 && !open:
		if env.PrevTail != v.expectedPrev {
			v.record(env, v.expectedPrev, "first chunk does not reference the previous chain tail")
		}
		prog = &blobProgress{
			total:   env.TotalChunks,
			byIndex: map[uint16]chainhash.Hash{0: env.Wtxid},
		}
		v.inProgress[env.BlobHash] = prog

	case env.ChunkIndex == 0 && open:
		v.record(env, prog.byIndex[0], "blob restarted at chunk 0 while still in progress")

	default:
		if !open {
			v.record(env, chainhash.Hash{}, "continuation chunk for a blob with no observed first chunk")
			prog = &blobProgress{
				total:   env.TotalChunks,
				byIndex: map[uint16]chainhash.Hash{env.ChunkIndex: env.Wtxid},
			}
			v.inProgress[env.BlobHash] = prog
			break
		}
		predecessor, seen := prog.byIndex[env.ChunkIndex-1]
		switch {
		case !seen:
			v.record(env, chainhash.Hash{}, "predecessor chunk not observed")
		case env.PrevTail != predecessor:
			v.record(env, predecessor, "continuation chunk does not reference its predecessor")
		}
		if _, dup := prog.byIndex[env.ChunkIndex]; !dup {
			prog.byIndex[env.ChunkIndex] = env.Wtxid
		}
	}

	// The final chunk of any blob becomes the required back-reference for
	// whatever DA transaction comes next, of any blob.
	if env.FinalChunk() {
		v.expectedPrev = env.Wtxid
		delete(v.inProgress, env.BlobHash)
	}
}

func (v *ChainValidator) record(env *Envelope, expected chainhash.Hash, reason string) {
	v.violations = append(v.violations, Violation{
		Height:     env.Height,
		Wtxid:      env.Wtxid,
		BlobHash:   env.BlobHash,
		ChunkIndex: env.ChunkIndex,
		Expected:   expected,
		Actual:     env.PrevTail,
		Reason:     reason,
	})
}

// Valid reports whether no violation has been recorded so far. An empty input
// validates trivially.
func (v *ChainValidator) Valid() bool {
	return len(v.violations) == 0
}

// Violations returns every violation recorded so far, in scan order.
func (v *ChainValidator) Violations() []Violation {
	return v.violations
}

// Tail returns the back-reference the next fresh blob is required to carry.
func (v *ChainValidator) Tail() chainhash.Hash {
	return v.expectedPrev
}

// Quiescent reports whether no blob is mid-reassembly: at a quiescent point
// the tail alone captures the whole validator state, which makes it safe to
// persist as a resume checkpoint.
func (v *ChainValidator) Quiescent() bool {
	return len(v.inProgress) == 0
}

// ValidateChain checks the back-reference chain across envelopes of all blobs
// in scan order, starting from the zero sentinel.
func ValidateChain(envs []*Envelope) (bool, []Violation) {
	v := NewChainValidator(ZeroTail)
	for _, env := range envs {
		v.Process(env)
	}
	return v.Valid(), v.Violations()
}

// ValidateBlobChain checks intra-blob ordering for one blob hash in isolation:
// every continuing chunk must reference the wtxid of the chunk before it.
// Cross-blob tail transitions are ignored, so the first chunk's back-reference
// is not checked here; interleaved envelopes of other blobs are skipped.
func ValidateBlobChain(envs []*Envelope, blobHash chainhash.Hash) (bool, []Violation) {
	var violations []Violation
	byIndex := make(map[uint16]chainhash.Hash)
	for _, env := range envs {
		if env.BlobHash != blobHash {
			continue
		}
		if _, dup := byIndex[env.ChunkIndex]; dup {
			violations = append(violations, Violation{
				Height:     env.Height,
				Wtxid:      env.Wtxid,
				BlobHash:   env.BlobHash,
				ChunkIndex: env.ChunkIndex,
				Actual:     env.PrevTail,
				Reason:     "duplicate chunk index",
			})
			continue
		}
		if env.ChunkIndex > 0 {
			predecessor, seen := byIndex[env.ChunkIndex-1]
			switch {
			case !seen:
				violations = append(violations, Violation{
					Height:     env.Height,
					Wtxid:      env.Wtxid,
					BlobHash:   env.BlobHash,
					ChunkIndex: env.ChunkIndex,
					Actual:     env.PrevTail,
					Reason:     "predecessor chunk not observed",
				})
			case env.PrevTail != predecessor:
				violations = append(violations, Violation{
					Height:     env.Height,
					Wtxid:      env.Wtxid,
					BlobHash:   env.BlobHash,
					ChunkIndex: env.ChunkIndex,
					Expected:   predecessor,
					Actual:     env.PrevTail,
					Reason:     "continuation chunk does not reference its predecessor",
				})
			}
		}
		byIndex[env.ChunkIndex] = env.Wtxid
	}
	return len(violations) == 0, violations
}
