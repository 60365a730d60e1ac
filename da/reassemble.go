package da

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Blob is the full logical unit of posted data: the concatenation of all chunk
// bodies sharing one blob hash.
type Blob struct {
	BlobHash    chainhash.Hash
	TotalChunks uint16
	TotalSize   int
	Data        []byte

	// Envelopes holds the constituent carriers ordered by chunk index, kept
	// for chain-validation bookkeeping.
	Envelopes []*Envelope
}

// ReassemblyReport describes what was observed for one blob hash within a scan
// window, whether or not the blob completed.
type ReassemblyReport struct {
	BlobHash        chainhash.Hash
	TotalChunks     uint16
	EnvelopesSeen   int
	DistinctIndices int

	// DuplicateIndices lists every chunk index delivered more than once.
	// Duplicates resolve first-wins but are never silently absorbed.
	DuplicateIndices []uint16

	// MismatchedDuplicate is set when a duplicate's payload differs from the
	// chunk kept for that index. Redelivery of identical bytes is routine
	// under the at-least-once scan model; diverging bytes are an integrity
	// defect.
	MismatchedDuplicate bool

	// TotalMismatch is set when envelopes of the same blob disagree on the
	// declared total chunk count.
	TotalMismatch bool

	Complete bool
}

// Reassemble groups envelopes by blob hash and returns every blob whose chunk
// indices form the complete 0..total-1 set. Incomplete blobs are withheld; the
// caller re-invokes with a larger window once more envelopes have been
// scanned. The input must already be in scan order (height ascending, then
// transaction order); Reassemble does not sort.
func Reassemble(envs []*Envelope) []*Blob {
	blobs, _ := ReassembleWithReports(envs)
	return blobs
}

// ReassembleWithReports is Reassemble plus one completeness/ordering report
// per observed blob hash, in first-seen order.
func ReassembleWithReports(envs []*Envelope) ([]*Blob, []*ReassemblyReport) {
	type group struct {
		byIndex map[uint16]*Envelope
		report  *ReassemblyReport
	}
	groups := make(map[chainhash.Hash]*group)
	order := make([]chainhash.Hash, 0)

	for _, env := range envs {
		g, ok := groups[env.BlobHash]
		if !ok {
			g = &group{
				byIndex: make(map[uint16]*Envelope),
				report: &ReassemblyReport{
					BlobHash:    env.BlobHash,
					TotalChunks: env.TotalChunks,
				},
			}
			groups[env.BlobHash] = g
			order = append(order, env.BlobHash)
		}
		g.report.EnvelopesSeen++
		if env.TotalChunks != g.report.TotalChunks {
			g.report.TotalMismatch = true
		}
		if kept, dup := g.byIndex[env.ChunkIndex]; dup {
			g.report.DuplicateIndices = append(g.report.DuplicateIndices, env.ChunkIndex)
			if !bytes.Equal(kept.Payload, env.Payload) {
				g.report.MismatchedDuplicate = true
			}
			continue
		}
		g.byIndex[env.ChunkIndex] = env
	}

	blobs := make([]*Blob, 0, len(order))
	reports := make([]*ReassemblyReport, 0, len(order))
	for _, hash := range order {
		g := groups[hash]
		g.report.DistinctIndices = len(g.byIndex)
		total := int(g.report.TotalChunks)
		// A group whose envelopes disagree on the total has no trustworthy
		// index set; it is never complete.
		complete := total > 0 && !g.report.TotalMismatch
		for i := 0; i < total; i++ {
			if _, ok := g.byIndex[uint16(i)]; !ok {
				complete = false
				break
			}
		}
		if complete {
			g.report.Complete = true
			blob := &Blob{
				BlobHash:    hash,
				TotalChunks: g.report.TotalChunks,
				Envelopes:   make([]*Envelope, 0, total),
			}
			for i := 0; i < total; i++ {
				env := g.byIndex[uint16(i)]
				blob.Envelopes = append(blob.Envelopes, env)
				blob.Data = append(blob.Data, env.ChunkBody()...)
			}
			blob.TotalSize = len(blob.Data)
			blobs = append(blobs, blob)
		}
		reports = append(reports, g.report)
	}
	return blobs, reports
}
