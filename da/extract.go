package da

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// MagicSize is the length of the protocol magic that opens every tagging
	// output's data push.
	MagicSize = 4

	// tagPushFullSize is a push carrying magic plus the 32-byte back-reference.
	tagPushFullSize = MagicSize + chainhash.HashSize
)

// Extractor turns raw base-chain transactions into DA envelopes. It is
// configured with the 4-byte protocol magic that tagging outputs are matched
// against and is safe for concurrent use.
type Extractor struct {
	magic [MagicSize]byte
}

func NewExtractor(magic [MagicSize]byte) *Extractor {
	return &Extractor{magic: magic}
}

// Extract returns the envelope carried by tx, or false if tx is not a DA
// transaction. Transactions without a matching tagging output, without a
// witness payload, or with a malformed chunk header are all simply skipped;
// unrelated and broken transactions are routine during a scan and never abort
// it.
func (x *Extractor) Extract(tx *wire.MsgTx, height uint64, txIndex int) (*Envelope, bool) {
	prevTail, ok := x.prevTailFromOutputs(tx)
	if !ok {
		return nil, false
	}
	payload, ok := witnessPayload(tx)
	if !ok {
		return nil, false
	}
	header, err := ParseChunkHeader(payload)
	if err != nil {
		return nil, false
	}
	return &Envelope{
		Txid:        tx.TxHash(),
		Wtxid:       tx.WitnessHash(),
		Height:      height,
		TxIndex:     txIndex,
		BlobHash:    header.BlobHash,
		ChunkIndex:  header.ChunkIndex,
		TotalChunks: header.TotalChunks,
		Payload:     payload,
		PrevTail:    prevTail,
	}, true
}

// prevTailFromOutputs scans the outputs for the OP_RETURN tagging output and
// returns the embedded back-reference. A push holding only the magic yields
// ZeroTail, which is valid solely for the first transaction of the chain.
func (x *Extractor) prevTailFromOutputs(tx *wire.MsgTx) (chainhash.Hash, bool) {
	for _, out := range tx.TxOut {
		script := out.PkScript
		if len(script) == 0 || script[0] != txscript.OP_RETURN {
			continue
		}
		pushes, err := txscript.PushedData(script)
		if err != nil || len(pushes) == 0 {
			continue
		}
		tag := pushes[0]
		if len(tag) < MagicSize || !bytes.Equal(tag[:MagicSize], x.magic[:]) {
			continue
		}
		var prev chainhash.Hash
		if len(tag) >= tagPushFullSize {
			copy(prev[:], tag[MagicSize:tagPushFullSize])
		}
		return prev, true
	}
	return chainhash.Hash{}, false
}

// witnessPayload returns the chunk payload: the second witness element of the
// first input that carries one.
func witnessPayload(tx *wire.MsgTx) ([]byte, bool) {
	for _, in := range tx.TxIn {
		if len(in.Witness) >= 2 {
			return in.Witness[1], true
		}
	}
	return nil, false
}
