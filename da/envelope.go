// Package da implements the codec for the DA envelope format used to post
// rollup state-diff batches onto the base chain, and the reassembly and
// chain-validation logic an observer needs to independently verify what was
// posted. All functions are pure transformations over in-memory data; block
// fetching, persistence and retry policy belong to the caller.
package da

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ZeroTail is the back-reference carried by the first DA transaction ever
// posted, before any chain tail exists.
var ZeroTail = chainhash.Hash{}

// Envelope is one physical carrier of one chunk of a blob: a single base-chain
// transaction tagged with the protocol magic. Envelopes are constructed once
// per scanned transaction and immutable afterwards.
type Envelope struct {
	// Txid and Wtxid identify the carrier transaction. Wtxid covers witness
	// data and is the unit of the back-reference chain.
	Txid  chainhash.Hash
	Wtxid chainhash.Hash

	// Height and TxIndex locate the transaction in the base chain; together
	// they define the canonical scan order.
	Height  uint64
	TxIndex int

	// BlobHash, ChunkIndex and TotalChunks are copied from the chunk header.
	BlobHash    chainhash.Hash
	ChunkIndex  uint16
	TotalChunks uint16

	// Payload is the full witness-carried chunk: header followed by body.
	Payload []byte

	// PrevTail is the wtxid of the previous DA chain tail, embedded in the
	// tagging output. ZeroTail for the first transaction of the whole chain.
	PrevTail chainhash.Hash
}

// ChunkBody returns the chunk's body bytes, with the header stripped.
func (e *Envelope) ChunkBody() []byte {
	return e.Payload[ChunkHeaderSize:]
}

// FinalChunk reports whether this envelope carries the blob's last chunk.
func (e *Envelope) FinalChunk() bool {
	return e.ChunkIndex == e.TotalChunks-1
}
