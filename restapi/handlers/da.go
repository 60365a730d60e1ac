package handlers

import (
	"net/http"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/gorilla/mux"

	"github.com/bitrollup/da-syncer/service"
)

// parseBlobHash canonicalizes the blob_hash path variable. NewHashFromStr
// zero-pads short input, so the length is checked up front.
func parseBlobHash(r *http.Request) (string, error) {
	raw := mux.Vars(r)["blob_hash"]
	hashStr := strings.TrimPrefix(raw, "0x")
	if len(hashStr) != chainhash.MaxHashStringSize {
		return "", service.ErrInvalidBlobHash.Enrich(raw)
	}
	hash, err := chainhash.NewHashFromStr(hashStr)
	if err != nil {
		return "", service.ErrInvalidBlobHash.Enrich(raw)
	}
	return hash.String(), nil
}

func HandleGetBlob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blobHash, err := parseBlobHash(r)
		if err != nil {
			writeResponse(w, nil, err)
			return
		}
		blob, err := service.DaSvc.GetBlob(blobHash)
		writeResponse(w, blob, err)
	}
}

func HandleGetBatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blobHash, err := parseBlobHash(r)
		if err != nil {
			writeResponse(w, nil, err)
			return
		}
		batch, err := service.DaSvc.GetBatch(blobHash)
		writeResponse(w, batch, err)
	}
}

func HandleGetEnvelopes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blobHash, err := parseBlobHash(r)
		if err != nil {
			writeResponse(w, nil, err)
			return
		}
		envelopes, err := service.DaSvc.GetEnvelopes(blobHash)
		writeResponse(w, envelopes, err)
	}
}

func HandleGetChainStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := service.DaSvc.GetChainStatus()
		writeResponse(w, status, err)
	}
}

func HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, "ok", nil)
	}
}
