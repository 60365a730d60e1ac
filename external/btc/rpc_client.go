package btc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/wire"
)

var (
	ErrBlockNotFound = errors.New("the block is not found in the chain") // note: a height past the tip also reports not found
)

// bitcoind RPC error codes that all mean the requested block does not exist.
const (
	rpcErrCodeBlockNotFound    = -5
	rpcErrCodeHeightOutOfRange = -8
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// RPCClient talks to a Bitcoin-style node over JSON-RPC with basic auth.
type RPCClient struct {
	hc   *http.Client
	host string
	user string
	pass string
}

// NewRPCClient returns a new chain RPC client.
func NewRPCClient(host, user, pass string) (*RPCClient, error) {
	transport := &http.Transport{
		DisableCompression:  true,
		MaxIdleConnsPerHost: 1000,
		MaxConnsPerHost:     1000,
		IdleConnTimeout:     90 * time.Second,
	}
	client := &http.Client{
		Timeout:   time.Minute,
		Transport: transport,
	}
	return &RPCClient{hc: client, host: host, user: user, pass: pass}, nil
}

func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	r, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		err = r.Body.Close()
	}()
	respBz, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("error reading http response body %s", err)
	}
	// The node reports RPC failures with a 500 status and a JSON error body,
	// so decode the body before judging the status.
	var resp rpcResponse
	if err := json.Unmarshal(respBz, &resp); err != nil {
		if r.StatusCode != http.StatusOK {
			return fmt.Errorf("received non-OK response status: %s", r.Status)
		}
		return err
	}
	if resp.Error != nil {
		if resp.Error.Code == rpcErrCodeBlockNotFound || resp.Error.Code == rpcErrCodeHeightOutOfRange {
			return ErrBlockNotFound
		}
		return resp.Error
	}
	return json.Unmarshal(resp.Result, result)
}

// GetBlockCount returns the height of the node's best block.
func (c *RPCClient) GetBlockCount(ctx context.Context) (uint64, error) {
	var count uint64
	if err := c.call(ctx, "getblockcount", nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetBlockHash returns the display-order hash of the block at height.
func (c *RPCClient) GetBlockHash(ctx context.Context, height uint64) (string, error) {
	var hash string
	if err := c.call(ctx, "getblockhash", []interface{}{height}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// GetBlock fetches a block by hash and decodes its full wire serialization,
// witness data included.
func (c *RPCClient) GetBlock(ctx context.Context, blockHash string) (*wire.MsgBlock, error) {
	var blockHex string
	if err := c.call(ctx, "getblock", []interface{}{blockHash, 0}, &blockHex); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(blockHex)
	if err != nil {
		return nil, fmt.Errorf("error decoding block hex %s", err)
	}
	block := &wire.MsgBlock{}
	if err := block.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return block, nil
}
