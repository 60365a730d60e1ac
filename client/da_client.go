package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bitrollup/da-syncer/types"
)

const (
	pathGetBlob        = "/v1/blob/%s"
	pathGetBatch       = "/v1/batch/%s"
	pathGetEnvelopes   = "/v1/envelopes/%s"
	pathGetChainStatus = "/v1/chain/status"
)

type DaClient struct {
	hc   *http.Client
	host string
}

// NewDaClient returns a client for the DA API server at host, e.g.
// "http://localhost:8080".
func NewDaClient(host string) *DaClient {
	transport := &http.Transport{
		DisableCompression:  true,
		MaxIdleConnsPerHost: 1000,
		MaxConnsPerHost:     1000,
		IdleConnTimeout:     90 * time.Second,
	}
	client := &http.Client{
		Timeout:   10 * time.Minute,
		Transport: transport,
	}
	return &DaClient{hc: client, host: host}
}

type apiResponse struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *DaClient) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return nil, err
	}
	r, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = r.Body.Close()
	}()
	if r.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected http status %d", r.StatusCode)
	}
	respBz, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading http response body %s", err)
	}
	var resp apiResponse
	if err = json.Unmarshal(respBz, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("server returned code %d, message: %s", resp.Code, resp.Message)
	}
	return resp.Data, nil
}

func (c *DaClient) GetBlob(ctx context.Context, blobHash string) (*types.Blob, error) {
	data, err := c.get(ctx, fmt.Sprintf(pathGetBlob, blobHash))
	if err != nil {
		return nil, err
	}
	var blob types.Blob
	if err = json.Unmarshal(data, &blob); err != nil {
		return nil, err
	}
	return &blob, nil
}

func (c *DaClient) GetBatch(ctx context.Context, blobHash string) (*types.Batch, error) {
	data, err := c.get(ctx, fmt.Sprintf(pathGetBatch, blobHash))
	if err != nil {
		return nil, err
	}
	var batch types.Batch
	if err = json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (c *DaClient) GetEnvelopes(ctx context.Context, blobHash string) ([]*types.Envelope, error) {
	data, err := c.get(ctx, fmt.Sprintf(pathGetEnvelopes, blobHash))
	if err != nil {
		return nil, err
	}
	var envelopes []*types.Envelope
	if err = json.Unmarshal(data, &envelopes); err != nil {
		return nil, err
	}
	return envelopes, nil
}

func (c *DaClient) GetChainStatus(ctx context.Context) (*types.ChainStatus, error) {
	data, err := c.get(ctx, pathGetChainStatus)
	if err != nil {
		return nil, err
	}
	var status types.ChainStatus
	if err = json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
