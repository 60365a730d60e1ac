package external

import (
	"context"

	"github.com/btcsuite/btcd/wire"

	"github.com/bitrollup/da-syncer/config"
	"github.com/bitrollup/da-syncer/external/btc"
)

type IClient interface {
	GetLatestBlockNum(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, height uint64) (*wire.MsgBlock, error)
}

type Client struct {
	rpcClient *btc.RPCClient
	cfg       *config.SyncerConfig
}

func NewClient(cfg *config.SyncerConfig) IClient {
	rpcClient, err := btc.NewRPCClient(cfg.ChainConfig.RPCAddrs[0], cfg.ChainConfig.RPCUser, cfg.ChainConfig.RPCPass)
	if err != nil {
		panic("new chain rpc client error")
	}
	return &Client{
		rpcClient: rpcClient,
		cfg:       cfg,
	}
}

func (c *Client) GetLatestBlockNum(ctx context.Context) (uint64, error) {
	return c.rpcClient.GetBlockCount(ctx)
}

func (c *Client) GetBlock(ctx context.Context, height uint64) (*wire.MsgBlock, error) {
	hash, err := c.rpcClient.GetBlockHash(ctx, height)
	if err != nil {
		return nil, err
	}
	return c.rpcClient.GetBlock(ctx, hash)
}
