package syncer

import (
	"context"
	"time"

	"github.com/bitrollup/da-syncer/logging"
	"github.com/bitrollup/da-syncer/metrics"
)

// monitorChainHead keeps the head gauge fresh so scan lag stays visible even
// while sync is paused waiting for confirmations.
func (s *DaSyncer) monitorChainHead() {
	monitorTicker := time.NewTicker(MonitorInterval)
	for range monitorTicker.C {
		head, err := s.client.GetLatestBlockNum(context.Background())
		if err != nil {
			logging.Logger.Errorf("failed to get chain head, err=%s", err.Error())
			continue
		}
		metrics.ChainHeadGauge.Set(float64(head))
	}
}
