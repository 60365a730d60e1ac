package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bitrollup/da-syncer/logging"
)

var (
	ScannedHeightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanned_block_height",
		Help: "Scanned block height, all DA envelopes up to it have been extracted and persisted.",
	})

	VerifiedHeightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "verified_block_height",
		Help: "Verified block height, all envelopes up to it re-checked against the archive.",
	})

	ChainHeadGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chain_head_height",
		Help: "Best block height reported by the base chain node.",
	})

	ExtractedEnvelopeCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "extracted_envelopes_total",
		Help: "DA envelopes extracted from scanned transactions.",
	})

	ReassembledBatchCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reassembled_batches_total",
		Help: "Batches whose chunk set completed and were decoded.",
	})

	ChainViolationCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chain_violations_total",
		Help: "Back-reference chain violations observed while scanning.",
	})

	IncompleteBlobGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "incomplete_blobs",
		Help: "Blobs currently waiting for missing chunks.",
	})

	MetricsItems = []prometheus.Collector{
		ScannedHeightGauge,
		VerifiedHeightGauge,
		ChainHeadGauge,
		ExtractedEnvelopeCounter,
		ReassembledBatchCounter,
		ChainViolationCounter,
		IncompleteBlobGauge,
	}
)

const DefaultMetricsAddress = "0.0.0.0:9090"

type Metrics struct {
	httpAddress string
	registry    *prometheus.Registry
	httpServer  *http.Server
}

func NewMetrics(address string) *Metrics {
	if address == "" {
		address = DefaultMetricsAddress
	}
	return &Metrics{
		httpAddress: address,
		registry:    prometheus.NewRegistry(),
	}
}

func (m *Metrics) Start() {
	m.registry.MustRegister(MetricsItems...)
	go m.serve()
}

func (m *Metrics) serve() {
	router := mux.NewRouter()
	router.Path("/metrics").Handler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.httpServer = &http.Server{
		Addr:    m.httpAddress,
		Handler: router,
	}
	if err := m.httpServer.ListenAndServe(); err != nil {
		logging.Logger.Errorf("failed to listen and serve metrics, err=%s", err.Error())
		panic(err)
	}
}
