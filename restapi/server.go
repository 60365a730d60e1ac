package restapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/bitrollup/da-syncer/config"
	"github.com/bitrollup/da-syncer/logging"
	"github.com/bitrollup/da-syncer/restapi/handlers"
)

// Router builds the API routes. Separate from Serve so tests can mount the
// routes on an httptest server.
func Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(handlers.LoggingMiddleware)
	router.Path("/healthz").Methods(http.MethodGet).Handler(handlers.HandleHealthz())

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Path("/blob/{blob_hash}").Methods(http.MethodGet).Handler(handlers.HandleGetBlob())
	v1.Path("/batch/{blob_hash}").Methods(http.MethodGet).Handler(handlers.HandleGetBatch())
	v1.Path("/envelopes/{blob_hash}").Methods(http.MethodGet).Handler(handlers.HandleGetEnvelopes())
	v1.Path("/chain/status").Methods(http.MethodGet).Handler(handlers.HandleGetChainStatus())
	return router
}

func Serve(cfg *config.ServerConfig) {
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	logging.Logger.Infof("serving API at %s", cfg.ListenAddr)
	if err := server.ListenAndServe(); err != nil {
		logging.Logger.Errorf("failed to listen and serve API, err=%s", err.Error())
		panic(err)
	}
}
