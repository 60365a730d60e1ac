package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bitrollup/da-syncer/logging"
	"github.com/bitrollup/da-syncer/service"
)

// Response is the envelope every endpoint returns. Errors are reported via
// the code field, the HTTP status is always 200.
type Response struct {
	Code    int64       `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs every request with its status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)
		logging.Logger.Infof("%s %s %d %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

func Error(err error) (int64, string) {
	switch e := err.(type) {
	case service.Err:
		return e.Code, e.Message
	case nil:
		return service.NoErr.Code, service.NoErr.Message
	default:
		return service.InternalErr.Code, err.Error()
	}
}

func writeResponse(w http.ResponseWriter, data interface{}, err error) {
	code, message := Error(err)
	payload := Response{
		Code:    code,
		Message: message,
	}
	if err == nil {
		payload.Data = data
	}
	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(&payload); encodeErr != nil {
		logging.Logger.Errorf("failed to write response, err=%s", encodeErr.Error())
	}
}
