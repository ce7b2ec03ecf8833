package ratelimit

import (
	"net/http"

	"learn-gateway/middleware/requestid"

	"go.uber.org/zap"
)

type internalErrorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// Recoverer converte panic em 500 JSON com o request ID, sem stack trace na resposta.
func Recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				id := requestid.FromContext(r.Context())
				log.Error("panic serving request",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", id),
					zap.Stack("stack"))
				writeJSON(w, http.StatusInternalServerError, internalErrorBody{
					Error:     "Internal server error",
					RequestID: id,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
