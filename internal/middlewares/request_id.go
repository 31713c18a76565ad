package middlewares

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const RequestIdHeader = "X-Request-Id"

type requestIdKey int

var requestIdCtxKey requestIdKey

// RequestID assigns a request id to every inbound request.  A caller-supplied
// X-Request-Id header wins so that ids can be traced across services.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requestId := req.Header.Get(RequestIdHeader)
		if requestId == "" {
			requestId = uuid.New().String()
			req.Header.Set(RequestIdHeader, requestId)
		}

		w.Header().Set(RequestIdHeader, requestId)

		ctx := context.WithValue(req.Context(), requestIdCtxKey, requestId)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// GetRequestID returns the request id stored by the RequestID middleware.
func GetRequestID(ctx context.Context) string {
	requestId, _ := ctx.Value(requestIdCtxKey).(string)
	return requestId
}
