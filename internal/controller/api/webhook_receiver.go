package api

import (
	"net/http"

	"github.com/crm-integrations/saby-connector/internal/config"
	"github.com/crm-integrations/saby-connector/internal/middlewares"
	"github.com/crm-integrations/saby-connector/internal/platform/logger"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// WebhookReceiver accepts deal lifecycle callbacks from external systems.
type WebhookReceiver struct {
	router    *mux.Router
	config    *config.Config
	urlPrefix string
}

func NewWebhookReceiver(r *mux.Router, urlPrefix string, cfg *config.Config) *WebhookReceiver {
	return &WebhookReceiver{
		router:    r,
		config:    cfg,
		urlPrefix: urlPrefix,
	}
}

func (s *WebhookReceiver) Routes() {
	mmw := &middlewares.MetricsMiddleware{}
	amw := &middlewares.AuthMiddleware{Secrets: s.config.ServiceToServiceCredentials}

	securedSubRouter := s.router.PathPrefix(s.urlPrefix).Subrouter()
	securedSubRouter.Use(logger.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics,
		amw.Authenticate)

	securedSubRouter.HandleFunc("/webhook/deal-created", s.handleDealCreated()).Methods(http.MethodPost)
}

type webhookPayload struct {
	EventType string                 `json:"event_type" validate:"required"`
	Data      map[string]interface{} `json:"data" validate:"required"`
}

type webhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (s *WebhookReceiver) handleDealCreated() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		requestId := middlewares.GetRequestID(req.Context())
		logger := logger.Log.WithFields(logrus.Fields{"request_id": requestId})

		body := http.MaxBytesReader(w, req.Body, 1048576)

		var payload webhookPayload
		if err := decodeJSON(body, &payload); err != nil {
			errorResponse := errorResponse{Title: "Unable to process json input",
				Status: http.StatusBadRequest,
				Code:   "MALFORMED_REQUEST",
				Detail: err.Error()}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		logger.WithFields(logrus.Fields{"event_type": payload.EventType}).Info("Webhook deal created")

		writeJSONResponse(w, http.StatusOK, webhookResponse{
			Status:  "processed",
			Message: "Deal creation webhook processed successfully",
		})
	}
}
