package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/crm-integrations/saby-connector/internal/config"
	"github.com/crm-integrations/saby-connector/internal/controller"
	"github.com/crm-integrations/saby-connector/internal/dealevents"
	"github.com/crm-integrations/saby-connector/internal/domain"
	"github.com/crm-integrations/saby-connector/internal/middlewares"
	"github.com/crm-integrations/saby-connector/internal/platform/logger"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type DealServer struct {
	crmService controller.CRMService
	dealEvents *dealevents.Publisher
	router     *mux.Router
	config     *config.Config
	urlPrefix  string
}

// NewDealServer creates the deal API.  dealEvents may be nil when no broker is
// configured.
func NewDealServer(crmService controller.CRMService, dealEvents *dealevents.Publisher, r *mux.Router, urlPrefix string, cfg *config.Config) *DealServer {
	return &DealServer{
		crmService: crmService,
		dealEvents: dealEvents,
		router:     r,
		config:     cfg,
		urlPrefix:  urlPrefix,
	}
}

func (s *DealServer) Routes() {
	mmw := &middlewares.MetricsMiddleware{}
	amw := &middlewares.AuthMiddleware{Secrets: s.config.ServiceToServiceCredentials}

	securedSubRouter := s.router.PathPrefix(s.urlPrefix).Subrouter()
	securedSubRouter.Use(logger.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics,
		amw.Authenticate)

	securedSubRouter.HandleFunc("/deals", s.handleCreateDeal()).Methods(http.MethodPost)
	securedSubRouter.HandleFunc("/deals/{id:[0-9]+}", s.handleDealStatus()).Methods(http.MethodGet)
}

func (s *DealServer) handleCreateDeal() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		requestId := middlewares.GetRequestID(req.Context())
		logger := logger.Log.WithFields(logrus.Fields{
			"account":    principal.GetAccount(),
			"request_id": requestId})

		var dealRequest domain.CreateDealRequest

		body := http.MaxBytesReader(w, req.Body, 1048576)

		if err := decodeJSON(body, &dealRequest); err != nil {
			var validationErr *validationFailure
			if errors.As(err, &validationErr) {
				writeErrorResponse(logger, w, err)
				return
			}
			errMsg := "Unable to process json input"
			logger.WithFields(logrus.Fields{"error": err}).Debug(errMsg)
			errorResponse := errorResponse{Title: errMsg,
				Status: http.StatusBadRequest,
				Code:   "MALFORMED_REQUEST",
				Detail: err.Error()}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		logger = logger.WithFields(logrus.Fields{
			"regulation":  dealRequest.Regulation,
			"has_client":  dealRequest.Client != nil,
			"has_contact": dealRequest.ContactPerson != nil})
		logger.Info("Creating deal")

		dealResponse, err := s.crmService.CreateDeal(req.Context(), &dealRequest)
		if err != nil {
			writeErrorResponse(logger, w, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"document_id": dealResponse.DocumentID,
			"uuid":        dealResponse.UUID}).Info("Deal created")

		if s.dealEvents != nil {
			s.dealEvents.DealCreated(req.Context(), dealResponse)
		}

		writeJSONResponse(w, http.StatusCreated, dealResponse)
	}
}

func (s *DealServer) handleDealStatus() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		requestId := middlewares.GetRequestID(req.Context())
		logger := logger.Log.WithFields(logrus.Fields{
			"account":    principal.GetAccount(),
			"request_id": requestId})

		documentId, err := strconv.Atoi(mux.Vars(req)["id"])
		if err != nil {
			errorResponse := errorResponse{Title: "Invalid deal id",
				Status: http.StatusBadRequest,
				Code:   "MALFORMED_REQUEST",
				Detail: err.Error()}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		logger.WithFields(logrus.Fields{"document_id": documentId}).Info("Getting deal status")

		status, err := s.crmService.GetDealStatus(req.Context(), documentId)
		if err != nil {
			writeErrorResponse(logger, w, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, status)
	}
}
