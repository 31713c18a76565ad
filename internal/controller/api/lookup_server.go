package api

import (
	"encoding/json"
	"net/http"

	"github.com/crm-integrations/saby-connector/internal/config"
	"github.com/crm-integrations/saby-connector/internal/controller"
	"github.com/crm-integrations/saby-connector/internal/domain"
	"github.com/crm-integrations/saby-connector/internal/middlewares"
	"github.com/crm-integrations/saby-connector/internal/platform/logger"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// LookupServer exposes the CRM directory operations: theme lookup and
// find-or-create for clients.
type LookupServer struct {
	crmService controller.CRMService
	router     *mux.Router
	config     *config.Config
	urlPrefix  string
}

func NewLookupServer(crmService controller.CRMService, r *mux.Router, urlPrefix string, cfg *config.Config) *LookupServer {
	return &LookupServer{
		crmService: crmService,
		router:     r,
		config:     cfg,
		urlPrefix:  urlPrefix,
	}
}

func (s *LookupServer) Routes() {
	mmw := &middlewares.MetricsMiddleware{}
	amw := &middlewares.AuthMiddleware{Secrets: s.config.ServiceToServiceCredentials}

	securedSubRouter := s.router.PathPrefix(s.urlPrefix).Subrouter()
	securedSubRouter.Use(logger.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics,
		amw.Authenticate)

	securedSubRouter.HandleFunc("/themes/{name}", s.handleGetTheme()).Methods(http.MethodGet)
	securedSubRouter.HandleFunc("/clients/find-or-create", s.handleFindOrCreateClient()).Methods(http.MethodPost)
}

func (s *LookupServer) handleGetTheme() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		requestId := middlewares.GetRequestID(req.Context())
		logger := logger.Log.WithFields(logrus.Fields{
			"account":    principal.GetAccount(),
			"request_id": requestId})

		themeName := mux.Vars(req)["name"]

		logger.WithFields(logrus.Fields{"theme": themeName}).Info("Getting CRM theme")

		theme, err := s.crmService.GetThemeByName(req.Context(), themeName)
		if err != nil {
			writeErrorResponse(logger, w, err)
			return
		}

		writeJSONResponse(w, http.StatusOK, theme)
	}
}

func (s *LookupServer) handleFindOrCreateClient() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		requestId := middlewares.GetRequestID(req.Context())
		logger := logger.Log.WithFields(logrus.Fields{
			"account":    principal.GetAccount(),
			"request_id": requestId})

		body := http.MaxBytesReader(w, req.Body, 1048576)

		// The client payload is an open mapping - only the identifier
		// formats are checked here, the CRM validates the rest.
		var clientData map[string]interface{}
		if err := json.NewDecoder(body).Decode(&clientData); err != nil {
			errMsg := "Unable to process json input"
			logger.WithFields(logrus.Fields{"error": err}).Debug(errMsg)
			errorResponse := errorResponse{Title: errMsg,
				Status: http.StatusBadRequest,
				Code:   "MALFORMED_REQUEST",
				Detail: err.Error()}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		if err := validateClientIdentifiers(clientData); err != nil {
			writeErrorResponse(logger, w, err)
			return
		}

		logger.Info("Finding or creating client")

		clientId, err := s.crmService.FindOrCreateClient(req.Context(), clientData)
		if err != nil {
			writeErrorResponse(logger, w, err)
			return
		}

		result := map[string]interface{}{"client_id": clientId}
		for name, value := range clientData {
			result[name] = value
		}

		writeJSONResponse(w, http.StatusOK, result)
	}
}

func validateClientIdentifiers(clientData map[string]interface{}) error {
	var fields []string

	if inn, present := clientData["inn"]; present {
		value, ok := inn.(string)
		if !ok || !domain.ValidINN(value) {
			fields = append(fields, "inn (inn)")
		}
	}

	if kpp, present := clientData["kpp"]; present {
		value, ok := kpp.(string)
		if !ok || !domain.ValidKPP(value) {
			fields = append(fields, "kpp (kpp)")
		}
	}

	if len(fields) > 0 {
		return &validationFailure{fields: fields}
	}

	return nil
}
