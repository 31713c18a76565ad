package api

import (
	"net/http"
	_ "net/http/pprof"

	"github.com/crm-integrations/saby-connector/internal/config"
	"github.com/crm-integrations/saby-connector/internal/controller"
	"github.com/crm-integrations/saby-connector/internal/platform/logger"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type MonitoringServer struct {
	healthChecker controller.HealthChecker
	router        *mux.Router
	config        *config.Config
}

func NewMonitoringServer(healthChecker controller.HealthChecker, r *mux.Router, cfg *config.Config) *MonitoringServer {
	return &MonitoringServer{
		healthChecker: healthChecker,
		router:        r,
		config:        cfg,
	}
}

func (s *MonitoringServer) Routes() {
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/liveness", s.handleLiveness()).Methods(http.MethodGet)
	s.router.HandleFunc("/readiness", s.handleReadiness()).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	if s.config.Profile {
		logger.Log.Warn("WARNING: Enabling the profiler endpoint!!")
		s.router.PathPrefix("/debug").Handler(http.DefaultServeMux)
	}
}

func (s *MonitoringServer) handleLiveness() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

func (s *MonitoringServer) handleReadiness() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	SabyConnected bool   `json:"saby_connected"`
}

// handleHealth probes the CRM with a theme lookup.  A failing probe reports
// the service as degraded, not down - the connector itself is still serving.
func (s *MonitoringServer) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {

		response := healthResponse{Status: "healthy", SabyConnected: true}

		if err := s.healthChecker.HealthCheck(req.Context(), s.config.HealthProbeTheme); err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Warn("Saby CRM connection check failed")
			response.Status = "degraded"
			response.SabyConnected = false
		}

		writeJSONResponse(w, http.StatusOK, response)
	}
}
