package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/crm-integrations/saby-connector/internal/saby"

	"github.com/sirupsen/logrus"
)

// writeErrorResponse maps the CRM error taxonomy onto HTTP statuses.  Anything
// unclassified flattens to a generic internal error - internal error text must
// never reach the caller.
func writeErrorResponse(logger *logrus.Entry, w http.ResponseWriter, err error) {
	var authErr *saby.AuthError
	var rpcErr *saby.RpcError
	var transportErr *saby.TransportError
	var validationErr *validationFailure

	var response errorResponse

	switch {
	case errors.As(err, &authErr):
		response = errorResponse{
			Title:  "CRM authentication failed",
			Status: http.StatusUnauthorized,
			Code:   "SABY_AUTH_ERROR",
			Detail: authErr.Message,
		}
	case errors.As(err, &rpcErr):
		response = errorResponse{
			Title:  "CRM rejected the request",
			Status: http.StatusBadGateway,
			Code:   "SABY_API_ERROR",
			Detail: fmt.Sprintf("vendor code %d: %s", rpcErr.Code, rpcErr.Message),
		}
	case errors.As(err, &transportErr):
		response = errorResponse{
			Title:  "CRM is unreachable",
			Status: http.StatusBadGateway,
			Code:   "SABY_UNAVAILABLE",
			Detail: transportErr.Message,
		}
	case errors.As(err, &validationErr):
		response = errorResponse{
			Title:  "Validation failed",
			Status: http.StatusUnprocessableEntity,
			Code:   "VALIDATION_ERROR",
			Detail: validationErr.Error(),
		}
	default:
		logger.WithFields(logrus.Fields{"error": err}).Error("Unexpected error")
		response = errorResponse{
			Title:  "Internal server error",
			Status: http.StatusInternalServerError,
			Code:   "INTERNAL_ERROR",
		}
	}

	if response.Status != http.StatusInternalServerError {
		logger.WithFields(logrus.Fields{"error": err, "code": response.Code}).Info(response.Title)
	}

	writeJSONResponse(w, response.Status, response)
}
