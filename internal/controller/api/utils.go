package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/crm-integrations/saby-connector/internal/domain"

	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// validationFailure carries field-level detail so the handler can answer with
// an unprocessable-entity response instead of a plain bad-request.
type validationFailure struct {
	fields []string
}

func (e *validationFailure) Error() string {
	return "Request body failed validation: " + strings.Join(e.fields, ", ")
}

func newValidator() *validator.Validate {
	v := validator.New()
	if err := domain.RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
}

var requestValidator = newValidator()

func writeJSONResponse(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)

	if payload == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Unable to encode payload!", http.StatusUnprocessableEntity)
		log.Println("Unable to encode payload!")
	}
}

func decodeJSON(body io.ReadCloser, data interface{}) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(&data); err != nil {
		return errors.New("Request body includes malformed json")
	}

	if err := requestValidator.Struct(data); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make([]string, 0, len(validationErrors))
			for _, e := range validationErrors {
				fields = append(fields, fmt.Sprintf("%s (%s)", e.Field(), e.Tag()))
			}
			return &validationFailure{fields: fields}
		}
		return err
	} else if dec.More() {
		return errors.New("Request body must only contain one json object")
	}

	return nil
}
