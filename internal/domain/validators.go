package domain

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	innPattern = regexp.MustCompile(`^[0-9]{10,12}$`)
	kppPattern = regexp.MustCompile(`^[0-9]{9}$`)
)

// ValidINN reports whether s is a 10-12 digit tax number.
func ValidINN(s string) bool {
	return innPattern.MatchString(s)
}

// ValidKPP reports whether s is a 9 digit registration code.
func ValidKPP(s string) bool {
	return kppPattern.MatchString(s)
}

// ValidPhone reports whether s contains digits plus the "+-() " punctuation
// the CRM accepts, with at least one digit.
func ValidPhone(s string) bool {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '+', '-', '(', ')', ' ':
			return -1
		}
		return r
	}, s)

	if stripped == "" {
		return false
	}

	for _, r := range stripped {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// RegisterValidations installs the CRM-specific field validations and the
// cross-field deal rules on v.
func RegisterValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("inn", func(fl validator.FieldLevel) bool {
		return ValidINN(fl.Field().String())
	}); err != nil {
		return err
	}

	if err := v.RegisterValidation("kpp", func(fl validator.FieldLevel) bool {
		return ValidKPP(fl.Field().String())
	}); err != nil {
		return err
	}

	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	}); err != nil {
		return err
	}

	v.RegisterStructValidation(validateCreateDealRequest, CreateDealRequest{})

	return nil
}

func validateCreateDealRequest(sl validator.StructLevel) {
	req := sl.Current().Interface().(CreateDealRequest)

	if req.Client == nil && req.ContactPerson == nil {
		sl.ReportError(req.Client, "client", "Client", "client_or_contact_person", "")
		return
	}

	// A standalone contact person must be reachable somehow.
	if req.Client == nil && req.ContactPerson != nil &&
		req.ContactPerson.Phone == "" && req.ContactPerson.Email == "" {
		sl.ReportError(req.ContactPerson, "contact_person", "ContactPerson", "phone_or_email", "")
	}
}
