package security

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidInput marks a request rejected by validation.
var ErrInvalidInput = errors.New("invalid input")

var (
	postalCodePattern       = regexp.MustCompile(`^[0-9]{5}$`)
	membershipNumberPattern = regexp.MustCompile(`^[0-9]{9}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("plz", func(fl validator.FieldLevel) bool {
		return ValidPostalCode(fl.Field().String())
	})
	_ = v.RegisterValidation("mnr", func(fl validator.FieldLevel) bool {
		return ValidMembershipNumber(fl.Field().String())
	})
	return v
}

// ValidEmail reports whether s is a syntactically valid e-mail address.
func ValidEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

// ValidPostalCode reports whether s is exactly five digits.
func ValidPostalCode(s string) bool {
	return postalCodePattern.MatchString(s)
}

// ValidMembershipNumber reports whether s is exactly nine digits.
func ValidMembershipNumber(s string) bool {
	return membershipNumberPattern.MatchString(s)
}

// ValidateStruct runs the validate tags of v. The returned error wraps
// ErrInvalidInput and names the offending fields.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "plz":
		return fe.Field() + " must be a 5-digit postal code"
	case "mnr":
		return fe.Field() + " must be a 9-digit membership number"
	case "numeric":
		return fe.Field() + " must contain only digits"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "url":
		return fe.Field() + " must be a valid URL"
	case "http_url":
		return fe.Field() + " must be an http or https URL"
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
