package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
)

// Stripe rejects requests beyond these metadata limits, so they are checked
// before any call goes out.
const (
	maxMetadataKeys     = 50
	maxMetadataKeyLen   = 40
	maxMetadataValueLen = 500

	// MaxBodyBytes caps payment API request bodies.
	MaxBodyBytes = 64 << 10
)

var (
	currencyRe = regexp.MustCompile(`^[A-Za-z]{3}$`)
	idSuffixRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("currency", validCurrency)
	_ = v.RegisterValidation("stripeid", validStripeID)
	_ = v.RegisterValidation("stripe_metadata", validMetadata)
	return v
}

// validCurrency accepts a three letter ISO 4217 code in either case.
func validCurrency(fl validator.FieldLevel) bool {
	return currencyRe.MatchString(fl.Field().String())
}

// validStripeID checks an object id such as cus_ABC123 against the object
// prefix given as the tag param, e.g. `validate:"stripeid=cus"`.
func validStripeID(fl validator.FieldLevel) bool {
	suffix, ok := strings.CutPrefix(fl.Field().String(), fl.Param()+"_")
	return ok && idSuffixRe.MatchString(suffix)
}

func validMetadata(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Map || field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
		return false
	}
	if field.Len() > maxMetadataKeys {
		return false
	}
	iter := field.MapRange()
	for iter.Next() {
		key, value := iter.Key().String(), iter.Value().String()
		if key == "" || len(key) > maxMetadataKeyLen || strings.ContainsAny(key, "[]") {
			return false
		}
		if len(value) > maxMetadataValueLen {
			return false
		}
	}
	return true
}

// DecodeJSONBody decodes a single JSON object into dest and validates it.
// Unknown fields, trailing data and bodies over MaxBodyBytes are rejected.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dest any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("request body exceeds %d bytes", MaxBodyBytes))
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").WithDetails(map[string]any{"error": err.Error()})
	}
	if decoder.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "url":
		return "must be an absolute URL"
	case "currency":
		return "must be a three letter ISO currency code"
	case "stripeid":
		return fmt.Sprintf("must be a Stripe id starting with %s_", fe.Param())
	case "stripe_metadata":
		return fmt.Sprintf("must have at most %d keys of 1-%d characters without brackets and values up to %d characters",
			maxMetadataKeys, maxMetadataKeyLen, maxMetadataValueLen)
	}
	return "is invalid"
}
