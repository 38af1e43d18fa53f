package herd

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/herdbook/herdbook/internal/common/httpclient"
)

const dateLayout = "2006-01-02"

var (
	payloadValidator *validator.Validate
	validatorOnce    sync.Once
)

// V returns the payload validator with the herd-specific rules registered.
func V() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		v.RegisterValidation("isodate", isoDateValidator)
		v.RegisterValidation("animalStatus", animalStatusValidator)
		v.RegisterValidation("role", roleValidator)
		payloadValidator = v
	})
	return payloadValidator
}

// isoDateValidator accepts YYYY-MM-DD or a full RFC 3339 timestamp.
func isoDateValidator(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if _, err := time.Parse(dateLayout, s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

func animalStatusValidator(fl validator.FieldLevel) bool {
	return slices.Contains(AnimalStatuses, AnimalStatus(fl.Field().String()))
}

func roleValidator(fl validator.FieldLevel) bool {
	switch Role(fl.Field().String()) {
	case RoleAdmin, RoleManager, RoleWorker, RoleViewer:
		return true
	}
	return false
}

// validatePayload checks v before it is sent. Failures are InvalidRequest errors
// whose message names every offending field.
func validatePayload(v any) error {
	err := V().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return httpclient.ErrInvalidRequest.Err(err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return httpclient.ErrInvalidRequest.MsgErr("Invalid input: "+strings.Join(msgs, "; "), err)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "isodate":
		return fmt.Sprintf("%s must be a date (YYYY-MM-DD)", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be an email address", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "animalStatus":
		return fmt.Sprintf("%s is not a valid animal status", fe.Field())
	case "role":
		return fmt.Sprintf("%s is not a valid role", fe.Field())
	case "min", "max", "gt", "gte":
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
