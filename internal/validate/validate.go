// Package validate wraps go-playground/validator with the tag conventions used
// by request and store inputs.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"qfree/queue-service/internal/models"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validateNotBlank)
	_ = v.RegisterValidation("staff_status", validateStaffStatus)
	return &Validator{validate: v}
}

var std = New()

// Struct validates i with the package-level validator.
func Struct(i interface{}) error {
	return std.Struct(i)
}

func (v *Validator) Struct(i interface{}) error {
	return v.validate.Struct(i)
}

// FirstError extracts the first failing field and a readable message.
func FirstError(err error) (string, string, bool) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "", "", false
	}
	fe := fieldErrs[0]
	return fe.Field(), describe(fe), true
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "staff_status":
		return fmt.Sprintf("%s must be one of %s, %s, %s", fe.Field(), models.StaffStatusActive, models.StaffStatusOnCall, models.StaffStatusOffline)
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validateStaffStatus(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case models.StaffStatusActive, models.StaffStatusOnCall, models.StaffStatusOffline:
		return true
	default:
		return false
	}
}
