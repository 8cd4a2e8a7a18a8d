package handlers

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 \-]{6,19}$`)

// NewValidator returns a validator with the library's custom tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	// phone: optional leading +, then digits, spaces or dashes
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}
