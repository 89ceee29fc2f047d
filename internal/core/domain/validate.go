package domain

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterValidations installs the domain-specific tags on v and reports
// field names by their json tag.
func RegisterValidations(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("capability", func(fl validator.FieldLevel) bool {
		return Capability(fl.Field().String()).Valid()
	})
}

// NewValidator returns a validator with the domain tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	RegisterValidations(v)
	return v
}
