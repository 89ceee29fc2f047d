package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/nulzo/capability-router/internal/core/domain"
)

// trans is a private global translator
var trans ut.Translator

// InitValidator configures gin's validator engine with json field names,
// the domain tags and English messages.
func InitValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		domain.RegisterValidations(v)

		en := en.New()
		uni := ut.New(en, en)
		trans, _ = uni.GetTranslator("en")

		_ = en_translations.RegisterDefaultTranslations(v, trans)
		_ = v.RegisterTranslation("capability", trans,
			func(ut ut.Translator) error {
				return ut.Add("capability", "{0} must be a known capability", true)
			},
			func(ut ut.Translator, fe validator.FieldError) string {
				t, _ := ut.T("capability", fe.Field())
				return t
			},
		)
	}
}

// ParseValidationError converts raw technical errors into a clean map.
// When defined, nested errors can be resolved into their heirarchical naming.
func ParseValidationError(err error) map[string]string {
	errMap := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			ns := e.Namespace()

			if i := strings.Index(ns, "."); i != -1 {
				ns = ns[i+1:]
			}

			msg := e.Translate(trans)

			if e.Tag() == "oneof" {
				msg = fmt.Sprintf("must be one of [%s]", strings.ReplaceAll(e.Param(), " ", ", "))
			}

			errMap[ns] = msg
		}
		return errMap
	}

	errMap["body"] = "Invalid request body format. Please fix your payload."
	return errMap
}
