package validator

import (
	"errors"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Protocol string `json:"protocol_type" binding:"required,oneof=openai anthropic"`
	Timeout  int    `json:"timeout_ms" binding:"gt=0"`
	Cap      string `json:"capability" binding:"capability"`
}

func TestParseValidationError(t *testing.T) {
	InitValidator()

	err := binding.Validator.ValidateStruct(sample{Protocol: "grpc", Cap: "telepathy"})
	require.Error(t, err)

	errs := ParseValidationError(err)
	assert.Equal(t, "must be one of [openai, anthropic]", errs["protocol_type"])
	assert.Contains(t, errs["timeout_ms"], "timeout_ms")
	assert.Equal(t, "capability must be a known capability", errs["capability"])
}

func TestParseValidationError_NonValidation(t *testing.T) {
	errs := ParseValidationError(errors.New("unexpected EOF"))
	assert.Equal(t, map[string]string{"body": "Invalid request body format. Please fix your payload."}, errs)

	var verrs validator.ValidationErrors
	assert.False(t, errors.As(errors.New("x"), &verrs))
}
