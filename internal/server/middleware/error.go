package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	govalidator "github.com/go-playground/validator/v10"
	"github.com/nulzo/capability-router/internal/gateway"
	"github.com/nulzo/capability-router/internal/policy"
	"github.com/nulzo/capability-router/internal/server/validator"
	"github.com/nulzo/capability-router/internal/store/cache"
	"github.com/nulzo/capability-router/pkg/api"
	"go.uber.org/zap"
)

// ErrorHandler renders the last handler error as an RFC 9457 problem.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		problem := ToProblem(c.Errors.Last().Err)
		if problem.Log != nil {
			logger.Error("Internal error",
				zap.String("path", c.Request.URL.Path),
				zap.Error(problem.Log),
			)
		}

		c.JSON(problem.Status, problem)
		c.Abort()
	}
}

// ToProblem maps domain errors onto HTTP problems. Configuration errors are
// conflicts, exhausted chains are bad gateways.
func ToProblem(err error) *api.Problem {
	var (
		problem   *api.Problem
		exhausted *gateway.ExhaustedError
		resErr    *policy.TemplateResolutionError
		verrs     govalidator.ValidationErrors
	)

	switch {
	case errors.As(err, &problem):
		return problem

	case errors.As(err, &exhausted):
		trace := make([]api.AttemptView, len(exhausted.Trace))
		for i, a := range exhausted.Trace {
			trace[i] = api.AttemptViewFrom(a)
		}
		return api.BadGatewayError(err.Error(),
			api.WithType("/problems/all-providers-exhausted"),
			api.WithExtension("last_error_kind", exhausted.LastErrorKind()),
			api.WithExtension("attempts", trace),
		)

	case errors.Is(err, gateway.ErrPolicyUnavailable):
		return api.ConflictError(err.Error(), api.WithType("/problems/policy-unavailable"))

	case errors.Is(err, gateway.ErrNoEligibleProvider):
		return api.ConflictError(err.Error(), api.WithType("/problems/no-eligible-provider"))

	case errors.As(err, &resErr):
		return api.UnprocessableError(err.Error(),
			api.WithType("/problems/template-resolution"),
			api.WithExtension("missing_requirement_keys", resErr.Missing),
		)

	case errors.Is(err, policy.ErrVersionConflict):
		return api.ConflictError(err.Error(), api.WithType("/problems/version-conflict"))

	case errors.Is(err, gateway.ErrProviderExists):
		return api.ConflictError(err.Error())

	case errors.Is(err, gateway.ErrProviderNotFound),
		errors.Is(err, policy.ErrPolicyNotFound),
		errors.Is(err, policy.ErrTemplateNotFound),
		errors.Is(err, cache.ErrCacheMiss):
		return api.NotFoundError(err.Error())

	case errors.As(err, &verrs):
		return api.ValidationError(validator.ParseValidationError(verrs))
	}

	return api.NewError(http.StatusInternalServerError, "Internal Server Error",
		"An unexpected error occurred.", api.WithLog(fmt.Errorf("unhandled: %w", err)))
}
