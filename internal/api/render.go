package api

import (
	stderrors "errors"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"

	"github.com/victornm/raindrop/internal/errors"
)

type errorBody struct {
	Code    string         `json:"code"`
	Kind    errors.Kind    `json:"kind,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"path", c.FullPath(),
			"error", err,
		)
	}
	_ = c.Error(err)

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": errorBody{
		Code:    codes.Code(e.Code).String(),
		Kind:    e.Kind,
		Message: e.Message,
		Details: e.Details,
	}})
}

// bindError turns a binding failure into a validation error naming the first bad field.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithKind(errors.KindValidation),
			errors.WithMessagef("malformed request: %v", err),
			errors.WithCause(err),
		)
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return errors.Invalid(field, "%s is required", field)
	case "tier":
		return errors.Invalid(field, "%s must be one of advanced, expert: got %q", field, fe.Value())
	case "min", "max", "gte", "lte":
		return errors.Invalid(field, "%s must satisfy %s=%s: got %v", field, fe.Tag(), fe.Param(), fe.Value())
	default:
		return errors.Invalid(field, "%s is invalid (%s)", field, strings.TrimSpace(fe.Tag()+" "+fe.Param()))
	}
}
