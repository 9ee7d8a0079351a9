package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodePermissionDenied   = Code(codes.PermissionDenied)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeResourceExhausted  = Code(codes.ResourceExhausted)
	CodeInternal           = Code(codes.Internal)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodePermissionDenied:   http.StatusForbidden,
	CodeFailedPrecondition: http.StatusConflict,
	CodeResourceExhausted:  http.StatusUnprocessableEntity,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
}

// Kind tells callers precisely which rule was violated, independent of the transport code.
type Kind string

const (
	KindUnknown                  Kind = ""
	KindValidation               Kind = "Validation"
	KindNotFound                 Kind = "NotFound"
	KindForbidden                Kind = "Forbidden"
	KindInvalidParty             Kind = "InvalidParty"
	KindGradeMismatch            Kind = "GradeMismatch"
	KindDifficultyLocked         Kind = "DifficultyLocked"
	KindInsufficientCurrency     Kind = "InsufficientCurrency"
	KindDuplicateChallenge       Kind = "DuplicateChallenge"
	KindInsufficientQuestionPool Kind = "InsufficientQuestionPool"
	KindNotChallengedParty       Kind = "NotChallengedParty"
	KindNotChallenger            Kind = "NotChallenger"
	KindNotPending               Kind = "NotPending"
	KindChallengeExpired         Kind = "ChallengeExpired"
	KindSessionNotInProgress     Kind = "SessionNotInProgress"
	KindNotParticipant           Kind = "NotParticipant"
	KindInvalidQuestionOrder     Kind = "InvalidQuestionOrder"
	KindAlreadyAnswered          Kind = "AlreadyAnswered"
	KindInvalidStatus            Kind = "InvalidStatus"
)

type Error struct {
	Code    Code           `json:"code"`
	Kind    Kind           `json:"kind,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.Kind != KindUnknown {
		s += fmt.Sprintf(", kind: %s", e.Kind)
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, errors.New(code, errors.WithKind(k))) works across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind != KindUnknown && t.Kind == e.Kind
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// KindOf returns the kind of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return KindUnknown
	}

	return e.Kind
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, WithKind(KindNotFound), WithMessagef(format, args...))
}

func Invalid(field, format string, args ...any) *Error {
	return New(CodeInvalidArgument,
		WithKind(KindValidation),
		WithMessagef(format, args...),
		WithDetail("field", field),
	)
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithKind(k Kind) Option {
	return optionFunc(func(e *Error) {
		e.Kind = k
	})
}

// WithDetail attaches a structured value the client can render, e.g. the missing currency amount.
func WithDetail(key string, value any) Option {
	return optionFunc(func(e *Error) {
		if e.Details == nil {
			e.Details = make(map[string]any)
		}
		e.Details[key] = value
	})
}
