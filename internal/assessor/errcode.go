package assessor

import (
	"context"
	"errors"

	"github.com/programme-lv/assessor/api"
	"github.com/programme-lv/assessor/internal/domain"
	"github.com/programme-lv/assessor/internal/runner"
)

// Error codes shared by the transports.
const (
	CodeBadRequest         = "bad_request"
	CodeNotFound           = "not_found"
	CodeInvalidTransition  = "invalid_state_transition"
	CodeGradingUnavailable = "grading_unavailable"
	CodeGradingCancelled   = "grading_cancelled"
	CodeTimeout            = "timeout"
	CodeInternal           = "internal"
)

// ErrorCode classifies an error returned by the service.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, runner.ErrUnknownLanguage):
		return CodeBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrInvalidStateTransition), errors.Is(err, domain.ErrDuplicateAttempt):
		return CodeInvalidTransition
	case errors.Is(err, ErrGradingUnavailable):
		return CodeGradingUnavailable
	case errors.Is(err, ErrGradingCancelled):
		return CodeGradingCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	}
	return CodeInternal
}

// ErrorResponse builds the wire error for err. Internal errors are not
// described to clients.
func ErrorResponse(err error) api.ErrorResponse {
	code := ErrorCode(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return api.ErrorResponse{Error: msg, Code: code}
}
