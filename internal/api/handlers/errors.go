package handlers

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/wms-platform/scanner-service/internal/application"
	"github.com/wms-platform/scanner-service/internal/domain"
	"github.com/wms-platform/scanner-service/pkg/errors"
)

// toAppError maps orchestrator and domain errors to API errors.
func toAppError(err error, sessionID string) *errors.AppError {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}

	var intentErr *application.IntentError
	switch {
	case stderrors.As(err, &intentErr):
		return errors.ErrIntentNotApplicable(string(intentErr.Intent), string(intentErr.Phase))
	case stderrors.Is(err, application.ErrSessionNotFound), stderrors.Is(err, application.ErrSessionClosed):
		return errors.ErrSessionNotFound(sessionID)
	case stderrors.Is(err, application.ErrSuperseded):
		return errors.ErrSuperseded()
	case stderrors.Is(err, domain.ErrUnknownOperation):
		return errors.NewAppError(errors.CodeUnsupportedOperation, err.Error(), http.StatusBadRequest).Wrap(err)
	case stderrors.Is(err, domain.ErrInvalidBarcode), stderrors.Is(err, application.ErrInvalidInput):
		return errors.ErrValidation(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrIllegalTransition):
		return errors.ErrIllegalTransition(err.Error()).Wrap(err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrTimeout("scanner request").Wrap(err)
	default:
		return errors.ErrInternal("").Wrap(err)
	}
}
