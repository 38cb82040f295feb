package api

import (
	"errors"
	"net/http"

	"github.com/xraph/forge"

	dispatch "github.com/hookline/dispatch"
	"github.com/hookline/dispatch/subscription"
)

// mapError converts dispatch sentinel errors to Forge HTTP errors.
func mapError(err error) error {
	var verr *subscription.ValidationError

	switch {
	case errors.Is(err, dispatch.ErrSubscriptionNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, dispatch.ErrWebhookNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, dispatch.ErrAttemptNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, dispatch.ErrSubscriptionInactive):
		return forge.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrUnknownEventType):
		return forge.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrMalformedPayload):
		return forge.BadRequest(err.Error())
	case errors.As(err, &verr):
		return forge.BadRequest(err.Error())
	case errors.Is(err, dispatch.ErrNoStore):
		return forge.InternalError(err)
	case errors.Is(err, dispatch.ErrStoreClosed):
		return forge.InternalError(err)
	case errors.Is(err, dispatch.ErrMigrationFailed):
		return forge.InternalError(err)
	default:
		return forge.InternalError(err)
	}
}
