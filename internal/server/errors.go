package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/jmylchreest/feedhue/internal/colour"
	"github.com/jmylchreest/feedhue/internal/download"
	"github.com/jmylchreest/feedhue/internal/metrics"
	"github.com/jmylchreest/feedhue/internal/pipeline"
	"github.com/jmylchreest/feedhue/internal/security"
	"github.com/jmylchreest/feedhue/internal/source"
)

// Messages shown to users.
const (
	msgUsernameRequired = "username required"
	msgInvalidUsername  = "that doesn't look like a valid username"
	msgInvalidRange     = "invalid date range"
	msgNotFound         = "profile not found"
	msgPrivate          = "that profile is private"
	msgNoImages         = "no images were posted in that date range"
	msgTooFewColours    = "not enough image data to build a palette, try a wider date range"
	msgTimeout          = "the request took too long, try a shorter date range"
	msgInternal         = "something went wrong, please try again"
)

// failure describes how an error is reported to the client.
type failure struct {
	status  int
	message string
	outcome string
}

func classify(err error) failure {
	switch {
	case errors.Is(err, security.ErrInvalidUsername):
		return failure{http.StatusBadRequest, msgInvalidUsername, metrics.OutcomeInvalid}
	case errors.Is(err, download.ErrInvalidRange):
		return failure{http.StatusBadRequest, msgInvalidRange, metrics.OutcomeInvalid}
	case errors.Is(err, source.ErrProfileNotFound):
		return failure{http.StatusNotFound, msgNotFound, metrics.OutcomeNotFound}
	case errors.Is(err, source.ErrPrivateProfile):
		return failure{http.StatusUnprocessableEntity, msgPrivate, metrics.OutcomeNotFound}
	case errors.Is(err, pipeline.ErrNoImages), errors.Is(err, colour.ErrEmptyImageSet):
		return failure{http.StatusUnprocessableEntity, msgNoImages, metrics.OutcomeNoImages}
	case errors.Is(err, colour.ErrInsufficientPooledSamples), errors.Is(err, colour.ErrInsufficientSamples):
		return failure{http.StatusUnprocessableEntity, msgTooFewColours, metrics.OutcomeNoImages}
	case errors.Is(err, context.DeadlineExceeded):
		return failure{http.StatusGatewayTimeout, msgTimeout, metrics.OutcomeError}
	default:
		return failure{http.StatusInternalServerError, msgInternal, metrics.OutcomeError}
	}
}
