package camera

import (
	"context"

	apperrors "go-cleanup-agent/internal/errors"
)

// NoDevice is a Source for deployments without a camera attached. Every open
// attempt fails with a not-found reason.
type NoDevice struct{}

func (NoDevice) Open(ctx context.Context) (Stream, error) {
	return nil, apperrors.NewCameraUnavailableError(apperrors.CameraReasonNotFound,
		"no camera configured", nil)
}
