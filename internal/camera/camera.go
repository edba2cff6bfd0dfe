package camera

import (
	"context"
	"image"
	"sync"
	"time"

	apperrors "go-cleanup-agent/internal/errors"
	"go-cleanup-agent/internal/logger"
)

// Stream is a live video capability. Ready is closed once the stream has
// produced a first usable frame; Frame returns the most recent frame.
type Stream interface {
	Frame() (image.Image, bool)
	Ready() <-chan struct{}
	Close() error
}

// Source opens streams. Implementations map device failures onto the
// CameraUnavailable taxonomy (permission, not-found, busy, other).
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Session owns at most one open stream at a time and guarantees it is
// released on every exit path.
type Session struct {
	source Source
	warmup time.Duration

	mu     sync.Mutex
	stream Stream
	active bool
}

// NewSession creates a camera session over the given source. warmup bounds
// how long Open waits for a first frame before forcing the active flag; the
// stream may still not have produced a frame by then, in which case Capture
// reports FrameNotReady.
func NewSession(source Source, warmup time.Duration) *Session {
	if warmup <= 0 {
		warmup = time.Second
	}
	return &Session{source: source, warmup: warmup}
}

// Open acquires a stream. Any previously open stream is stopped first, so a
// retry can never leak a device handle.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stop-before-start
	s.closeLocked()

	if s.source == nil {
		return apperrors.NewCameraUnavailableError(apperrors.CameraReasonNotFound,
			"no camera source configured", nil)
	}

	stream, err := s.source.Open(ctx)
	if err != nil {
		return err
	}
	s.stream = stream

	// Wait for the first frame, but force the active flag after the warmup
	// window so a device with missing metadata cannot wedge the workflow.
	select {
	case <-stream.Ready():
	case <-time.After(s.warmup):
		logger.ForComponent("camera").Warn("No frame within warmup window, forcing active")
	case <-ctx.Done():
		s.closeLocked()
		return apperrors.NewCameraUnavailableError(apperrors.CameraReasonOther,
			"camera open canceled", ctx.Err())
	}

	s.active = true
	return nil
}

// Close stops the current stream. Idempotent: safe to call before any open
// and safe to call repeatedly.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			logger.ForComponent("camera").WithError(err).Warn("Error closing camera stream")
		}
		s.stream = nil
	}
	s.active = false
}

// Active reports whether the session currently holds a usable stream.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Capture returns the current frame. Fails with FrameNotReady if the stream
// has not produced a frame yet or the frame has zero dimensions.
func (s *Session) Capture() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.stream == nil {
		return nil, apperrors.NewCameraUnavailableError(apperrors.CameraReasonOther,
			"camera is not open", nil)
	}

	frame, ok := s.stream.Frame()
	if !ok || frame == nil {
		return nil, apperrors.NewFrameNotReadyError("camera not fully loaded, try again")
	}
	bounds := frame.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, apperrors.NewFrameNotReadyError("camera not fully loaded, try again")
	}
	return frame, nil
}
