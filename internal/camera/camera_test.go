package camera

import (
	"context"
	"image"
	"testing"
	"time"

	apperrors "go-cleanup-agent/internal/errors"
)

// fakeStream is a controllable Stream for session tests
type fakeStream struct {
	frame      image.Image
	ready      chan struct{}
	closeCalls int
}

func newFakeStream(frame image.Image, readyImmediately bool) *fakeStream {
	s := &fakeStream{frame: frame, ready: make(chan struct{})}
	if readyImmediately {
		close(s.ready)
	}
	return s
}

func (s *fakeStream) Frame() (image.Image, bool) {
	if s.frame == nil {
		return nil, false
	}
	return s.frame, true
}

func (s *fakeStream) Ready() <-chan struct{} { return s.ready }

func (s *fakeStream) Close() error {
	s.closeCalls++
	return nil
}

type fakeSource struct {
	stream    *fakeStream
	err       error
	openCalls int
}

func (s *fakeSource) Open(ctx context.Context) (Stream, error) {
	s.openCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.stream, nil
}

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 32, 24))
}

func TestSession_CloseBeforeOpen(t *testing.T) {
	session := NewSession(&fakeSource{stream: newFakeStream(testFrame(), true)}, time.Second)

	// Close with no stream open must not panic and must leave state inactive
	session.Close()
	session.Close()

	if session.Active() {
		t.Error("Expected session to be inactive after close")
	}
}

func TestSession_DoubleClose(t *testing.T) {
	stream := newFakeStream(testFrame(), true)
	session := NewSession(&fakeSource{stream: stream}, time.Second)

	if err := session.Open(context.Background()); err != nil {
		t.Fatalf("Expected open to succeed, got: %v", err)
	}

	session.Close()
	session.Close()

	if stream.closeCalls != 1 {
		t.Errorf("Expected underlying stream closed exactly once, got %d", stream.closeCalls)
	}
	if session.Active() {
		t.Error("Expected session to be inactive after double close")
	}
}

func TestSession_StopBeforeStart(t *testing.T) {
	first := newFakeStream(testFrame(), true)
	source := &fakeSource{stream: first}
	session := NewSession(source, time.Second)

	if err := session.Open(context.Background()); err != nil {
		t.Fatalf("Expected first open to succeed, got: %v", err)
	}

	// Re-opening must stop the previous stream so retries cannot leak it
	second := newFakeStream(testFrame(), true)
	source.stream = second
	if err := session.Open(context.Background()); err != nil {
		t.Fatalf("Expected second open to succeed, got: %v", err)
	}

	if first.closeCalls != 1 {
		t.Errorf("Expected first stream to be stopped on re-open, got %d closes", first.closeCalls)
	}
	if !session.Active() {
		t.Error("Expected session active after re-open")
	}
}

func TestSession_WarmupForcesActive(t *testing.T) {
	// Stream never signals ready; the warmup window must force the active
	// flag so the workflow cannot get stuck
	stream := newFakeStream(nil, false)
	session := NewSession(&fakeSource{stream: stream}, 10*time.Millisecond)

	if err := session.Open(context.Background()); err != nil {
		t.Fatalf("Expected open to succeed, got: %v", err)
	}
	if !session.Active() {
		t.Error("Expected active flag forced after warmup")
	}

	// The forced flag is not a guarantee of a valid frame
	_, err := session.Capture()
	if !apperrors.IsType(err, apperrors.ErrorTypeFrameNotReady) {
		t.Errorf("Expected frame_not_ready, got %v", err)
	}
}

func TestSession_OpenFailure(t *testing.T) {
	wantErr := apperrors.NewCameraUnavailableError(apperrors.CameraReasonBusy,
		"camera is being used by another client", nil)
	session := NewSession(&fakeSource{err: wantErr}, time.Second)

	err := session.Open(context.Background())
	if err == nil {
		t.Fatal("Expected open to fail")
	}
	if apperrors.Reason(err) != apperrors.CameraReasonBusy {
		t.Errorf("Expected busy reason, got %q", apperrors.Reason(err))
	}
	if session.Active() {
		t.Error("Expected session inactive after failed open")
	}
}

func TestSession_Capture(t *testing.T) {
	session := NewSession(&fakeSource{stream: newFakeStream(testFrame(), true)}, time.Second)

	if _, err := session.Capture(); err == nil {
		t.Error("Expected capture to fail before open")
	}

	if err := session.Open(context.Background()); err != nil {
		t.Fatalf("Expected open to succeed, got: %v", err)
	}

	frame, err := session.Capture()
	if err != nil {
		t.Fatalf("Expected capture to succeed, got: %v", err)
	}
	if frame.Bounds().Dx() != 32 || frame.Bounds().Dy() != 24 {
		t.Errorf("Expected 32x24 frame, got %v", frame.Bounds())
	}
}

func TestSession_ZeroDimensionFrame(t *testing.T) {
	stream := newFakeStream(image.NewRGBA(image.Rect(0, 0, 0, 0)), true)
	session := NewSession(&fakeSource{stream: stream}, time.Second)

	if err := session.Open(context.Background()); err != nil {
		t.Fatalf("Expected open to succeed, got: %v", err)
	}

	_, err := session.Capture()
	if !apperrors.IsType(err, apperrors.ErrorTypeFrameNotReady) {
		t.Errorf("Expected frame_not_ready for zero-dimension frame, got %v", err)
	}
}
