package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-cleanup-agent/internal/api"
	"go-cleanup-agent/internal/camera"
	"go-cleanup-agent/internal/capture"
	apperrors "go-cleanup-agent/internal/errors"
	"go-cleanup-agent/internal/location"
	"go-cleanup-agent/internal/logger"
	"go-cleanup-agent/internal/observer"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ReportingBackend is the slice of the platform API the reporting workflow
// consumes.
type ReportingBackend interface {
	VerifyImage(ctx context.Context, imageBase64 string) (*api.GarbageVerdict, error)
	UploadImage(ctx context.Context, imageBase64 string) (*api.UploadResult, error)
	DeleteImage(ctx context.Context, publicID string) error
	CheckDuplicateLocation(ctx context.Context, latitude, longitude, radiusMeters float64) (*api.DuplicateCheck, error)
	CreateReport(ctx context.Context, req api.ReportRequest) error
}

// ReportConfig carries the reporting workflow policy values.
type ReportConfig struct {
	DuplicateRadiusM float64
	LocationTimeout  time.Duration
	Encode           capture.Options
}

// ReportDeps are the injectable collaborators of a report session.
type ReportDeps struct {
	Location location.Provider
	Camera   *camera.Session
	Backend  ReportingBackend
	Events   *observer.Dispatcher
}

// ReportSession runs the new-report workflow: fix a location, capture a
// photo, have it remotely screened for garbage, upload it, and file the
// report. It reuses the cleanup state machine; since a report has no target
// coordinates there is no proximity gate and any position fix moves the
// session to ready.
type ReportSession struct {
	id   string
	op   Operator
	cfg  ReportConfig
	deps ReportDeps
	log  *logrus.Entry

	mu        sync.Mutex
	closed    bool
	state     State
	wasteType WasteType
	position  *location.Location
	image     *capture.Encoded
	upload    *api.UploadResult
	verdict   *VerificationResult
	statusMsg string
}

// NewReportSession creates a session for reporting waste of the given type.
func NewReportSession(wasteType WasteType, operator Operator, deps ReportDeps, cfg ReportConfig) (*ReportSession, error) {
	if !wasteType.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown waste type %q", wasteType), nil)
	}
	id := uuid.NewString()
	s := &ReportSession{
		id:        id,
		op:        operator,
		cfg:       cfg,
		deps:      deps,
		state:     StateIdle,
		wasteType: wasteType,
		log: logger.ForComponent("workflow").WithFields(logrus.Fields{
			"session_id": id,
			"waste_type": wasteType,
		}),
	}
	deps.Events.Notify(observer.WorkflowEvent{
		EventType: observer.SessionCreated,
		SessionID: id,
		Metadata:  map[string]interface{}{"waste_type": string(wasteType)},
	})
	return s, nil
}

// ID returns the session identifier.
func (s *ReportSession) ID() string { return s.id }

// apply runs the pure transition and performs its effects. Caller must hold
// s.mu. Discarding the capture also drops any upload associated with it; the
// remote copy is deleted best-effort by the caller before applying.
func (s *ReportSession) apply(event Event) error {
	next, effects, err := Transition(s.state, event)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"event": event,
		"from":  s.state,
		"to":    next,
	}).Debug("Workflow transition")
	s.state = next
	for _, effect := range effects {
		switch effect {
		case EffectCloseCamera:
			s.deps.Camera.Close()
		case EffectDiscardCapture:
			s.image = nil
			s.upload = nil
		case EffectDiscardVerdict:
			s.verdict = nil
		}
	}
	return nil
}

// AcquireLocation reads the reporter's position. Every successful fix moves
// the session to ready; failures leave it idle for a retry.
func (s *ReportSession) AcquireLocation(ctx context.Context) (*location.Location, error) {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.apply(EventLocationRequested); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	provider := s.deps.Location
	s.mu.Unlock()

	var loc *location.Location
	var err error
	if provider == nil {
		err = apperrors.NewLocationUnavailableError("no location capability configured", nil)
	} else {
		locCtx, cancel := context.WithTimeout(ctx, s.cfg.LocationTimeout)
		loc, err = provider.Current(locCtx)
		cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apperrors.NewInvalidTransitionError("session is closed")
	}
	if err != nil {
		s.apply(EventLocationFailed)
		s.statusMsg = "Failed to get location. Please enable GPS."
		s.notify(observer.LocationDenied, err.Error(), nil)
		return nil, err
	}
	return s.acceptLocked(loc)
}

// SubmitLocation accepts a reporter-supplied position sample.
func (s *ReportSession) SubmitLocation(loc location.Location) (*location.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardLocked(); err != nil {
		return nil, err
	}
	if err := s.apply(EventLocationRequested); err != nil {
		return nil, err
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now().UTC()
	}
	return s.acceptLocked(&loc)
}

func (s *ReportSession) acceptLocked(loc *location.Location) (*location.Location, error) {
	s.position = loc
	s.apply(EventProximityPassed)
	s.statusMsg = ""
	s.notify(observer.LocationAcquired, "", map[string]interface{}{
		"accuracy_m": loc.AccuracyMeters,
	})
	return loc, nil
}

// OpenCamera acquires the camera stream.
func (s *ReportSession) OpenCamera(ctx context.Context) error {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.apply(EventCameraRequested); err != nil {
		s.mu.Unlock()
		return err
	}
	cam := s.deps.Camera
	s.mu.Unlock()

	err := cam.Open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		cam.Close()
		return apperrors.NewInvalidTransitionError("session is closed")
	}
	if err != nil {
		s.apply(EventCameraFailed)
		s.statusMsg = cameraMessage(err)
		s.notify(observer.CameraFailed, s.statusMsg, nil)
		return err
	}
	s.apply(EventCameraOpened)
	s.statusMsg = ""
	s.notify(observer.CameraOpened, "", nil)
	return nil
}

// CaptureAndVerify captures the current frame, closes the camera, screens
// the image for garbage remotely and uploads it on a positive verdict. A
// negative verdict or a failed screening discards the capture; the reporter
// reopens the camera to try again.
func (s *ReportSession) CaptureAndVerify(ctx context.Context) (*VerificationResult, error) {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.state != StateCameraActive {
		s.mu.Unlock()
		return nil, apperrors.NewInvalidTransitionError(
			fmt.Sprintf("cannot capture in state %s", s.state))
	}

	frame, err := s.deps.Camera.Capture()
	if err != nil {
		s.statusMsg = "Camera not ready. Please try again."
		s.mu.Unlock()
		return nil, err
	}
	if err := capture.CheckFrame(frame, capture.DefaultQualityThresholds()); err != nil {
		s.statusMsg = apperrors.Message(err)
		s.mu.Unlock()
		return nil, err
	}
	encoded, err := capture.EncodeFrame(frame, s.cfg.Encode)
	if err != nil {
		s.statusMsg = "Failed to capture image. Please try again."
		s.mu.Unlock()
		return nil, err
	}

	s.image = encoded
	s.apply(EventFrameCaptured)
	s.mu.Unlock()

	verdict, err := s.deps.Backend.VerifyImage(ctx, encoded.DataURL())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperrors.NewInvalidTransitionError("session is closed")
	}
	if err != nil {
		s.apply(EventVerdictNegative)
		s.statusMsg = "Image verification failed: " + err.Error()
		s.notify(observer.CaptureRejected, s.statusMsg, nil)
		s.mu.Unlock()
		return nil, err
	}
	if !verdict.IsGarbage {
		s.apply(EventVerdictNegative)
		if verdict.Message != "" {
			s.statusMsg = verdict.Message
		} else {
			s.statusMsg = "No garbage detected in the image. Please retake."
		}
		s.notify(observer.CaptureRejected, s.statusMsg, nil)
		msg := s.statusMsg
		s.mu.Unlock()
		return &VerificationResult{Verdict: false, Message: msg}, nil
	}
	s.mu.Unlock()

	upload, err := s.deps.Backend.UploadImage(ctx, encoded.DataURL())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apperrors.NewInvalidTransitionError("session is closed")
	}
	if err != nil {
		s.apply(EventVerdictNegative)
		s.statusMsg = "Image upload failed: " + err.Error()
		s.notify(observer.CaptureRejected, s.statusMsg, nil)
		return nil, err
	}

	s.upload = upload
	s.verdict = &VerificationResult{Verdict: true, Message: verdict.Message}
	s.apply(EventVerdictPositive)
	s.statusMsg = ""
	s.notify(observer.CaptureVerified, verdict.Message, map[string]interface{}{
		"image_bytes": len(encoded.Data),
		"public_id":   upload.PublicID,
	})
	return s.verdict, nil
}

// Retake discards the verified image and reopens the camera. The uploaded
// copy is deleted best-effort before the capture is dropped.
func (s *ReportSession) Retake(ctx context.Context) error {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.state != StateVerifiedPositive {
		s.mu.Unlock()
		return apperrors.NewInvalidTransitionError(
			fmt.Sprintf("cannot retake in state %s", s.state))
	}
	upload := s.upload
	s.mu.Unlock()

	if upload != nil {
		if err := s.deps.Backend.DeleteImage(ctx, upload.PublicID); err != nil {
			s.log.WithError(err).Warn("Failed to delete replaced upload")
		}
	}

	return s.OpenCameraAfterRetake(ctx)
}

// OpenCameraAfterRetake applies the re-capture transition and opens the
// camera.
func (s *ReportSession) OpenCameraAfterRetake(ctx context.Context) error {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.apply(EventCameraRequested); err != nil {
		s.mu.Unlock()
		return err
	}
	cam := s.deps.Camera
	s.mu.Unlock()

	err := cam.Open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		cam.Close()
		return apperrors.NewInvalidTransitionError("session is closed")
	}
	if err != nil {
		s.apply(EventCameraFailed)
		s.statusMsg = cameraMessage(err)
		s.notify(observer.CameraFailed, s.statusMsg, nil)
		return err
	}
	s.apply(EventCameraOpened)
	s.statusMsg = ""
	s.notify(observer.CameraOpened, "", nil)
	return nil
}

// Submit files the report. The location is first checked for an existing
// nearby report; a duplicate is a retryable failure. On duplicate or backend
// failure the session stays in verified_positive with the image and upload
// intact, so the reporter can retry or retake.
func (s *ReportSession) Submit(ctx context.Context) error {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.apply(EventSubmitRequested); err != nil {
		s.mu.Unlock()
		return err
	}
	pos := s.position
	upload := s.upload
	s.mu.Unlock()

	dup, err := s.deps.Backend.CheckDuplicateLocation(ctx, pos.Latitude, pos.Longitude, s.cfg.DuplicateRadiusM)
	if err == nil && dup.IsDuplicate {
		err = apperrors.NewValidationError("This location already reported. Please try another area.", nil)
	}
	if err == nil {
		err = s.deps.Backend.CreateReport(ctx, api.ReportRequest{
			Latitude:      pos.Latitude,
			Longitude:     pos.Longitude,
			WasteType:     string(s.wasteType),
			ImageURL:      upload.URL,
			ImagePublicID: upload.PublicID,
			UserID:        s.op.ID,
			UserName:      s.op.Name,
			UserType:      s.op.Type,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.NewInvalidTransitionError("session is closed")
	}
	if err != nil {
		s.apply(EventSubmitFailed)
		s.statusMsg = apperrors.Message(err)
		s.notify(observer.SubmitFailed, s.statusMsg, nil)
		return err
	}
	s.apply(EventSubmitSucceeded)
	s.statusMsg = "Report submitted successfully."
	s.notify(observer.Submitted, s.statusMsg, nil)
	return nil
}

// Close tears the session down and releases the camera.
func (s *ReportSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.deps.Camera.Close()
	s.notify(observer.SessionClosed, "", nil)
}

func (s *ReportSession) guardLocked() error {
	if s.closed {
		return apperrors.NewInvalidTransitionError("session is closed")
	}
	return nil
}

func (s *ReportSession) notify(eventType observer.EventType, message string, metadata map[string]interface{}) {
	s.deps.Events.Notify(observer.WorkflowEvent{
		EventType: eventType,
		SessionID: s.id,
		Message:   message,
		Metadata:  metadata,
	})
}

// ReportSnapshot is a read-only view of the session for the control API.
type ReportSnapshot struct {
	ID        string              `json:"id"`
	State     State               `json:"state"`
	WasteType WasteType           `json:"waste_type"`
	Position  *location.Location  `json:"position,omitempty"`
	ImageURL  string              `json:"image_url,omitempty"`
	Verdict   *VerificationResult `json:"verdict,omitempty"`
	Message   string              `json:"message,omitempty"`
}

// Snapshot returns the current view of the session.
func (s *ReportSession) Snapshot() ReportSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := ReportSnapshot{
		ID:        s.id,
		State:     s.state,
		WasteType: s.wasteType,
		Message:   s.statusMsg,
	}
	if s.position != nil {
		pos := *s.position
		snap.Position = &pos
	}
	if s.upload != nil {
		snap.ImageURL = s.upload.URL
	}
	if s.verdict != nil {
		verdict := *s.verdict
		snap.Verdict = &verdict
	}
	return snap
}
