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
	"go-cleanup-agent/internal/geo"
	"go-cleanup-agent/internal/location"
	"go-cleanup-agent/internal/logger"
	"go-cleanup-agent/internal/observer"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CleaningBackend is the slice of the platform API the cleanup workflow
// consumes.
type CleaningBackend interface {
	VerifyCleaning(ctx context.Context, req api.CleaningRequest) (*api.CleaningVerdict, error)
	MarkCleaned(ctx context.Context, req api.CleaningRequest) (*api.CleanupReceipt, error)
}

// Archiver is an optional sink for captured evidence images.
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) error
}

// CleanupConfig carries the workflow policy values.
type CleanupConfig struct {
	ProximityThresholdM float64
	LocationTimeout     time.Duration
	Encode              capture.Options
}

// CleanupDeps are the injectable collaborators of a cleanup session. The
// location provider and archiver may be nil (capability absent / archiving
// disabled); the camera session and backend are required.
type CleanupDeps struct {
	Location location.Provider
	Camera   *camera.Session
	Backend  CleaningBackend
	Archiver Archiver
	Events   *observer.Dispatcher
}

// CleanupSession is one run of the cleanup-verification state machine,
// scoped to a single task attempt. All operations are serialized; external
// results arriving after Close are ignored.
type CleanupSession struct {
	id       string
	operator Operator
	cfg      CleanupConfig
	deps     CleanupDeps
	log      *logrus.Entry

	mu           sync.Mutex
	closed       bool
	task         CleanupTask
	state        State
	lastLocation *location.Location
	proximity    *geo.ProximityCheck
	afterImage   *capture.Encoded
	verdict      *VerificationResult
	receipt      *api.CleanupReceipt
	statusMsg    string
}

// NewCleanupSession creates a session for the given task.
func NewCleanupSession(task CleanupTask, operator Operator, deps CleanupDeps, cfg CleanupConfig) *CleanupSession {
	id := uuid.NewString()
	s := &CleanupSession{
		id:       id,
		operator: operator,
		cfg:      cfg,
		deps:     deps,
		task:     task,
		state:    StateIdle,
		log: logger.ForComponent("workflow").WithFields(logrus.Fields{
			"session_id": id,
			"report_id":  task.ID,
		}),
	}
	deps.Events.Notify(observer.WorkflowEvent{
		EventType: observer.SessionCreated,
		SessionID: id,
		ReportID:  task.ID,
	})
	return s
}

// ID returns the session identifier.
func (s *CleanupSession) ID() string { return s.id }

// apply runs the pure transition for the event and performs its effects.
// Caller must hold s.mu.
func (s *CleanupSession) apply(event Event) error {
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
			s.afterImage = nil
		case EffectDiscardVerdict:
			s.verdict = nil
		}
	}
	return nil
}

// AcquireLocation performs the one-shot location read and proximity gate.
// Re-checking from out_of_range is this same operation, operator triggered.
func (s *CleanupSession) AcquireLocation(ctx context.Context) (*geo.ProximityCheck, error) {
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
		// The session was torn down while the read was in flight
		return nil, apperrors.NewInvalidTransitionError("session is closed")
	}
	if err != nil {
		s.apply(EventLocationFailed)
		s.statusMsg = "Failed to get location. Please enable GPS."
		s.notify(observer.LocationDenied, err.Error(), nil)
		return nil, err
	}
	return s.gateLocked(loc)
}

// SubmitLocation gates an operator-supplied position sample, for deployments
// where the operator's device pushes coordinates instead of the agent
// reading a GPS source.
func (s *CleanupSession) SubmitLocation(loc location.Location) (*geo.ProximityCheck, error) {
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
	return s.gateLocked(&loc)
}

// gateLocked replaces the held location sample and runs the proximity
// check. Caller must hold s.mu with state location_pending.
func (s *CleanupSession) gateLocked(loc *location.Location) (*geo.ProximityCheck, error) {
	s.lastLocation = loc

	check := geo.CheckProximity(
		geo.Point{Latitude: s.task.Latitude, Longitude: s.task.Longitude},
		geo.Point{Latitude: loc.Latitude, Longitude: loc.Longitude},
		s.cfg.ProximityThresholdM,
	)
	s.proximity = &check

	if !check.WithinRange {
		s.apply(EventProximityFailed)
		s.statusMsg = fmt.Sprintf("You are %.0fm from the reported location; move within %.0fm and re-check.",
			check.DistanceMeters, check.ThresholdMeters)
		s.notify(observer.ProximityBlocked, s.statusMsg, map[string]interface{}{
			"distance_m": check.DistanceMeters,
		})
		return &check, nil
	}

	s.apply(EventProximityPassed)
	s.statusMsg = ""
	s.notify(observer.LocationAcquired, "", map[string]interface{}{
		"distance_m": check.DistanceMeters,
		"accuracy_m": loc.AccuracyMeters,
	})
	return &check, nil
}

// OpenCamera acquires the camera stream. Blocked while out of range.
func (s *CleanupSession) OpenCamera(ctx context.Context) error {
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

// cameraMessage renders a reason-specific operator message.
func cameraMessage(err error) string {
	switch apperrors.Reason(err) {
	case apperrors.CameraReasonPermission:
		return "Camera permission denied. Please allow camera access."
	case apperrors.CameraReasonNotFound:
		return "No camera found on this device."
	case apperrors.CameraReasonBusy:
		return "Camera is being used by another app."
	default:
		return "Cannot access camera. " + err.Error()
	}
}

// CaptureAndVerify captures the current frame, closes the camera, and sends
// the before/after pair for remote verification. A negative verdict and a
// failed call are treated the same way: the capture is discarded and the
// workflow returns to ready. The state machine serializes attempts - a
// second capture is rejected until the first verification settles.
func (s *CleanupSession) CaptureAndVerify(ctx context.Context) (*VerificationResult, error) {
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
		// FrameNotReady is transient: surface it without a state change
		s.statusMsg = "Camera not ready. Please try again."
		s.mu.Unlock()
		return nil, err
	}
	if err := capture.CheckFrame(frame, capture.DefaultQualityThresholds()); err != nil {
		// Unusable frame; the camera stays active for another attempt
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

	s.afterImage = encoded
	s.apply(EventFrameCaptured) // enters verifying, closes the camera

	req := api.CleaningRequest{
		ReportID:          s.task.ID,
		BeforeImageBase64: s.task.BeforeImageRef,
		AfterImageBase64:  encoded.DataURL(),
		UserID:            s.operator.ID,
		UserName:          s.operator.Name,
		UserType:          s.operator.Type,
	}
	s.mu.Unlock()

	verdict, err := s.deps.Backend.VerifyCleaning(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apperrors.NewInvalidTransitionError("session is closed")
	}
	if err != nil {
		// Don't assume success on a failed call; the operator re-captures
		s.apply(EventVerdictNegative)
		s.statusMsg = "Verification failed: " + err.Error()
		s.notify(observer.CaptureRejected, s.statusMsg, nil)
		return nil, err
	}
	if !verdict.IsCleaned {
		s.apply(EventVerdictNegative)
		s.statusMsg = verdict.Message
		s.notify(observer.CaptureRejected, verdict.Message, nil)
		return &VerificationResult{Verdict: false, Message: verdict.Message}, nil
	}

	s.verdict = &VerificationResult{Verdict: true, Message: verdict.Message}
	s.apply(EventVerdictPositive)
	s.statusMsg = ""
	s.notify(observer.CaptureVerified, verdict.Message, map[string]interface{}{
		"image_bytes":   len(encoded.Data),
		"image_quality": encoded.Quality,
	})
	s.archiveLocked(ctx, encoded)
	return s.verdict, nil
}

// archiveLocked stores the verified after-image best-effort; failures never
// affect workflow state.
func (s *CleanupSession) archiveLocked(ctx context.Context, encoded *capture.Encoded) {
	if s.deps.Archiver == nil {
		return
	}
	name := fmt.Sprintf("cleanups/%s/%s.jpg", s.task.ID, s.id)
	if err := s.deps.Archiver.Archive(ctx, name, encoded.Data); err != nil {
		s.log.WithError(err).Warn("Failed to archive evidence image")
	}
}

// Submit persists the verified cleanup. On failure the session stays in
// verified_positive: the held image and verdict remain valid and the
// operator can retry without re-capturing or re-verifying.
func (s *CleanupSession) Submit(ctx context.Context) (*api.CleanupReceipt, error) {
	s.mu.Lock()
	if err := s.guardLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.apply(EventSubmitRequested); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	req := api.CleaningRequest{
		ReportID:          s.task.ID,
		BeforeImageBase64: s.task.BeforeImageRef,
		AfterImageBase64:  s.afterImage.DataURL(),
		UserID:            s.operator.ID,
		UserName:          s.operator.Name,
		UserType:          s.operator.Type,
	}
	s.mu.Unlock()

	receipt, err := s.deps.Backend.MarkCleaned(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apperrors.NewInvalidTransitionError("session is closed")
	}
	if err != nil {
		s.apply(EventSubmitFailed)
		s.statusMsg = "Submission failed: " + err.Error()
		s.notify(observer.SubmitFailed, s.statusMsg, nil)
		return nil, err
	}

	s.apply(EventSubmitSucceeded)
	s.task.Status = TaskCleaned
	s.receipt = receipt
	s.statusMsg = ""
	s.notify(observer.Submitted, receipt.Message, map[string]interface{}{
		"points_awarded": receipt.PointsAwarded,
	})
	return receipt, nil
}

// Close tears the session down. The camera is released unconditionally and
// any still-in-flight external result is ignored when it resolves.
func (s *CleanupSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.deps.Camera.Close()
	s.notify(observer.SessionClosed, "", nil)
}

func (s *CleanupSession) guardLocked() error {
	if s.closed {
		return apperrors.NewInvalidTransitionError("session is closed")
	}
	return nil
}

func (s *CleanupSession) notify(eventType observer.EventType, message string, metadata map[string]interface{}) {
	s.deps.Events.Notify(observer.WorkflowEvent{
		EventType: eventType,
		SessionID: s.id,
		ReportID:  s.task.ID,
		Message:   message,
		Metadata:  metadata,
	})
}

// CleanupSnapshot is a read-only view of the session for the control API.
type CleanupSnapshot struct {
	ID            string              `json:"id"`
	ReportID      string              `json:"report_id"`
	State         State               `json:"state"`
	WasteType     WasteType           `json:"waste_type"`
	TaskStatus    TaskStatus          `json:"task_status"`
	Proximity     *geo.ProximityCheck `json:"proximity,omitempty"`
	Verdict       *VerificationResult `json:"verdict,omitempty"`
	PointsAwarded int                 `json:"points_awarded,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// Snapshot returns the current view of the session.
func (s *CleanupSession) Snapshot() CleanupSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := CleanupSnapshot{
		ID:         s.id,
		ReportID:   s.task.ID,
		State:      s.state,
		WasteType:  s.task.WasteType,
		TaskStatus: s.task.Status,
		Message:    s.statusMsg,
	}
	if s.proximity != nil {
		check := *s.proximity
		snap.Proximity = &check
	}
	if s.verdict != nil {
		verdict := *s.verdict
		snap.Verdict = &verdict
	}
	if s.receipt != nil {
		snap.PointsAwarded = s.receipt.PointsAwarded
	}
	return snap
}
