package observer

import (
	"sync"
	"time"

	"go-cleanup-agent/internal/logger"

	"github.com/sirupsen/logrus"
)

// WorkflowEvent represents one occurrence in a workflow session's life
type WorkflowEvent struct {
	EventType EventType              `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	ReportID  string                 `json:"report_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of workflow event
type EventType string

const (
	// SessionCreated when a workflow session is created
	SessionCreated EventType = "session_created"
	// LocationAcquired when a position fix passed the proximity gate
	LocationAcquired EventType = "location_acquired"
	// LocationDenied when the one-shot location read failed
	LocationDenied EventType = "location_denied"
	// ProximityBlocked when the operator is out of range
	ProximityBlocked EventType = "proximity_blocked"
	// CameraOpened when a camera stream was acquired
	CameraOpened EventType = "camera_opened"
	// CameraFailed when camera acquisition failed
	CameraFailed EventType = "camera_failed"
	// CaptureVerified when a capture received a positive remote verdict
	CaptureVerified EventType = "capture_verified"
	// CaptureRejected when a capture was rejected or verification failed
	CaptureRejected EventType = "capture_rejected"
	// Submitted when the workflow result was persisted
	Submitted EventType = "submitted"
	// SubmitFailed when persisting failed (retryable)
	SubmitFailed EventType = "submit_failed"
	// SessionClosed on workflow teardown
	SessionClosed EventType = "session_closed"
)

// Observer receives workflow events
type Observer interface {
	OnEvent(event WorkflowEvent)
}

// Dispatcher fans workflow events out to registered observers
type Dispatcher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewDispatcher creates a dispatcher with a logging observer attached
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{}
	d.Register(&LoggingObserver{})
	return d
}

// Register adds an observer
func (d *Dispatcher) Register(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Notify delivers an event to every observer. Nil-safe so workflow code can
// publish without caring whether a dispatcher was wired.
func (d *Dispatcher) Notify(event WorkflowEvent) {
	if d == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	d.mu.RUnlock()

	for _, o := range observers {
		o.OnEvent(event)
	}
}

// LoggingObserver writes workflow events to the structured log
type LoggingObserver struct{}

func (l *LoggingObserver) OnEvent(event WorkflowEvent) {
	entry := logger.ForComponent("workflow").WithFields(logrus.Fields{
		"event":      event.EventType,
		"session_id": event.SessionID,
	})
	if event.ReportID != "" {
		entry = entry.WithField("report_id", event.ReportID)
	}
	if event.Message != "" {
		entry = entry.WithField("message", event.Message)
	}
	for k, v := range event.Metadata {
		entry = entry.WithField(k, v)
	}

	switch event.EventType {
	case LocationDenied, CameraFailed, SubmitFailed:
		entry.Warn("Workflow event")
	default:
		entry.Info("Workflow event")
	}
}
