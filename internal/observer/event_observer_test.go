package observer

import (
	"sync"
	"testing"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []WorkflowEvent
}

func (r *recordingObserver) OnEvent(event WorkflowEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestDispatcher_FansOut(t *testing.T) {
	d := NewDispatcher()
	first := &recordingObserver{}
	second := &recordingObserver{}
	d.Register(first)
	d.Register(second)

	d.Notify(WorkflowEvent{EventType: CameraOpened, SessionID: "s1"})

	for i, o := range []*recordingObserver{first, second} {
		if len(o.events) != 1 {
			t.Fatalf("Observer %d: expected 1 event, got %d", i, len(o.events))
		}
		if o.events[0].SessionID != "s1" {
			t.Errorf("Observer %d: unexpected session %q", i, o.events[0].SessionID)
		}
		if o.events[0].Timestamp.IsZero() {
			t.Errorf("Observer %d: expected a timestamp", i)
		}
	}
}

func TestDispatcher_NilSafe(t *testing.T) {
	var d *Dispatcher
	// Must not panic
	d.Notify(WorkflowEvent{EventType: SessionClosed})
}
