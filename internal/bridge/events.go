package bridge

import "time"

// EventType classifies sync lifecycle events.
type EventType string

const (
	EventImportStarted   EventType = "import_started"
	EventCommitImported  EventType = "commit_imported"
	EventImportFinished  EventType = "import_finished"
	EventCheckinStarted  EventType = "checkin_started"
	EventCommitCheckedIn EventType = "commit_checked_in"
	EventCheckinFinished EventType = "checkin_finished"
	EventDiverged        EventType = "diverged"
	EventRebased         EventType = "rebased"
	EventReset           EventType = "reset"
)

// Event is one sync lifecycle notification, broadcast to the dashboard
// and any other registered sink.
type Event struct {
	Type      EventType `json:"type"`
	Branch    string    `json:"branch"`
	Commit    string    `json:"commit,omitempty"`
	Element   string    `json:"element,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives engine events. Implementations must not block;
// slow consumers should buffer or drop.
type EventSink interface {
	Emit(Event)
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

// emit stamps and publishes an event.
func (b *Bridge) emit(t EventType, branch, commit, message string) {
	b.events.Emit(Event{
		Type:      t,
		Branch:    branch,
		Commit:    commit,
		Message:   message,
		Timestamp: time.Now(),
	})
}
