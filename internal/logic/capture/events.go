package capture

// EventKind names a session notification.
type EventKind string

const (
	EventState         EventKind = "state"
	EventCountdown     EventKind = "countdown"
	EventShot          EventKind = "shot"
	EventPhoto         EventKind = "photo"
	EventError         EventKind = "error"
	EventCameraStarted EventKind = "camera-started"
	EventCameraStopped EventKind = "camera-stopped"
	EventSettings      EventKind = "settings"
)

// Event is a progress notification. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind `json:"kind"`
	State     string    `json:"state,omitempty"`
	Shot      int       `json:"shot,omitempty"`
	Total     int       `json:"total,omitempty"`
	Remaining int       `json:"remaining,omitempty"`
	PhotoID   string    `json:"photoId,omitempty"`
	Error     string    `json:"error,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Notifier receives session events. Notify is called synchronously from the
// session goroutine and must not block or call back into the session.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Notifiers fans an event out to several notifiers in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(e Event) {
	for _, n := range ns {
		if n != nil {
			n.Notify(e)
		}
	}
}
