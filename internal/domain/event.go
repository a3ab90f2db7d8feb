package domain

// EventKind discriminates the messages workers send to the scheduler
type EventKind string

const (
	EventAnalyzing EventKind = "analyzing"
	EventAnalyzed  EventKind = "analyzed"
	EventBlocked   EventKind = "blocked"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
)

// ProgressUpdate is the structured payload of a progress event
type ProgressUpdate struct {
	Percent     float64
	Downloaded  int64
	Total       int64
	Speed       string
	ETA         string
	Stage       string
	Destination string
}

// Event is the sole channel through which workers report state changes.
// Events are immutable; the scheduler consumes them on its own goroutine.
type Event struct {
	Kind  EventKind
	JobID string

	// EventAnalyzed
	Classification *ClassificationResult
	Access         AccessPolicy
	ResolvedURL    string
	Plan           *DownloadPlan

	// EventProgress
	Progress *ProgressUpdate

	// EventBlocked / EventFailed / EventCompleted
	Message  string
	Tail     string
	FilePath string
}
