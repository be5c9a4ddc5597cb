package models

// Phase is the discrete stage of an asynchronous search task.
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseSources   Phase = "sources"
	PhaseAnswer    Phase = "answer"
	PhaseCompleted Phase = "completed"
	PhaseError     Phase = "error"
)

// phaseRank orders the normal progression. Error sits outside the ordering:
// it is terminal and reachable from any non-terminal phase.
var phaseRank = map[Phase]int{
	PhaseWaiting:   0,
	PhaseSources:   1,
	PhaseAnswer:    2,
	PhaseCompleted: 3,
}

// Known reports whether p is a phase this client understands.
func (p Phase) Known() bool {
	_, ok := phaseRank[p]
	return ok || p == PhaseError
}

// Terminal reports whether no further updates are expected after p.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

// Before reports whether p orders strictly before q in the normal
// progression. Error compares before nothing and after everything.
func (p Phase) Before(q Phase) bool {
	if p == PhaseError {
		return false
	}
	if q == PhaseError {
		return true
	}
	return phaseRank[p] < phaseRank[q]
}

// SearchRequest is the submission payload for the external search backend.
type SearchRequest struct {
	Query string `json:"query"`
	Year  string `json:"year"`
	Mode  string `json:"mode"`
}

// SearchResponse is the backend's acknowledgement of a submitted search.
type SearchResponse struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status,omitempty"`
	Message  string `json:"message,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}

// StatusEvent is one status snapshot or stream event for a task.
type StatusEvent struct {
	Phase        Phase    `json:"phase"`
	Answer       string   `json:"answer,omitempty"`
	Sources      []Source `json:"sources,omitempty"`
	Bibliography []string `json:"bibliography,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Source is one retrieved document reference.
type Source struct {
	Title   string `json:"title,omitempty"`
	Authors string `json:"authors,omitempty"`
	Year    int    `json:"year,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchTask is the client-side view of a task, folded from status events.
type SearchTask struct {
	TaskID       string   `json:"task_id"`
	Phase        Phase    `json:"phase"`
	Answer       string   `json:"answer,omitempty"`
	Sources      []Source `json:"sources,omitempty"`
	Bibliography []string `json:"bibliography,omitempty"`
	Error        string   `json:"error,omitempty"`
}
