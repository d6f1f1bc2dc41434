package models

type EventKind string

const (
	EventChunk    EventKind = "chunk"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// StreamEvent is emitted by the orchestrator for every chunk and for the
// terminal state of each participant. It is never persisted.
type StreamEvent struct {
	SessionID   string       `json:"session_id"`
	MessageID   string       `json:"message_id"`
	Participant Participant  `json:"participant"`
	Kind        EventKind    `json:"kind"`
	Seq         int          `json:"seq"`
	Payload     EventPayload `json:"payload"`
}

type EventPayload struct {
	Content      string `json:"content,omitempty"`
	ModelID      string `json:"model_id,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Terminal reports whether no more events follow for the participant
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}
