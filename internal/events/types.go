package events

// ChangeKind says what happened to the match a MatchChangeEvent names.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeRemoved ChangeKind = "removed"
)

// MatchChangeEvent is published after every applied snapshot mutation.
// ChangedFields carries coarse names ("status", "score", "market:<id>")
// so consumers can re-query only what moved.
type MatchChangeEvent struct {
	Operator      string     `json:"operator"`
	MatchID       string     `json:"match_id"`
	Kind          ChangeKind `json:"kind"`
	ChangedFields []string   `json:"changed_fields,omitempty"`
}

// SessionStatusEvent signals feed session state transitions
// (streaming, degraded, closed) to interested consumers.
type SessionStatusEvent struct {
	Operator string `json:"operator"`
	State    string `json:"state"`
	Reason   string `json:"reason,omitempty"`
}
