package twintypes

// TurnState is a stage of one chat turn.
type TurnState int

const (
	// StateStart - Request received, session identifier not yet resolved
	StateStart TurnState = iota
	// StateHistoryLoaded - Prior conversation loaded from the store
	StateHistoryLoaded
	// StateDrafted - Primary responder produced a draft reply
	StateDrafted
	// StateEvaluated - Evaluator judged the draft
	StateEvaluated
	// StateAccepted - Draft accepted as the final reply
	StateAccepted
	// StateCorrected - Draft rejected, rerun output is the final reply
	StateCorrected
	// StatePersisted - Extended history saved
	StatePersisted
	// StateDone - Reply returned to the caller
	StateDone
	// StateFailed - Turn aborted; nothing was saved
	StateFailed
)

// String returns the canonical upper-case name of the state.
func (s TurnState) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateHistoryLoaded:
		return "HISTORY_LOADED"
	case StateDrafted:
		return "DRAFTED"
	case StateEvaluated:
		return "EVALUATED"
	case StateAccepted:
		return "ACCEPTED"
	case StateCorrected:
		return "CORRECTED"
	case StatePersisted:
		return "PERSISTED"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no transition leaves s.
func (s TurnState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// TurnRequest is the input of one turn. An empty SessionID starts a new session.
type TurnRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// TurnResult is the output of a successful turn.
type TurnResult struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}
