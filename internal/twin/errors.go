package twin

import (
	"errors"
	"fmt"

	"digitaltwin/pkg/twintypes"
)

// ErrEmptyMessage is returned for turns whose message is blank.
var ErrEmptyMessage = errors.New("message cannot be empty")

// TurnError reports a failed turn together with the state it failed in.
type TurnError struct {
	State     twintypes.TurnState
	SessionID string
	Err       error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed in state %s: %v", e.State, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}
