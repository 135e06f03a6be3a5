package draw

import (
	"fmt"

	"lotto/internal/models"
)

// Event drives a round from one state to the next.
type Event string

const (
	EvtRequest Event = "request_randomness"
	EvtFulfill Event = "fulfill_randomness"
)

// NextState computes the state after evt, or returns the classified
// error for an illegal transition.
func NextState(cur models.RoundState, evt Event) (models.RoundState, error) {
	switch evt {
	case EvtRequest:
		switch cur {
		case models.StateOpen:
			return models.StateAwaitingRandomness, nil
		case models.StateAwaitingRandomness:
			return cur, models.ErrDrawAlreadyInProgress
		case models.StateDrawn:
			return cur, models.ErrDrawAlreadyDone
		}
	case EvtFulfill:
		if cur == models.StateAwaitingRandomness {
			return models.StateDrawn, nil
		}
		if cur == models.StateDrawn {
			return cur, models.ErrDrawAlreadyDone
		}
	}
	return cur, fmt.Errorf("invalid transition: %s --%s--> ?", cur, evt)
}
