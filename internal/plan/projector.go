package plan

import "fmt"

// Issue records an action that could not be applied. Skips are recoverable:
// the rest of the turn's actions are still applied.
type Issue struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// Report summarizes one projector pass over a turn's actions.
type Report struct {
	Applied  int          `json:"applied"`
	Skipped  []Issue      `json:"skipped,omitempty"`
	Confirms []ActionKind `json:"confirms,omitempty"`
	Reset    bool         `json:"reset,omitempty"`
}

// Apply mutates the session with each action in order. Removals are resolved
// against the list state at application time, so replaying an already-applied
// removal falls out of range and becomes a skip instead of deleting a
// different entry. Confirm actions never mutate; they are collected for the
// confirmation engine. There is no rollback across the list: earlier actions
// stick even if a later one is skipped.
func Apply(s *Session, actions []Action) Report {
	var rep Report
	for _, a := range actions {
		if a.IsConfirm() {
			rep.Confirms = append(rep.Confirms, a.Kind)
			continue
		}
		if err := applyOne(s, a); err != nil {
			rep.Skipped = append(rep.Skipped, Issue{Action: a, Reason: err.Error()})
			continue
		}
		if a.Kind == ActionStartOver {
			rep.Reset = true
		}
		rep.Applied++
	}
	return rep
}

func applyOne(s *Session, a Action) error {
	switch a.Kind {
	case ActionSetEventInfo:
		if a.Info == nil {
			return fmt.Errorf("set-event-info without payload")
		}
		info := *a.Info
		s.Info = &info
		return nil

	case ActionAddGuest:
		if a.Guest == nil {
			return fmt.Errorf("add-guest without payload")
		}
		s.Guests = append(s.Guests, *a.Guest)
		return nil

	case ActionRemoveGuest:
		if a.Index < 0 || a.Index >= len(s.Guests) {
			return fmt.Errorf("guest #%d does not exist", a.Index+1)
		}
		s.Guests = append(s.Guests[:a.Index], s.Guests[a.Index+1:]...)
		return nil

	case ActionAddLibraryDish:
		if a.Library == nil {
			return fmt.Errorf("add-library-dish without payload")
		}
		for _, d := range s.Dishes.Existing {
			if d.LibraryID == a.Library.LibraryID {
				// Already planned; re-adding is a silent no-op.
				return nil
			}
		}
		s.Dishes.Existing = append(s.Dishes.Existing, *a.Library)
		return nil

	case ActionAddDish:
		if a.Dish == nil {
			return fmt.Errorf("add-dish without payload")
		}
		s.Dishes.New = append(s.Dishes.New, *a.Dish)
		return nil

	case ActionRemoveDish:
		if a.FromNew {
			if a.Index < 0 || a.Index >= len(s.Dishes.New) {
				return fmt.Errorf("dish #%d does not exist", a.Index+1)
			}
			s.Dishes.New = append(s.Dishes.New[:a.Index], s.Dishes.New[a.Index+1:]...)
			return nil
		}
		if a.Index < 0 || a.Index >= len(s.Dishes.Existing) {
			return fmt.Errorf("dish #%d does not exist", a.Index+1)
		}
		s.Dishes.Existing = append(s.Dishes.Existing[:a.Index], s.Dishes.Existing[a.Index+1:]...)
		return nil

	case ActionAddPrepTask:
		if a.Task == nil {
			return fmt.Errorf("add-prep-task without payload")
		}
		// Appended in caller order; the schedule generator emits tasks
		// pre-sorted by day offset then time of day.
		s.Schedule = append(s.Schedule, *a.Task)
		return nil

	case ActionStartOver:
		s.StartOver()
		return nil
	}
	return fmt.Errorf("unknown action kind %q", a.Kind)
}
