package plan

import "fmt"

// ActionKind discriminates the mutation variants the projector understands.
type ActionKind string

const (
	ActionSetEventInfo    ActionKind = "set-event-info"
	ActionAddGuest        ActionKind = "add-guest"
	ActionRemoveGuest     ActionKind = "remove-guest"
	ActionConfirmGuests   ActionKind = "confirm-guest-list"
	ActionAddLibraryDish  ActionKind = "add-library-dish"
	ActionAddDish         ActionKind = "add-dish"
	ActionRemoveDish      ActionKind = "remove-dish"
	ActionConfirmDishes   ActionKind = "confirm-dishes"
	ActionAddPrepTask     ActionKind = "add-prep-task"
	ActionConfirmSchedule ActionKind = "confirm-schedule"
	ActionStartOver       ActionKind = "start-over"
)

// Action is one typed mutation instruction, produced either by the
// deterministic resolver or by an agent tool call. Exactly the payload
// field matching Kind is set; the rest stay nil/zero.
type Action struct {
	Kind    ActionKind   `json:"kind"`
	Info    *EventInfo   `json:"info,omitempty"`
	Guest   *Guest       `json:"guest,omitempty"`
	Library *LibraryDish `json:"library,omitempty"`
	Dish    *NewDish     `json:"dish,omitempty"`
	Task    *PrepTask    `json:"task,omitempty"`
	Index   int          `json:"index,omitempty"`
	FromNew bool         `json:"from_new,omitempty"` // remove-dish: target the new-dish list
}

// IsConfirm reports whether the action closes a step rather than mutating it.
func (a Action) IsConfirm() bool {
	switch a.Kind {
	case ActionConfirmGuests, ActionConfirmDishes, ActionConfirmSchedule:
		return true
	}
	return false
}

// Step returns the wizard step an action belongs to.
func (a Action) Step() Step {
	switch a.Kind {
	case ActionSetEventInfo:
		return StepInfo
	case ActionAddGuest, ActionRemoveGuest, ActionConfirmGuests:
		return StepGuests
	case ActionAddLibraryDish, ActionAddDish, ActionRemoveDish, ActionConfirmDishes:
		return StepDishes
	case ActionAddPrepTask, ActionConfirmSchedule:
		return StepSchedule
	}
	return ""
}

func (a Action) String() string {
	switch a.Kind {
	case ActionAddGuest:
		if a.Guest != nil {
			return fmt.Sprintf("%s(%s)", a.Kind, a.Guest.Name)
		}
	case ActionRemoveGuest, ActionRemoveDish:
		return fmt.Sprintf("%s(#%d)", a.Kind, a.Index+1)
	case ActionAddDish:
		if a.Dish != nil {
			return fmt.Sprintf("%s(%s)", a.Kind, a.Dish.Name)
		}
	case ActionAddLibraryDish:
		if a.Library != nil {
			return fmt.Sprintf("%s(%s)", a.Kind, a.Library.LibraryID)
		}
	}
	return string(a.Kind)
}
