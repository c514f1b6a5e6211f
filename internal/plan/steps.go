package plan

import "fmt"

// Step identifies one stage of the planning wizard.
type Step string

const (
	StepInfo     Step = "info"
	StepGuests   Step = "guests"
	StepDishes   Step = "dishes"
	StepSchedule Step = "schedule"
	StepComplete Step = "complete"
)

// The wizard is strictly linear, so the state machine is an ordered slice
// plus index arithmetic rather than a transition graph.
var stepOrder = []Step{StepInfo, StepGuests, StepDishes, StepSchedule, StepComplete}

// StepIndex returns the position of a step in the wizard, or -1 for an
// unknown step.
func StepIndex(s Step) int {
	for i, step := range stepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// StepAt returns the step at the given index.
func StepAt(i int) (Step, error) {
	if i < 0 || i >= len(stepOrder) {
		return "", fmt.Errorf("no step at index %d", i)
	}
	return stepOrder[i], nil
}

// NextStep returns the step that follows s. StepComplete is terminal and
// follows itself.
func NextStep(s Step) Step {
	i := StepIndex(s)
	if i < 0 || i >= len(stepOrder)-1 {
		return StepComplete
	}
	return stepOrder[i+1]
}

// CanNavigateTo reports whether the session may move to the given step.
// Backward navigation to any previously reached step is always allowed;
// jumping ahead of the high-water mark is not.
func (s *Session) CanNavigateTo(step Step) bool {
	idx := StepIndex(step)
	if idx < 0 {
		return false
	}
	return idx <= s.FurthestStep
}

// NavigateTo moves the current step backward (or sideways) without touching
// the high-water mark. Used for "go back to the guest list" style requests.
func (s *Session) NavigateTo(step Step) error {
	if s.Finished {
		return fmt.Errorf("session is complete; start a new plan to make changes")
	}
	if !s.CanNavigateTo(step) {
		return fmt.Errorf("step %q has not been reached yet", step)
	}
	s.CurrentStep = step
	return nil
}

// Advance moves the wizard forward. It is called only as the effect of an
// approved confirmation. The furthest-step mark only ever grows.
func (s *Session) Advance(next Step) error {
	if s.Finished {
		return fmt.Errorf("session is already complete")
	}
	idx := StepIndex(next)
	if idx < 0 {
		return fmt.Errorf("unknown step %q", next)
	}
	s.CurrentStep = next
	if idx > s.FurthestStep {
		s.FurthestStep = idx
	}
	if next == StepComplete {
		s.Finished = true
	}
	return nil
}
