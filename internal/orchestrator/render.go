package orchestrator

import (
	"fmt"
	"strings"

	"github.com/priya/fete/internal/confirm"
	"github.com/priya/fete/internal/plan"
)

func stepPrompt(step plan.Step) string {
	switch step {
	case plan.StepInfo:
		return "Tell me about the event: what's the occasion, and when and where is it?"
	case plan.StepGuests:
		return "Who's coming? Send names with an email or phone for each, like \"Amy - amy@example.com\"."
	case plan.StepDishes:
		return "Let's plan the menu. Pick dishes from your library, paste a recipe link, or just describe what you'd like to serve."
	case plan.StepSchedule:
		return "Time to build the prep schedule. Tell me how you like to prepare, or say \"looks good\" once the schedule suits you."
	case plan.StepComplete:
		return "Your plan is complete."
	}
	return ""
}

func confirmationText(req *confirm.Request) string {
	switch req.Step {
	case plan.StepInfo:
		return fmt.Sprintf("Here's the event: %s. Shall we move on to the guest list?", req.Summary)
	case plan.StepGuests:
		return fmt.Sprintf("Guest list so far — %s. Lock it in and move to the menu?", req.Summary)
	case plan.StepDishes:
		return fmt.Sprintf("Menu so far — %s. Happy with it? Next up is the prep schedule.", req.Summary)
	case plan.StepSchedule:
		return fmt.Sprintf("Schedule ready — %s. Approve to finalize the whole plan.", req.Summary)
	}
	return req.Summary
}

// turnSummary renders the post-application state of the current step, plus
// any skipped actions so the user knows what didn't land.
func turnSummary(s *plan.Session, rep plan.Report) string {
	var b strings.Builder

	switch s.CurrentStep {
	case plan.StepInfo:
		if s.Info != nil {
			fmt.Fprintf(&b, "Got it: %s on %s.", s.Info.Title, s.Info.Date)
		} else {
			b.WriteString(stepPrompt(plan.StepInfo))
		}
	case plan.StepGuests:
		b.WriteString(GuestList(s))
		b.WriteString("\nAnyone else?")
	case plan.StepDishes:
		b.WriteString(MenuList(s))
		b.WriteString("\nAnything else for the menu?")
	case plan.StepSchedule:
		b.WriteString(ScheduleList(s))
	}

	for _, issue := range rep.Skipped {
		fmt.Fprintf(&b, "\n⚠ Couldn't apply %s: %s", issue.Action, issue.Reason)
	}
	return b.String()
}

// GuestList renders the numbered guest list the way removal positions are
// counted: 1-based, in insertion order.
func GuestList(s *plan.Session) string {
	if len(s.Guests) == 0 {
		return "No guests yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Guest list (%d):", len(s.Guests))
	for i, g := range s.Guests {
		contact := g.Email
		if contact == "" {
			contact = g.Phone
		}
		if contact == "" {
			contact = "no contact yet"
		}
		fmt.Fprintf(&b, "\n%d. %s — %s", i+1, g.Name, contact)
	}
	return b.String()
}

// MenuList renders the combined menu: library dishes first, then new ones,
// matching how remove-by-position indexes resolve.
func MenuList(s *plan.Session) string {
	if s.Dishes.Len() == 0 {
		return "No dishes yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Menu (%d):", s.Dishes.Len())
	n := 1
	for _, d := range s.Dishes.Existing {
		fmt.Fprintf(&b, "\n%d. %s (from your library)", n, d.Name)
		n++
	}
	for _, d := range s.Dishes.New {
		fmt.Fprintf(&b, "\n%d. %s", n, d.Name)
		n++
	}
	return b.String()
}

func ScheduleList(s *plan.Session) string {
	if len(s.Schedule) == 0 {
		return "No prep tasks yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Prep schedule (%d tasks):", len(s.Schedule))
	for _, t := range s.Schedule {
		when := "day of"
		if t.DayOffset < 0 {
			when = fmt.Sprintf("%d day(s) before", -t.DayOffset)
		}
		fmt.Fprintf(&b, "\n• %s — %s at %s", t.Description, when, t.TimeOfDay)
	}
	return b.String()
}
