// Package finalize turns a completed wizard session into a durable plan:
// a stored document, an iCalendar render of the event and its prep
// schedule, and a row of reminders for the scheduler to deliver.
package finalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/priya/fete/internal/plan"
	"github.com/priya/fete/internal/store"
)

// Finalizer persists completed plans. Finalize is safe to retry: the
// idempotency key is derived from the session identity, so a retry after a
// partial failure lands on the same row and returns the original reference.
type Finalizer struct {
	Store     *store.Store
	OutputDir string
}

func NewFinalizer(st *store.Store, outputDir string) *Finalizer {
	return &Finalizer{Store: st, OutputDir: outputDir}
}

// IdempotencyKey derives the stable finalize key for a session. The session
// id is minted fresh on every start-over, so a restarted plan never collides
// with an earlier finalized one.
func IdempotencyKey(sessionID string) string {
	sum := sha256.Sum256([]byte("plan:" + sessionID))
	return hex.EncodeToString(sum[:])
}

// Finalize persists the session's plan and returns its durable reference.
// Calling it again for the same session returns the existing reference
// without writing anything.
func (f *Finalizer) Finalize(s *plan.Session) (string, error) {
	key := IdempotencyKey(s.ID)

	ref, err := f.Store.PlanRef(key)
	if err != nil {
		return "", err
	}
	if ref != "" {
		// The plan row survived an earlier attempt; reminder seeding may not
		// have, so it is re-run (it clears before it writes).
		return ref, f.seedReminders(s)
	}

	doc, err := json.Marshal(s)
	if err != nil {
		return "", err
	}

	calendar, err := RenderCalendar(s)
	if err != nil {
		return "", err
	}
	ref = filepath.Join(f.OutputDir, s.ID+".ics")
	if err := os.MkdirAll(f.OutputDir, 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(ref, []byte(calendar), 0644); err != nil {
		return "", err
	}

	if err := f.Store.SavePlan(key, s.ID, string(doc), ref); err != nil {
		return "", err
	}
	// Another finalize may have won the race; the stored ref is canonical.
	stored, err := f.Store.PlanRef(key)
	if err != nil {
		return "", err
	}
	if err := f.seedReminders(s); err != nil {
		return "", err
	}
	return stored, nil
}

// RenderCalendar produces an iCalendar document with the event itself plus
// one entry per prep task, anchored to the event date.
func RenderCalendar(s *plan.Session) (string, error) {
	if s.Info == nil {
		return "", fmt.Errorf("cannot render a plan without event info")
	}
	eventDate, err := time.Parse("2006-01-02", s.Info.Date)
	if err != nil {
		return "", fmt.Errorf("bad event date %q: %v", s.Info.Date, err)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//fete//party planner//EN")

	ev := cal.AddEvent(s.ID + "@fete")
	ev.SetCreatedTime(time.Now().UTC())
	ev.SetDtStampTime(time.Now().UTC())
	ev.SetStartAt(atTime(eventDate, s.Info.Time, 18*time.Hour))
	ev.SetSummary(s.Info.Title)
	if s.Info.Location != "" {
		ev.SetLocation(s.Info.Location)
	}
	ev.SetDescription(planDescription(s))
	for _, g := range s.Guests {
		if g.Email != "" {
			ev.AddAttendee(g.Email, ics.CalendarUserTypeIndividual)
		}
	}

	for i, task := range s.Schedule {
		due := taskDue(eventDate, task)
		todo := cal.AddEvent(fmt.Sprintf("%s-prep-%d@fete", s.ID, i))
		todo.SetDtStampTime(time.Now().UTC())
		todo.SetStartAt(due)
		if task.DurationMin > 0 {
			todo.SetEndAt(due.Add(time.Duration(task.DurationMin) * time.Minute))
		}
		todo.SetSummary(task.Description)
	}

	return cal.Serialize(), nil
}

// seedReminders stores one reminder per non-milestone prep task. It clears
// the chat's pending reminders first, so running it again after a failed or
// partial earlier pass converges instead of duplicating.
func (f *Finalizer) seedReminders(s *plan.Session) error {
	if s.Info == nil {
		return nil
	}
	eventDate, err := time.Parse("2006-01-02", s.Info.Date)
	if err != nil {
		return nil
	}
	if err := f.Store.ClearPendingReminders(s.ChatID); err != nil {
		return err
	}
	for _, task := range s.Schedule {
		if task.Milestone {
			continue
		}
		if err := f.Store.AddReminder(s.ChatID, task.Description, taskDue(eventDate, task)); err != nil {
			return err
		}
	}
	return nil
}

func taskDue(eventDate time.Time, task plan.PrepTask) time.Time {
	day := eventDate.AddDate(0, 0, task.DayOffset)
	return atTime(day, task.TimeOfDay, 9*time.Hour)
}

// atTime combines a date with an HH:MM clock string, falling back to the
// given offset when the string doesn't parse.
func atTime(day time.Time, clock string, fallback time.Duration) time.Time {
	if t, err := time.Parse("15:04", clock); err == nil {
		return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
	}
	return day.Add(fallback)
}

func planDescription(s *plan.Session) string {
	var b strings.Builder
	if s.Info.Occasion != "" {
		fmt.Fprintf(&b, "%s\n", s.Info.Occasion)
	}
	fmt.Fprintf(&b, "%d guests", len(s.Guests))
	if s.Dishes.Len() > 0 {
		names := make([]string, 0, s.Dishes.Len())
		for _, d := range s.Dishes.Existing {
			names = append(names, d.Name)
		}
		for _, d := range s.Dishes.New {
			names = append(names, d.Name)
		}
		fmt.Fprintf(&b, "\nMenu: %s", strings.Join(names, ", "))
	}
	if s.Info.Notes != "" {
		fmt.Fprintf(&b, "\n%s", s.Info.Notes)
	}
	return b.String()
}
