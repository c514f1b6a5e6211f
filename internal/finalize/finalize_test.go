package finalize

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/priya/fete/internal/plan"
	"github.com/priya/fete/internal/store"
)

func testSession() *plan.Session {
	s := plan.NewSession("chat-1")
	s.Info = &plan.EventInfo{
		Title:    "Nadia's 30th",
		Date:     "2026-09-12",
		Time:     "18:30",
		Location: "Backyard",
	}
	s.Guests = []plan.Guest{
		{Name: "Amy", Email: "amy@example.com"},
		{Name: "Bob", Phone: "+1 555 0100"},
	}
	s.Dishes = plan.DishPlan{
		Existing: []plan.LibraryDish{{LibraryID: "lib-1", Name: "Paella", Servings: 8}},
		New:      []plan.NewDish{{Name: "Citrus Salad", Source: plan.DishSourceManual}},
	}
	s.Schedule = []plan.PrepTask{
		{Description: "Shop for ingredients", DayOffset: -2, TimeOfDay: "10:00", DurationMin: 90},
		{Description: "Day-of begins", DayOffset: 0, TimeOfDay: "08:00", Milestone: true},
		{Description: "Set the table", DayOffset: 0, TimeOfDay: "16:00"},
	}
	return s
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "fete.db"))
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestFinalizeIdempotent(t *testing.T) {
	st := newTestStore(t)
	f := NewFinalizer(st, t.TempDir())
	s := testSession()

	ref1, err := f.Finalize(s)
	if err != nil {
		t.Fatal(err)
	}
	if ref1 == "" {
		t.Fatal("empty plan ref")
	}

	ref2, err := f.Finalize(s)
	if err != nil {
		t.Fatal(err)
	}
	if ref2 != ref1 {
		t.Errorf("retry returned %q, want %q", ref2, ref1)
	}

	var count int
	if err := st.DB.QueryRow(`SELECT COUNT(*) FROM plans`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("plans rows = %d, want 1", count)
	}
}

func TestFinalizeSeedsReminders(t *testing.T) {
	st := newTestStore(t)
	f := NewFinalizer(st, t.TempDir())
	s := testSession()

	if _, err := f.Finalize(s); err != nil {
		t.Fatal(err)
	}

	// Milestone tasks do not get reminders.
	due, err := st.DueReminders(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Fatalf("reminders = %+v, want 2", due)
	}
	if due[0].Description != "Shop for ingredients" {
		t.Errorf("first reminder = %q", due[0].Description)
	}
	wantDue := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	if !due[0].DueAt.Equal(wantDue) {
		t.Errorf("due at %v, want %v", due[0].DueAt, wantDue)
	}
}

func TestFinalizeRetrySeedsRemindersAfterPartialSave(t *testing.T) {
	st := newTestStore(t)
	f := NewFinalizer(st, t.TempDir())
	s := testSession()

	// An earlier attempt got the plan row in but died before seeding any
	// reminders. The retry must not stop at the cached reference.
	if err := st.SavePlan(IdempotencyKey(s.ID), s.ID, "{}", "plans/earlier.ics"); err != nil {
		t.Fatal(err)
	}

	ref, err := f.Finalize(s)
	if err != nil {
		t.Fatal(err)
	}
	if ref != "plans/earlier.ics" {
		t.Errorf("ref = %q, want the stored one", ref)
	}
	due, err := st.DueReminders(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Fatalf("reminders after retry = %d, want 2", len(due))
	}

	// Re-running does not stack duplicates either.
	if _, err := f.Finalize(s); err != nil {
		t.Fatal(err)
	}
	due, err = st.DueReminders(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Fatalf("reminders after second retry = %d, want 2", len(due))
	}
}

func TestRenderCalendar(t *testing.T) {
	s := testSession()
	out, err := RenderCalendar(s)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"SUMMARY:Nadia's 30th",
		"LOCATION:Backyard",
		"amy@example.com",
		"SUMMARY:Set the table",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("calendar missing %q", want)
		}
	}
}

func TestRenderCalendarNeedsInfo(t *testing.T) {
	s := plan.NewSession("chat-1")
	if _, err := RenderCalendar(s); err == nil {
		t.Error("expected error for session without event info")
	}
}

func TestIdempotencyKeyStable(t *testing.T) {
	if IdempotencyKey("abc") != IdempotencyKey("abc") {
		t.Error("key not stable")
	}
	if IdempotencyKey("abc") == IdempotencyKey("abd") {
		t.Error("key does not vary with session id")
	}
}
