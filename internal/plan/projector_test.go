package plan

import "testing"

func guestSession(names ...string) *Session {
	s := NewSession("chat1")
	for _, n := range names {
		s.Guests = append(s.Guests, Guest{Name: n, Email: n + "@test.com"})
	}
	return s
}

func TestApply_AddAndRemoveGuest(t *testing.T) {
	s := guestSession("Amy", "Bob")

	rep := Apply(s, []Action{
		{Kind: ActionAddGuest, Guest: &Guest{Name: "Cleo", Phone: "+1 555 0100"}},
		{Kind: ActionRemoveGuest, Index: 0},
	})
	if rep.Applied != 2 || len(rep.Skipped) != 0 {
		t.Fatalf("Report = %+v", rep)
	}
	if len(s.Guests) != 2 || s.Guests[0].Name != "Bob" || s.Guests[1].Name != "Cleo" {
		t.Errorf("guests after apply: %+v", s.Guests)
	}
}

func TestApply_RemoveIdempotent(t *testing.T) {
	s := guestSession("Amy", "Bob")

	// Same logical removal delivered twice, e.g. a retried request. The
	// second application must fall out of range, never remove Amy.
	rm := Action{Kind: ActionRemoveGuest, Index: 1}
	rep1 := Apply(s, []Action{rm})
	rep2 := Apply(s, []Action{rm})

	if rep1.Applied != 1 {
		t.Fatalf("first removal skipped: %+v", rep1)
	}
	if rep2.Applied != 0 || len(rep2.Skipped) != 1 {
		t.Fatalf("second removal should be a reported skip: %+v", rep2)
	}
	if len(s.Guests) != 1 || s.Guests[0].Name != "Amy" {
		t.Errorf("guests = %+v, want only Amy", s.Guests)
	}
}

func TestApply_OutOfRangeContinues(t *testing.T) {
	s := guestSession("Amy")

	rep := Apply(s, []Action{
		{Kind: ActionRemoveGuest, Index: 5},
		{Kind: ActionAddGuest, Guest: &Guest{Name: "Bob", Email: "bob@test.com"}},
	})
	if len(rep.Skipped) != 1 {
		t.Fatalf("want one skip, got %+v", rep)
	}
	if rep.Applied != 1 || len(s.Guests) != 2 {
		t.Errorf("later actions must still apply: %+v", rep)
	}
}

func TestApply_LibraryDishDedup(t *testing.T) {
	s := NewSession("chat1")
	paella := &LibraryDish{LibraryID: "lib-42", Name: "Paella"}

	rep := Apply(s, []Action{
		{Kind: ActionAddLibraryDish, Library: paella},
		{Kind: ActionAddLibraryDish, Library: paella},
		{Kind: ActionAddLibraryDish, Library: &LibraryDish{LibraryID: "lib-7", Name: "Flan"}},
	})
	if len(rep.Skipped) != 0 {
		t.Fatalf("dedup must be silent, got skips: %+v", rep.Skipped)
	}
	if len(s.Dishes.Existing) != 2 {
		t.Errorf("existing dishes = %+v, want 2 unique entries", s.Dishes.Existing)
	}
}

func TestApply_RemoveDishByList(t *testing.T) {
	s := NewSession("chat1")
	s.Dishes.Existing = []LibraryDish{{LibraryID: "lib-1", Name: "Paella"}}
	s.Dishes.New = []NewDish{{Name: "Flan", Source: DishSourceManual}, {Name: "Tarte", Source: DishSourceURL}}

	rep := Apply(s, []Action{{Kind: ActionRemoveDish, Index: 0, FromNew: true}})
	if rep.Applied != 1 {
		t.Fatalf("Report = %+v", rep)
	}
	if len(s.Dishes.New) != 1 || s.Dishes.New[0].Name != "Tarte" {
		t.Errorf("new dishes = %+v", s.Dishes.New)
	}
	if len(s.Dishes.Existing) != 1 {
		t.Errorf("existing list must be untouched: %+v", s.Dishes.Existing)
	}
}

func TestApply_ConfirmCollectedNotApplied(t *testing.T) {
	s := guestSession("Amy")

	rep := Apply(s, []Action{{Kind: ActionConfirmGuests}})
	if rep.Applied != 0 {
		t.Errorf("confirm actions must not count as mutations: %+v", rep)
	}
	if len(rep.Confirms) != 1 || rep.Confirms[0] != ActionConfirmGuests {
		t.Errorf("Confirms = %v", rep.Confirms)
	}
}

func TestApply_ScheduleOrderPreserved(t *testing.T) {
	s := NewSession("chat1")
	tasks := []PrepTask{
		{Description: "Shop", DayOffset: -2, TimeOfDay: "10:00"},
		{Description: "Marinate", DayOffset: -1, TimeOfDay: "18:00"},
		{Description: "Set table", DayOffset: 0, TimeOfDay: "15:00"},
	}
	var actions []Action
	for i := range tasks {
		actions = append(actions, Action{Kind: ActionAddPrepTask, Task: &tasks[i]})
	}
	Apply(s, actions)

	for i, task := range s.Schedule {
		if task.Description != tasks[i].Description {
			t.Errorf("schedule[%d] = %q, want %q", i, task.Description, tasks[i].Description)
		}
	}
}

func TestApply_ProjectorNeverTouchesFurthestStep(t *testing.T) {
	s := guestSession("Amy")
	s.FurthestStep = StepIndex(StepGuests)

	Apply(s, []Action{
		{Kind: ActionAddGuest, Guest: &Guest{Name: "Bob", Email: "bob@test.com"}},
		{Kind: ActionAddDish, Dish: &NewDish{Name: "Flan", Source: DishSourceManual}},
		{Kind: ActionAddPrepTask, Task: &PrepTask{Description: "Shop", DayOffset: -1, TimeOfDay: "10:00"}},
	})
	if s.FurthestStep != StepIndex(StepGuests) {
		t.Errorf("FurthestStep changed to %d", s.FurthestStep)
	}
}
