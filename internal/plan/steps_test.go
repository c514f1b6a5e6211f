package plan

import "testing"

func TestAdvance_Monotonic(t *testing.T) {
	s := NewSession("chat1")

	if err := s.Advance(StepGuests); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if s.FurthestStep != StepIndex(StepGuests) {
		t.Errorf("FurthestStep = %d, want %d", s.FurthestStep, StepIndex(StepGuests))
	}

	if err := s.Advance(StepDishes); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}

	// Going back must not lower the high-water mark.
	if err := s.NavigateTo(StepInfo); err != nil {
		t.Fatalf("NavigateTo failed: %v", err)
	}
	if s.FurthestStep != StepIndex(StepDishes) {
		t.Errorf("FurthestStep decreased to %d after backward navigation", s.FurthestStep)
	}
	if s.CurrentStep != StepInfo {
		t.Errorf("CurrentStep = %s, want %s", s.CurrentStep, StepInfo)
	}
}

func TestCanNavigateTo(t *testing.T) {
	s := NewSession("chat1")
	s.FurthestStep = StepIndex(StepDishes)

	cases := []struct {
		step Step
		want bool
	}{
		{StepInfo, true},
		{StepGuests, true},
		{StepDishes, true},
		{StepSchedule, false},
		{StepComplete, false},
		{Step("bogus"), false},
	}
	for _, c := range cases {
		if got := s.CanNavigateTo(c.step); got != c.want {
			t.Errorf("CanNavigateTo(%s) = %v, want %v", c.step, got, c.want)
		}
	}
}

func TestAdvance_TerminalRejectsFurtherMoves(t *testing.T) {
	s := NewSession("chat1")
	if err := s.Advance(StepComplete); err != nil {
		t.Fatalf("Advance to complete failed: %v", err)
	}
	if !s.Finished {
		t.Fatal("session not marked finished after reaching complete")
	}
	if err := s.Advance(StepGuests); err == nil {
		t.Error("Advance on a finished session should fail")
	}
	if err := s.NavigateTo(StepInfo); err == nil {
		t.Error("NavigateTo on a finished session should fail")
	}
}

func TestStartOver_ResetsEverything(t *testing.T) {
	s := NewSession("chat1")
	oldID := s.ID
	s.Info = &EventInfo{Title: "Housewarming", Date: "2026-09-12"}
	s.Guests = []Guest{{Name: "Amy", Email: "amy@gmail.com"}}
	s.Dishes.New = []NewDish{{Name: "Paella", Source: DishSourceManual}}
	s.Schedule = []PrepTask{{Description: "Shop", DayOffset: -1, TimeOfDay: "10:00"}}
	s.FurthestStep = StepIndex(StepSchedule)

	s.StartOver()

	if s.ID == oldID {
		t.Error("StartOver should assign a fresh session id")
	}
	if s.ChatID != "chat1" {
		t.Error("StartOver must keep the chat binding")
	}
	if s.Info != nil || len(s.Guests) != 0 || s.Dishes.Len() != 0 || len(s.Schedule) != 0 {
		t.Error("StartOver left structured data behind")
	}
	if s.FurthestStep != 0 || s.CurrentStep != StepInfo {
		t.Errorf("StartOver progress: step=%s furthest=%d", s.CurrentStep, s.FurthestStep)
	}
}

func TestStepIndexRoundTrip(t *testing.T) {
	for i, step := range []Step{StepInfo, StepGuests, StepDishes, StepSchedule, StepComplete} {
		if StepIndex(step) != i {
			t.Errorf("StepIndex(%s) = %d, want %d", step, StepIndex(step), i)
		}
		got, err := StepAt(i)
		if err != nil || got != step {
			t.Errorf("StepAt(%d) = %s, %v", i, got, err)
		}
	}
	if _, err := StepAt(99); err == nil {
		t.Error("StepAt(99) should fail")
	}
}
