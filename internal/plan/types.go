package plan

import (
	"github.com/google/uuid"
)

// EventInfo holds the basics gathered in the first wizard step.
type EventInfo struct {
	Title     string `json:"title"`
	Occasion  string `json:"occasion,omitempty"`
	Date      string `json:"date"` // YYYY-MM-DD target date of the event
	Time      string `json:"time,omitempty"`
	Location  string `json:"location,omitempty"`
	HeadCount int    `json:"head_count,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Guest is one invitee. A guest needs exactly one of Email or Phone before
// the guest list can be confirmed; Note carries any extra contact detail.
type Guest struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Note  string `json:"note,omitempty"`
}

// HasContact reports whether the guest carries a usable contact channel.
func (g Guest) HasContact() bool {
	return g.Email != "" || g.Phone != ""
}

// DishSource tags how a freshly authored dish entered the plan.
type DishSource string

const (
	DishSourcePhoto  DishSource = "photo"
	DishSourceURL    DishSource = "url"
	DishSourceAI     DishSource = "ai"
	DishSourceManual DishSource = "manual"
)

// LibraryDish references a dish from the host's pre-existing recipe library.
type LibraryDish struct {
	LibraryID string `json:"library_id"`
	Name      string `json:"name"`
	Servings  int    `json:"servings,omitempty"`
}

// NewDish is a dish authored during this planning session.
type NewDish struct {
	Name        string     `json:"name"`
	Source      DishSource `json:"source"`
	Ingredients []string   `json:"ingredients,omitempty"`
	Recipe      string     `json:"recipe,omitempty"`
	SourceURL   string     `json:"source_url,omitempty"`
}

// DishPlan is the menu under construction: library references plus new dishes.
type DishPlan struct {
	Existing []LibraryDish `json:"existing"`
	New      []NewDish     `json:"new"`
}

// Len returns the combined number of planned dishes.
func (d DishPlan) Len() int {
	return len(d.Existing) + len(d.New)
}

// PrepTask is one scheduled to-do. DayOffset is relative to the event date
// (negative = days before, 0 = day of). Milestone marks a phase boundary
// ("day-of begins") rather than actual work.
type PrepTask struct {
	Description string `json:"description"`
	DayOffset   int    `json:"day_offset"`
	TimeOfDay   string `json:"time_of_day"`
	DurationMin int    `json:"duration_min,omitempty"`
	Milestone   bool   `json:"milestone,omitempty"`
}

// Session is one in-progress wizard run, the unit persisted by the store.
type Session struct {
	ID           string     `json:"id"`
	ChatID       string     `json:"chat_id"`
	CurrentStep  Step       `json:"current_step"`
	FurthestStep int        `json:"furthest_step"`
	Info         *EventInfo `json:"info,omitempty"`
	Guests       []Guest    `json:"guests"`
	Dishes       DishPlan   `json:"dishes"`
	Schedule     []PrepTask `json:"schedule"`
	Finished     bool       `json:"finished"`
	PlanRef      string     `json:"plan_ref,omitempty"`
}

// NewSession creates a fresh session positioned at the first step.
func NewSession(chatID string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		CurrentStep: StepInfo,
	}
}

// StartOver wipes all four structured sections and the progress high-water
// mark. The session keeps its chat binding but gets a new identity so stale
// confirmation requests can never attach to the restarted run.
func (s *Session) StartOver() {
	s.ID = uuid.NewString()
	s.CurrentStep = StepInfo
	s.FurthestStep = 0
	s.Info = nil
	s.Guests = nil
	s.Dishes = DishPlan{}
	s.Schedule = nil
	s.Finished = false
	s.PlanRef = ""
}

// MissingContacts returns the indices of guests that have neither email nor
// phone. A non-empty result blocks guest-list confirmation.
func (s *Session) MissingContacts() []int {
	var missing []int
	for i, g := range s.Guests {
		if !g.HasContact() {
			missing = append(missing, i)
		}
	}
	return missing
}
