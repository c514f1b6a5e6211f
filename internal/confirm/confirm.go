// Package confirm implements the human-in-the-loop confirmation protocol:
// building step-completion requests, tracking which request ids have been
// decided, and merging the client-local decided set with the one replayed
// from the persisted message log.
package confirm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	"github.com/priya/fete/internal/plan"
)

// Request proposes finalizing a step's content. Data is a full snapshot of
// the structured section at build time, so a confirmation card can render
// standalone even after later turns mutate the session.
type Request struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Step      plan.Step       `json:"step"`
	NextStep  plan.Step       `json:"next_step"`
	Summary   string          `json:"summary"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// DecisionKind is the user's resolution of a Request.
type DecisionKind string

const (
	DecisionApprove DecisionKind = "approve"
	DecisionRevise  DecisionKind = "revise"
)

// Decision references a Request by id. Applied at most once; duplicates for
// an already-decided id are no-ops.
type Decision struct {
	RequestID string       `json:"request_id"`
	Kind      DecisionKind `json:"kind"`
	Feedback  string       `json:"feedback,omitempty"`
}

// IncompleteGuestsError refuses a guest-list confirmation whose snapshot
// would silently finalize guests without any contact channel.
type IncompleteGuestsError struct {
	Names []string
}

func (e *IncompleteGuestsError) Error() string {
	return fmt.Sprintf("guests missing contact info: %s", strings.Join(e.Names, ", "))
}

// ErrRequestOpen is returned when a step already has an undecided request.
type ErrRequestOpen struct {
	RequestID string
	Step      plan.Step
}

func (e *ErrRequestOpen) Error() string {
	return fmt.Sprintf("confirmation %s for step %s is still open", e.RequestID, e.Step)
}

// Engine builds requests and keeps the ephemeral, client-local side of the
// decided-id bookkeeping. The durable side lives in the message log; the two
// are reconciled with MergeDecided.
type Engine struct {
	local *gocache.Cache
}

func NewEngine() *Engine {
	return &Engine{local: gocache.New(24*time.Hour, time.Hour)}
}

func openKey(sessionID string, step plan.Step) string {
	return "open:" + sessionID + ":" + string(step)
}

// Build creates a confirmation request for the session's given step, or
// refuses: at most one request may be open per step, and a guest-list
// snapshot must not contain contact-less guests.
func (e *Engine) Build(s *plan.Session, step plan.Step) (*Request, error) {
	if id, found := e.local.Get(openKey(s.ID, step)); found {
		return nil, &ErrRequestOpen{RequestID: id.(string), Step: step}
	}
	if step == plan.StepGuests {
		if missing := s.MissingContacts(); len(missing) > 0 {
			names := lo.Map(missing, func(i int, _ int) string {
				if n := s.Guests[i].Name; n != "" {
					return n
				}
				return fmt.Sprintf("guest #%d", i+1)
			})
			return nil, &IncompleteGuestsError{Names: names}
		}
	}

	data, summary, err := snapshot(s, step)
	if err != nil {
		return nil, err
	}
	req := &Request{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		Step:      step,
		NextStep:  plan.NextStep(step),
		Summary:   summary,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	e.local.Set(openKey(s.ID, step), req.ID, gocache.DefaultExpiration)
	e.local.Set("req:"+req.ID, openKey(s.ID, step), gocache.DefaultExpiration)
	return req, nil
}

// Reopen restores the open marker for a request found undecided in the
// replayed message log, e.g. after a process restart.
func (e *Engine) Reopen(req *Request) {
	e.local.Set(openKey(req.SessionID, req.Step), req.ID, gocache.DefaultExpiration)
	e.local.Set("req:"+req.ID, openKey(req.SessionID, req.Step), gocache.DefaultExpiration)
}

// MarkDecided records a decision locally the instant it is made, before any
// round-trip, and releases the step's open slot.
func (e *Engine) MarkDecided(requestID string) {
	if key, found := e.local.Get("req:" + requestID); found {
		e.local.Delete(key.(string))
		e.local.Delete("req:" + requestID)
	}
	e.local.Set("decided:"+requestID, true, gocache.DefaultExpiration)
}

// Decided reports whether the request id is present in either the local set
// or the replayed one. A resumed client must never re-show action buttons
// for an id present in either source.
func (e *Engine) Decided(requestID string, replayed map[string]struct{}) bool {
	if _, found := e.local.Get("decided:" + requestID); found {
		return true
	}
	_, ok := replayed[requestID]
	return ok
}

// LocalDecided returns the client-local decided set.
func (e *Engine) LocalDecided() map[string]struct{} {
	out := make(map[string]struct{})
	for key := range e.local.Items() {
		if id, ok := strings.CutPrefix(key, "decided:"); ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// MergeDecided is the pure union of two decided-id sets. Intentionally a
// function over values, not shared mutable state.
func MergeDecided(a, b map[string]struct{}) map[string]struct{} {
	merged := make(map[string]struct{}, len(a)+len(b))
	for id := range a {
		merged[id] = struct{}{}
	}
	for id := range b {
		merged[id] = struct{}{}
	}
	return merged
}

func snapshot(s *plan.Session, step plan.Step) (json.RawMessage, string, error) {
	var (
		payload any
		summary string
	)
	switch step {
	case plan.StepInfo:
		payload = s.Info
		if s.Info != nil {
			summary = fmt.Sprintf("%s on %s", s.Info.Title, s.Info.Date)
			if s.Info.Location != "" {
				summary += " at " + s.Info.Location
			}
		}
	case plan.StepGuests:
		payload = struct {
			Guests []plan.Guest `json:"guests"`
		}{s.Guests}
		names := lo.Map(s.Guests, func(g plan.Guest, _ int) string { return g.Name })
		summary = fmt.Sprintf("%d guests: %s", len(s.Guests), strings.Join(names, ", "))
	case plan.StepDishes:
		payload = s.Dishes
		names := lo.Map(s.Dishes.Existing, func(d plan.LibraryDish, _ int) string { return d.Name })
		names = append(names, lo.Map(s.Dishes.New, func(d plan.NewDish, _ int) string { return d.Name })...)
		summary = fmt.Sprintf("%d dishes: %s", s.Dishes.Len(), strings.Join(names, ", "))
	case plan.StepSchedule:
		payload = struct {
			EventDate string          `json:"event_date,omitempty"`
			Tasks     []plan.PrepTask `json:"tasks"`
		}{eventDate(s), s.Schedule}
		summary = fmt.Sprintf("%d prep tasks", len(s.Schedule))
	default:
		return nil, "", fmt.Errorf("no confirmation snapshot for step %q", step)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("snapshot step %s: %v", step, err)
	}
	return data, summary, nil
}

func eventDate(s *plan.Session) string {
	if s.Info == nil {
		return ""
	}
	return s.Info.Date
}
