package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/priya/fete/internal/agent"
	"github.com/priya/fete/internal/confirm"
	"github.com/priya/fete/internal/governance"
	"github.com/priya/fete/internal/plan"
	"github.com/priya/fete/internal/store"
)

type scriptedAgent struct {
	t       *testing.T
	outcome agent.Outcome
	err     error
	calls   int
	forbid  bool
}

func (a *scriptedAgent) Run(_ context.Context, _ *plan.Session, input string) (agent.Outcome, error) {
	a.calls++
	if a.forbid {
		a.t.Fatalf("agent called for turn %q that should stay on the fast path", input)
	}
	return a.outcome, a.err
}

type flakyFinalizer struct {
	failures int
	calls    int
}

func (f *flakyFinalizer) Finalize(s *plan.Session) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("storage offline")
	}
	return "plans/" + s.ID + ".ics", nil
}

func newTestOrchestrator(t *testing.T, ag Agent, fin Finalizer) (*Orchestrator, *store.Store) {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "fete.db"))
	if err != nil {
		t.Fatal(err)
	}
	if fin == nil {
		fin = &flakyFinalizer{}
	}
	o := New(st, ag, governance.NewStepPolicyEngine(), confirm.NewEngine(), fin, nil)
	return o, st
}

func seedSession(t *testing.T, st *store.Store, step plan.Step) *plan.Session {
	t.Helper()
	sess := plan.NewSession("chat-1")
	sess.Info = &plan.EventInfo{Title: "Dinner", Date: "2026-09-12"}
	for sess.CurrentStep != step {
		if err := sess.Advance(plan.NextStep(sess.CurrentStep)); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestResolverFastPathSkipsAgent(t *testing.T) {
	ag := &scriptedAgent{t: t, forbid: true}
	o, st := newTestOrchestrator(t, ag, nil)
	seedSession(t, st, plan.StepGuests)

	reply, err := o.HandleTurn(context.Background(), "chat-1", "Amy - amy@example.com\nBob - +1 555 0100")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply.Text, "Amy") || !strings.Contains(reply.Text, "Bob") {
		t.Errorf("reply = %q", reply.Text)
	}

	sess, err := st.LoadSession("chat-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Guests) != 2 {
		t.Fatalf("guests = %+v", sess.Guests)
	}
}

func TestAgentPathAppliesActions(t *testing.T) {
	info := &plan.EventInfo{Title: "Nadia's 30th", Date: "2026-09-12"}
	ag := &scriptedAgent{t: t, outcome: agent.Outcome{
		Reply:   "Sounds lovely! A birthday dinner it is.",
		Actions: []plan.Action{{Kind: plan.ActionSetEventInfo, Info: info}},
	}}
	o, st := newTestOrchestrator(t, ag, nil)

	reply, err := o.HandleTurn(context.Background(), "chat-1", "I want to throw a birthday dinner for Nadia")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "Sounds lovely! A birthday dinner it is." {
		t.Errorf("reply = %q", reply.Text)
	}
	sess, _ := st.LoadSession("chat-1")
	if sess.Info == nil || sess.Info.Title != "Nadia's 30th" {
		t.Errorf("info = %+v", sess.Info)
	}
	if ag.calls != 1 {
		t.Errorf("agent calls = %d", ag.calls)
	}
}

func TestConfirmRefusedForContactlessGuests(t *testing.T) {
	ag := &scriptedAgent{t: t, forbid: true}
	o, st := newTestOrchestrator(t, ag, nil)
	sess := seedSession(t, st, plan.StepGuests)
	sess.Guests = []plan.Guest{{Name: "Amy", Email: "amy@example.com"}, {Name: "Carol"}}
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}

	reply, err := o.HandleTurn(context.Background(), "chat-1", "that's everyone")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Confirmation != nil {
		t.Fatal("confirmation opened despite contact-less guest")
	}
	if !strings.Contains(reply.Text, "Carol") {
		t.Errorf("refusal should name Carol, got %q", reply.Text)
	}
}

func TestApproveAdvancesStep(t *testing.T) {
	ag := &scriptedAgent{t: t, forbid: true}
	o, st := newTestOrchestrator(t, ag, nil)
	sess := seedSession(t, st, plan.StepGuests)
	sess.Guests = []plan.Guest{{Name: "Amy", Email: "amy@example.com"}}
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}

	reply, err := o.HandleTurn(context.Background(), "chat-1", "done")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Confirmation == nil {
		t.Fatalf("no confirmation, reply = %q", reply.Text)
	}

	_, err = o.HandleDecision(context.Background(), "chat-1", confirm.Decision{
		RequestID: reply.Confirmation.ID,
		Kind:      confirm.DecisionApprove,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := st.LoadSession("chat-1")
	if got.CurrentStep != plan.StepDishes {
		t.Errorf("step = %s, want %s", got.CurrentStep, plan.StepDishes)
	}
}

func TestDuplicateDecisionIsNoop(t *testing.T) {
	ag := &scriptedAgent{t: t, forbid: true}
	o, st := newTestOrchestrator(t, ag, nil)
	sess := seedSession(t, st, plan.StepGuests)
	sess.Guests = []plan.Guest{{Name: "Amy", Email: "amy@example.com"}}
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}

	reply, err := o.HandleTurn(context.Background(), "chat-1", "done")
	if err != nil {
		t.Fatal(err)
	}
	d := confirm.Decision{RequestID: reply.Confirmation.ID, Kind: confirm.DecisionApprove}
	if _, err := o.HandleDecision(context.Background(), "chat-1", d); err != nil {
		t.Fatal(err)
	}
	if _, err := o.HandleDecision(context.Background(), "chat-1", d); err != nil {
		t.Fatal(err)
	}

	got, _ := st.LoadSession("chat-1")
	if got.CurrentStep != plan.StepDishes {
		t.Errorf("double-tap moved the wizard to %s", got.CurrentStep)
	}
}

func TestDecisionSurvivesRestart(t *testing.T) {
	ag := &scriptedAgent{t: t, forbid: true}
	o, st := newTestOrchestrator(t, ag, nil)
	sess := seedSession(t, st, plan.StepGuests)
	sess.Guests = []plan.Guest{{Name: "Amy", Email: "amy@example.com"}}
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}

	reply, err := o.HandleTurn(context.Background(), "chat-1", "done")
	if err != nil {
		t.Fatal(err)
	}
	d := confirm.Decision{RequestID: reply.Confirmation.ID, Kind: confirm.DecisionApprove}
	if _, err := o.HandleDecision(context.Background(), "chat-1", d); err != nil {
		t.Fatal(err)
	}

	// A fresh process has an empty client-local cache; the log replay alone
	// must recognize the decision.
	o2 := New(st, ag, governance.NewStepPolicyEngine(), confirm.NewEngine(), &flakyFinalizer{}, nil)
	r, err := o2.HandleDecision(context.Background(), "chat-1", d)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(r.Text, "already settled") {
		t.Errorf("replayed decision not recognized: %q", r.Text)
	}
	got, _ := st.LoadSession("chat-1")
	if got.CurrentStep != plan.StepDishes {
		t.Errorf("step = %s", got.CurrentStep)
	}
}

func TestReviseWithFeedbackReentersTurn(t *testing.T) {
	ag := &scriptedAgent{t: t, forbid: true}
	o, st := newTestOrchestrator(t, ag, nil)
	sess := seedSession(t, st, plan.StepGuests)
	sess.Guests = []plan.Guest{{Name: "Amy", Email: "amy@example.com"}, {Name: "Bob", Email: "bob@example.com"}}
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}

	reply, err := o.HandleTurn(context.Background(), "chat-1", "done")
	if err != nil {
		t.Fatal(err)
	}
	r, err := o.HandleDecision(context.Background(), "chat-1", confirm.Decision{
		RequestID: reply.Confirmation.ID,
		Kind:      confirm.DecisionRevise,
		Feedback:  "remove #2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(r.Text, "Amy") {
		t.Errorf("revise reply = %q", r.Text)
	}

	got, _ := st.LoadSession("chat-1")
	if got.CurrentStep != plan.StepGuests {
		t.Errorf("revise advanced the wizard to %s", got.CurrentStep)
	}
	if len(got.Guests) != 1 || got.Guests[0].Name != "Amy" {
		t.Errorf("guests = %+v", got.Guests)
	}
}

func TestFinalizeFailureThenRetry(t *testing.T) {
	ag := &scriptedAgent{t: t, forbid: true}
	fin := &flakyFinalizer{failures: 1}
	o, st := newTestOrchestrator(t, ag, fin)
	sess := seedSession(t, st, plan.StepSchedule)
	sess.Guests = []plan.Guest{{Name: "Amy", Email: "amy@example.com"}}
	sess.Schedule = []plan.PrepTask{{Description: "Shop", DayOffset: -1, TimeOfDay: "10:00"}}
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}

	reply, err := o.HandleTurn(context.Background(), "chat-1", "looks good")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Confirmation == nil {
		t.Fatalf("no schedule confirmation, reply = %q", reply.Text)
	}

	r, err := o.HandleDecision(context.Background(), "chat-1", confirm.Decision{
		RequestID: reply.Confirmation.ID,
		Kind:      confirm.DecisionApprove,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(r.Text, "retry") {
		t.Errorf("failure reply = %q", r.Text)
	}
	got, _ := st.LoadSession("chat-1")
	if got.Finished {
		t.Fatal("session marked finished before finalize succeeded")
	}

	// Any subsequent turn retries the finalize.
	r, err = o.HandleTurn(context.Background(), "chat-1", "try again")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(r.Text, "complete") {
		t.Errorf("retry reply = %q", r.Text)
	}
	got, _ = st.LoadSession("chat-1")
	if !got.Finished || got.PlanRef == "" {
		t.Errorf("session = finished:%v ref:%q", got.Finished, got.PlanRef)
	}
	if fin.calls != 2 {
		t.Errorf("finalize calls = %d, want 2", fin.calls)
	}
}

func TestStartOverResetsEverything(t *testing.T) {
	ag := &scriptedAgent{t: t, forbid: true}
	o, st := newTestOrchestrator(t, ag, nil)
	sess := seedSession(t, st, plan.StepDishes)
	sess.Guests = []plan.Guest{{Name: "Amy", Email: "amy@example.com"}}
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}
	oldID := sess.ID

	if _, err := o.HandleTurn(context.Background(), "chat-1", "start over"); err != nil {
		t.Fatal(err)
	}
	got, _ := st.LoadSession("chat-1")
	if got.ID == oldID {
		t.Error("start over kept the old session identity")
	}
	if got.CurrentStep != plan.StepInfo || len(got.Guests) != 0 {
		t.Errorf("session = %+v", got)
	}
}

func TestDirectRemoveGuest(t *testing.T) {
	ag := &scriptedAgent{t: t, forbid: true}
	o, st := newTestOrchestrator(t, ag, nil)
	sess := seedSession(t, st, plan.StepGuests)
	sess.Guests = []plan.Guest{{Name: "Amy", Email: "amy@example.com"}, {Name: "Bob", Email: "bob@example.com"}}
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}

	if _, err := o.RemoveGuest(context.Background(), "chat-1", 0); err != nil {
		t.Fatal(err)
	}
	got, _ := st.LoadSession("chat-1")
	if len(got.Guests) != 1 || got.Guests[0].Name != "Bob" {
		t.Errorf("guests = %+v", got.Guests)
	}
}

// ctxKeyPolicy marks the caller's context so the policy fake can prove it
// received it rather than a fresh background context.
type ctxKeyPolicy struct{}

type contextCapturingPolicy struct {
	inner governance.PolicyEngine
	saw   any
}

func (p *contextCapturingPolicy) Evaluate(ctx context.Context, req governance.Request) (governance.Result, error) {
	p.saw = ctx.Value(ctxKeyPolicy{})
	return p.inner.Evaluate(ctx, req)
}

func TestPolicySeesCallerContext(t *testing.T) {
	ag := &scriptedAgent{t: t, forbid: true}
	o, st := newTestOrchestrator(t, ag, nil)
	pol := &contextCapturingPolicy{inner: governance.NewStepPolicyEngine()}
	o.Policy = pol
	seedSession(t, st, plan.StepGuests)

	ctx := context.WithValue(context.Background(), ctxKeyPolicy{}, "turn-ctx")
	if _, err := o.HandleTurn(ctx, "chat-1", "Amy - amy@example.com"); err != nil {
		t.Fatal(err)
	}
	if pol.saw != "turn-ctx" {
		t.Errorf("policy evaluated with detached context, saw %v", pol.saw)
	}
}

func lastAITurn(t *testing.T, st *store.Store, sessionID string) string {
	t.Helper()
	history, err := st.History(sessionID, 20)
	if err != nil {
		t.Fatal(err)
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != llms.ChatMessageTypeAI {
			continue
		}
		if text, ok := history[i].Parts[0].(llms.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

func TestDecisionRepliesEnterHistory(t *testing.T) {
	ag := &scriptedAgent{t: t, forbid: true}
	o, st := newTestOrchestrator(t, ag, nil)
	sess := seedSession(t, st, plan.StepGuests)
	sess.Guests = []plan.Guest{{Name: "Amy", Email: "amy@example.com"}, {Name: "Bob", Email: "bob@example.com"}}
	if err := st.SaveSession(sess); err != nil {
		t.Fatal(err)
	}

	reply, err := o.HandleTurn(context.Background(), "chat-1", "done")
	if err != nil {
		t.Fatal(err)
	}
	r, err := o.HandleDecision(context.Background(), "chat-1", confirm.Decision{
		RequestID: reply.Confirmation.ID,
		Kind:      confirm.DecisionRevise,
		Feedback:  "remove #2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := lastAITurn(t, st, sess.ID); got != r.Text {
		t.Errorf("revise reply not in history: last ai turn = %q, want %q", got, r.Text)
	}

	// The approve acknowledgement is logged too.
	reply, err = o.HandleTurn(context.Background(), "chat-1", "done")
	if err != nil {
		t.Fatal(err)
	}
	r, err = o.HandleDecision(context.Background(), "chat-1", confirm.Decision{
		RequestID: reply.Confirmation.ID,
		Kind:      confirm.DecisionApprove,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := lastAITurn(t, st, sess.ID); got != r.Text {
		t.Errorf("approve reply not in history: last ai turn = %q, want %q", got, r.Text)
	}
}

func TestEmptyTurnIsIgnored(t *testing.T) {
	ag := &scriptedAgent{t: t, forbid: true}
	o, _ := newTestOrchestrator(t, ag, nil)
	reply, err := o.HandleTurn(context.Background(), "chat-1", "   ")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text == "" {
		t.Error("expected a nudge for an empty turn")
	}
}

func TestGoBackNavigation(t *testing.T) {
	ag := &scriptedAgent{t: t, forbid: true}
	o, st := newTestOrchestrator(t, ag, nil)
	seedSession(t, st, plan.StepDishes)

	reply, err := o.HandleTurn(context.Background(), "chat-1", "go back to the guest list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply.Text, "coming") && !strings.Contains(reply.Text, "Who") {
		t.Errorf("reply = %q", reply.Text)
	}

	got, _ := st.LoadSession("chat-1")
	if got.CurrentStep != plan.StepGuests {
		t.Errorf("step = %s", got.CurrentStep)
	}
	if got.FurthestStep != plan.StepIndex(plan.StepDishes) {
		t.Errorf("high-water mark moved: %d", got.FurthestStep)
	}

	// Jumping ahead of the high-water mark is refused.
	reply, err = o.HandleTurn(context.Background(), "chat-1", "go back to the schedule")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply.Text, "not been reached") {
		t.Errorf("reply = %q", reply.Text)
	}
}
