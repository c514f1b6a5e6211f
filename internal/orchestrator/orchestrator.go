// Package orchestrator drives the planning wizard: it serializes turns per
// chat, routes each turn through the deterministic resolver or the agent,
// applies the resulting actions, and runs the confirmation protocol that
// gates step transitions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/priya/fete/internal/agent"
	"github.com/priya/fete/internal/confirm"
	"github.com/priya/fete/internal/governance"
	"github.com/priya/fete/internal/observability"
	"github.com/priya/fete/internal/plan"
	"github.com/priya/fete/internal/resolver"
)

// Agent is the slow path for turns the resolver cannot classify.
type Agent interface {
	Run(ctx context.Context, s *plan.Session, input string) (agent.Outcome, error)
}

// SessionStore is the persistence surface the orchestrator needs.
type SessionStore interface {
	LoadSession(chatID string) (*plan.Session, error)
	SaveSession(s *plan.Session) error
	ResetSession(chatID string) (*plan.Session, error)
	AppendTurn(sessionID, role, content string) error
	AppendConfirmation(req *confirm.Request) error
	AppendDecision(sessionID string, d confirm.Decision) error
	DecidedRequestIDs(sessionID string) (map[string]struct{}, error)
	OpenConfirmations(sessionID string) ([]confirm.Request, error)
}

// Finalizer persists a completed plan and returns its durable reference.
type Finalizer interface {
	Finalize(s *plan.Session) (string, error)
}

// Reply is what a gateway renders back to the user. When Confirmation is
// set the gateway shows approve/revise controls alongside the text.
type Reply struct {
	Text         string
	Confirmation *confirm.Request
}

// Orchestrator coordinates one wizard conversation per chat. All entry
// points serialize on a per-chat lock, so concurrent updates from a gateway
// can never interleave inside a turn.
type Orchestrator struct {
	Store        SessionStore
	Agent        Agent
	Policy       governance.PolicyEngine
	Confirm      *confirm.Engine
	Finalize     Finalizer
	Logger       *observability.Logger
	AgentTimeout time.Duration

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	requests map[string]confirm.Request
	armed    map[string]bool
	retry    map[string]bool
}

func New(st SessionStore, ag Agent, pol governance.PolicyEngine, eng *confirm.Engine, fin Finalizer, logger *observability.Logger) *Orchestrator {
	return &Orchestrator{
		Store:        st,
		Agent:        ag,
		Policy:       pol,
		Confirm:      eng,
		Finalize:     fin,
		Logger:       logger,
		AgentTimeout: 45 * time.Second,
		locks:        make(map[string]*sync.Mutex),
		requests:     make(map[string]confirm.Request),
		armed:        make(map[string]bool),
		retry:        make(map[string]bool),
	}
}

func (o *Orchestrator) chatLock(chatID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[chatID] = l
	}
	return l
}

// HandleTurn processes one user message for a chat.
func (o *Orchestrator) HandleTurn(ctx context.Context, chatID, text string) (Reply, error) {
	l := o.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{Text: "I didn't catch that — could you say it again?"}, nil
	}

	sess, err := o.loadOrCreate(chatID)
	if err != nil {
		return Reply{}, err
	}

	if o.Logger != nil {
		o.Logger.LogTurn(chatID, sess.ID, text)
	}
	if err := o.Store.AppendTurn(sess.ID, "human", text); err != nil {
		return Reply{}, err
	}

	reply, err := o.processTurn(ctx, sess, text)
	if err != nil {
		return Reply{}, err
	}

	if err := o.Store.SaveSession(sess); err != nil {
		return Reply{}, err
	}
	if reply.Text != "" {
		if err := o.Store.AppendTurn(sess.ID, "ai", reply.Text); err != nil {
			return Reply{}, err
		}
	}
	return reply, nil
}

func (o *Orchestrator) processTurn(ctx context.Context, sess *plan.Session, text string) (Reply, error) {
	if isStartOver(text) {
		old := sess.ID
		fresh, err := o.Store.ResetSession(sess.ChatID)
		if err != nil {
			return Reply{}, err
		}
		*sess = *fresh
		o.mu.Lock()
		delete(o.retry, sess.ChatID)
		o.mu.Unlock()
		if o.Logger != nil {
			o.Logger.LogReset(sess.ChatID, old, sess.ID)
		}
		return Reply{Text: "Fresh start! " + stepPrompt(plan.StepInfo)}, nil
	}

	// A failed finalize leaves the plan one retry away from done; any turn
	// on that chat tries again before normal processing.
	if o.pendingRetry(sess.ChatID) {
		return o.finalizeSession(sess)
	}

	if sess.Finished {
		return Reply{Text: fmt.Sprintf("Your plan is finalized (%s). Say \"start over\" to plan something new.", sess.PlanRef)}, nil
	}

	if step, ok := parseNavigation(text); ok {
		if err := sess.NavigateTo(step); err != nil {
			return Reply{Text: err.Error()}, nil
		}
		return Reply{Text: "Back to it. " + stepPrompt(step)}, nil
	}

	if res := resolver.Resolve(sess.CurrentStep, text, sess); res.Handled {
		observability.SetStatus(observability.RoleResolver, string(res.Intent))
		defer observability.SetStatus(observability.RoleIdle, "")
		if o.Logger != nil {
			o.Logger.LogIntent(sess.ChatID, sess.ID, string(res.Intent))
		}
		if res.Intent == resolver.IntentClarify {
			return Reply{Text: res.Question}, nil
		}
		return o.applyActions(ctx, sess, res.Actions, "")
	}

	observability.SetStatus(observability.RoleAgent, string(sess.CurrentStep)+" step")
	defer observability.SetStatus(observability.RoleIdle, "")

	actx := ctx
	if o.AgentTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.AgentTimeout)
		defer cancel()
	}
	out, err := o.Agent.Run(actx, sess, text)
	if err != nil {
		return Reply{}, fmt.Errorf("agent turn failed: %w", err)
	}
	if out.Confirm {
		out.Actions = append(out.Actions, confirmAction(sess.CurrentStep))
	}
	return o.applyActions(ctx, sess, out.Actions, out.Reply)
}

// applyActions runs policy over each action, projects the survivors onto the
// session, and opens a confirmation request when the turn asked to close the
// step. agentReply, when non-empty, takes precedence over the generated
// summary text.
func (o *Orchestrator) applyActions(ctx context.Context, sess *plan.Session, actions []plan.Action, agentReply string) (Reply, error) {
	allowed := make([]plan.Action, 0, len(actions))
	var denials []string
	for _, a := range actions {
		res, err := o.Policy.Evaluate(ctx, governance.Request{
			Step:   sess.CurrentStep,
			Action: a,
			ChatID: sess.ChatID,
		})
		if err != nil {
			return Reply{}, err
		}
		if res.Effect == governance.EffectDeny {
			denials = append(denials, res.Reason)
			if o.Logger != nil {
				o.Logger.LogPolicyDenial(sess.ChatID, sess.ID, a.String(), res.Reason)
			}
			continue
		}
		allowed = append(allowed, a)
	}

	rep := plan.Apply(sess, allowed)
	if o.Logger != nil {
		o.Logger.LogProjection(sess.ChatID, sess.ID, rep)
	}
	if rep.Reset {
		return Reply{Text: "Fresh start! " + stepPrompt(plan.StepInfo)}, nil
	}

	var reply Reply
	if len(rep.Confirms) > 0 {
		req, err := o.openConfirmation(sess)
		if err != nil {
			return Reply{Text: refusalText(err)}, nil
		}
		reply.Confirmation = req
	}

	switch {
	case agentReply != "":
		reply.Text = agentReply
	case reply.Confirmation != nil:
		reply.Text = confirmationText(reply.Confirmation)
	default:
		reply.Text = turnSummary(sess, rep)
	}
	if len(denials) > 0 {
		reply.Text += "\n(Some requested changes were not allowed: " + strings.Join(denials, "; ") + ")"
	}
	return reply, nil
}

func (o *Orchestrator) openConfirmation(sess *plan.Session) (*confirm.Request, error) {
	req, err := o.Confirm.Build(sess, sess.CurrentStep)
	if err != nil {
		return nil, err
	}
	if err := o.Store.AppendConfirmation(req); err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.requests[req.ID] = *req
	o.mu.Unlock()
	if o.Logger != nil {
		o.Logger.LogConfirmation(sess.ChatID, sess.ID, req.ID, string(req.Step))
	}
	return req, nil
}

// HandleDecision applies an approve/revise decision. Deciding an id that is
// already in the merged decided set is a no-op, so double-taps and replays
// are harmless.
func (o *Orchestrator) HandleDecision(ctx context.Context, chatID string, d confirm.Decision) (Reply, error) {
	l := o.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	sess, err := o.loadOrCreate(chatID)
	if err != nil {
		return Reply{}, err
	}

	replayed, err := o.Store.DecidedRequestIDs(sess.ID)
	if err != nil {
		return Reply{}, err
	}
	if o.Confirm.Decided(d.RequestID, replayed) {
		return Reply{Text: "That one's already settled."}, nil
	}

	req, ok := o.lookupRequest(sess, d.RequestID)
	if !ok {
		return Reply{Text: "I couldn't find that confirmation. It may belong to an earlier plan."}, nil
	}

	o.Confirm.MarkDecided(d.RequestID)
	if err := o.Store.AppendDecision(sess.ID, d); err != nil {
		return Reply{}, err
	}
	if o.Logger != nil {
		o.Logger.LogDecision(chatID, sess.ID, d.RequestID, string(d.Kind))
	}

	if d.Kind == confirm.DecisionRevise {
		reply := Reply{Text: "No problem, let's keep working on this step."}
		if fb := strings.TrimSpace(d.Feedback); fb != "" {
			if err := o.Store.AppendTurn(sess.ID, "human", fb); err != nil {
				return Reply{}, err
			}
			reply, err = o.processTurn(ctx, sess, fb)
			if err != nil {
				return Reply{}, err
			}
		}
		return o.saveAndRecord(sess, reply)
	}

	// Approve: advance the wizard, finalizing first when this was the last
	// content step.
	if req.NextStep == plan.StepComplete {
		reply, err := o.finalizeSession(sess)
		if err != nil {
			return Reply{}, err
		}
		return o.saveAndRecord(sess, reply)
	}

	if err := sess.Advance(req.NextStep); err != nil {
		return Reply{}, err
	}
	return o.saveAndRecord(sess, Reply{Text: "Locked in. " + stepPrompt(sess.CurrentStep)})
}

// saveAndRecord persists the session and logs the outgoing reply as an "ai"
// turn, so decision-path replies stay visible in the agent's history window.
func (o *Orchestrator) saveAndRecord(sess *plan.Session, reply Reply) (Reply, error) {
	if err := o.Store.SaveSession(sess); err != nil {
		return Reply{}, err
	}
	if reply.Text != "" {
		if err := o.Store.AppendTurn(sess.ID, "ai", reply.Text); err != nil {
			return Reply{}, err
		}
	}
	return reply, nil
}

// finalizeSession persists the plan and, only on success, marks the wizard
// complete. On failure the chat is flagged so the next turn retries; the
// idempotency key guarantees at most one stored plan either way.
func (o *Orchestrator) finalizeSession(sess *plan.Session) (Reply, error) {
	ref, err := o.Finalize.Finalize(sess)
	if err != nil {
		o.mu.Lock()
		o.retry[sess.ChatID] = true
		o.mu.Unlock()
		if o.Logger != nil {
			o.Logger.LogFinalize(sess.ChatID, sess.ID, "", err.Error())
		}
		return Reply{Text: "Everything is approved, but saving the plan failed. Say anything to retry."}, nil
	}
	o.mu.Lock()
	delete(o.retry, sess.ChatID)
	o.mu.Unlock()

	sess.PlanRef = ref
	if err := sess.Advance(plan.StepComplete); err != nil {
		return Reply{}, err
	}
	if o.Logger != nil {
		o.Logger.LogFinalize(sess.ChatID, sess.ID, ref, "")
	}
	return Reply{Text: fmt.Sprintf("🎉 Your plan is complete! Saved as %s. I'll remind you when prep tasks come due.", ref)}, nil
}

func (o *Orchestrator) pendingRetry(chatID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.retry[chatID]
}

// NavigateTo jumps the wizard back to an already-reached step.
func (o *Orchestrator) NavigateTo(chatID string, step plan.Step) (Reply, error) {
	l := o.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	sess, err := o.loadOrCreate(chatID)
	if err != nil {
		return Reply{}, err
	}
	if err := sess.NavigateTo(step); err != nil {
		return Reply{Text: err.Error()}, nil
	}
	if err := o.Store.SaveSession(sess); err != nil {
		return Reply{}, err
	}
	return Reply{Text: stepPrompt(step)}, nil
}

// RemoveGuest is the direct-mutation side channel for list UIs: it bypasses
// conversation parsing but still runs policy and the projector.
func (o *Orchestrator) RemoveGuest(ctx context.Context, chatID string, index int) (Reply, error) {
	return o.direct(ctx, chatID, func(*plan.Session) plan.Action {
		return plan.Action{Kind: plan.ActionRemoveGuest, Index: index}
	})
}

// RemoveDish removes by combined-menu position (library dishes first).
func (o *Orchestrator) RemoveDish(ctx context.Context, chatID string, index int) (Reply, error) {
	return o.direct(ctx, chatID, func(sess *plan.Session) plan.Action {
		a := plan.Action{Kind: plan.ActionRemoveDish, Index: index}
		if a.Index >= len(sess.Dishes.Existing) {
			a.Index -= len(sess.Dishes.Existing)
			a.FromNew = true
		}
		return a
	})
}

func (o *Orchestrator) direct(ctx context.Context, chatID string, build func(*plan.Session) plan.Action) (Reply, error) {
	l := o.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	sess, err := o.loadOrCreate(chatID)
	if err != nil {
		return Reply{}, err
	}
	reply, err := o.applyActions(ctx, sess, []plan.Action{build(sess)}, "")
	if err != nil {
		return Reply{}, err
	}
	if err := o.Store.SaveSession(sess); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// loadOrCreate returns the chat's session, creating one on first contact.
// On the first load of a session this process hasn't seen, undecided
// confirmation requests from the log re-arm the engine's open-slot tracking.
func (o *Orchestrator) loadOrCreate(chatID string) (*plan.Session, error) {
	sess, err := o.Store.LoadSession(chatID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = plan.NewSession(chatID)
		if err := o.Store.SaveSession(sess); err != nil {
			return nil, err
		}
	}

	o.mu.Lock()
	seen := o.armed[sess.ID]
	o.armed[sess.ID] = true
	o.mu.Unlock()
	if !seen {
		open, err := o.Store.OpenConfirmations(sess.ID)
		if err != nil {
			return nil, err
		}
		for i := range open {
			o.Confirm.Reopen(&open[i])
			o.mu.Lock()
			o.requests[open[i].ID] = open[i]
			o.mu.Unlock()
		}
	}
	return sess, nil
}

func (o *Orchestrator) lookupRequest(sess *plan.Session, requestID string) (confirm.Request, bool) {
	o.mu.Lock()
	req, ok := o.requests[requestID]
	o.mu.Unlock()
	if ok && req.SessionID == sess.ID {
		return req, true
	}
	open, err := o.Store.OpenConfirmations(sess.ID)
	if err != nil {
		return confirm.Request{}, false
	}
	for _, r := range open {
		if r.ID == requestID {
			return r, true
		}
	}
	return confirm.Request{}, false
}

func confirmAction(step plan.Step) plan.Action {
	switch step {
	case plan.StepGuests:
		return plan.Action{Kind: plan.ActionConfirmGuests}
	case plan.StepDishes:
		return plan.Action{Kind: plan.ActionConfirmDishes}
	default:
		return plan.Action{Kind: plan.ActionConfirmSchedule}
	}
}

var navAliases = map[string]plan.Step{
	"details": plan.StepInfo, "event details": plan.StepInfo, "the basics": plan.StepInfo, "basics": plan.StepInfo,
	"guests": plan.StepGuests, "guest list": plan.StepGuests, "the guest list": plan.StepGuests, "the guests": plan.StepGuests,
	"dishes": plan.StepDishes, "menu": plan.StepDishes, "the menu": plan.StepDishes, "the dishes": plan.StepDishes,
	"schedule": plan.StepSchedule, "the schedule": plan.StepSchedule, "prep schedule": plan.StepSchedule,
}

// parseNavigation recognizes explicit "go back to X" requests. Anything less
// direct is left for the resolver or the agent.
func parseNavigation(text string) (plan.Step, bool) {
	t := strings.ToLower(strings.TrimSpace(strings.Trim(text, ".!?")))
	for _, prefix := range []string{"go back to ", "back to ", "take me back to ", "lets go back to ", "let's go back to "} {
		if rest, ok := strings.CutPrefix(t, prefix); ok {
			if step, found := navAliases[strings.TrimSpace(rest)]; found {
				return step, true
			}
		}
	}
	return "", false
}

func isStartOver(text string) bool {
	t := strings.ToLower(strings.TrimSpace(strings.Trim(text, ".!?")))
	return t == "start over" || t == "restart" || t == "start again" || t == "/start_over"
}

func refusalText(err error) string {
	var incomplete *confirm.IncompleteGuestsError
	if errors.As(err, &incomplete) {
		return fmt.Sprintf("Before we lock in the guest list, I need an email or phone number for: %s.", strings.Join(incomplete.Names, ", "))
	}
	var open *confirm.ErrRequestOpen
	if errors.As(err, &open) {
		return "There's already a pending confirmation for this step. Approve or revise it first."
	}
	return "I couldn't open a confirmation for this step: " + err.Error()
}
