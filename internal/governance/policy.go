package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/priya/fete/internal/plan"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of an agent-proposed action to be evaluated.
type Request struct {
	Step   plan.Step
	Action plan.Action
	ChatID string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates agent-emitted actions against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// StepPolicyEngine allows only the action kinds that belong to the current
// wizard step (start-over is always legal), and rejects payloads matching
// restricted patterns.
type StepPolicyEngine struct {
	DeniedKinds map[plan.ActionKind]bool
	DeniedRegex []*regexp.Regexp
}

func NewStepPolicyEngine() *StepPolicyEngine {
	return &StepPolicyEngine{
		DeniedKinds: make(map[plan.ActionKind]bool),
		DeniedRegex: make([]*regexp.Regexp, 0),
	}
}

func (e *StepPolicyEngine) DenyKind(kind plan.ActionKind) {
	e.DeniedKinds[kind] = true
}

func (e *StepPolicyEngine) DenyPayload(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *StepPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedKinds[req.Action.Kind] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Action '%s' is restricted by system policy", req.Action.Kind),
		}, nil
	}

	if step := req.Action.Step(); step != "" && step != req.Step {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Action '%s' does not belong to step '%s'", req.Action.Kind, req.Step),
		}, nil
	}

	payload, err := json.Marshal(req.Action)
	if err != nil {
		return Result{}, err
	}
	for _, re := range e.DeniedRegex {
		if re.Match(payload) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Payload matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
