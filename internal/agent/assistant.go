package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/tmc/langchaingo/llms"

	"github.com/priya/fete/internal/observability"
	"github.com/priya/fete/internal/plan"
	"github.com/priya/fete/internal/tools"
)

// HistoryStore supplies the trailing conversation window for the model call.
type HistoryStore interface {
	History(sessionID string, limit int) ([]llms.MessageContent, error)
}

// Outcome is what one agent turn produced: a reply for the user, zero or
// more structured actions for the projector, and whether the agent proposed
// closing the current step.
type Outcome struct {
	Reply   string
	Actions []plan.Action
	Confirm bool
}

// Assistant is the slow path: a tool-calling model invocation for turns the
// deterministic resolver could not classify. Tool calls are translated into
// projector actions; fetch tools (recipe import, idea search, dish library)
// execute inline and feed their results back to the model.
type Assistant struct {
	Model         llms.Model
	Prompts       *PromptManager
	Registry      *tools.Registry
	Library       *tools.DishLibrary
	History       HistoryStore
	Logger        *observability.Logger
	HistoryWindow int
	MaxSteps      int
}

func NewAssistant(model llms.Model, prompts *PromptManager, registry *tools.Registry, library *tools.DishLibrary, history HistoryStore, logger *observability.Logger) *Assistant {
	return &Assistant{
		Model:         model,
		Prompts:       prompts,
		Registry:      registry,
		Library:       library,
		History:       history,
		Logger:        logger,
		HistoryWindow: 20,
		MaxSteps:      6,
	}
}

// Run executes one agent turn for the session's current step. On any error
// the returned outcome carries no actions, so nothing is applied.
func (a *Assistant) Run(ctx context.Context, s *plan.Session, input string) (Outcome, error) {
	step := s.CurrentStep

	systemPrompt, err := a.Prompts.GetStepPrompt(step)
	if err != nil {
		log.Printf("Warning: failed to load prompt for step %s: %v", step, err)
	}

	snapshot, err := sessionContext(s)
	if err != nil {
		return Outcome{}, err
	}

	messages := []llms.MessageContent{}
	if systemPrompt != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeSystem,
		Parts: []llms.ContentPart{llms.TextPart("Current plan state:\n" + snapshot)},
	})

	if a.History != nil {
		history, err := a.History.History(s.ID, a.HistoryWindow)
		if err != nil {
			log.Printf("Warning: failed to load history for session %s: %v", s.ID, err)
		}
		messages = append(messages, history...)
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(input)},
	})

	ts := a.toolsetFor(step)
	llmTools := append([]llms.Tool{}, ts.defs...)
	llmTools = append(llmTools, registryDefs(a.Registry, step)...)

	var outcome Outcome
	for i := 0; i < a.MaxSteps; i++ {
		resp, err := a.Model.GenerateContent(ctx, messages, llms.WithTools(llmTools))
		if err != nil {
			return Outcome{}, err
		}
		choice := resp.Choices[0]

		var assistantParts []llms.ContentPart
		if choice.Content != "" {
			assistantParts = append(assistantParts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			assistantParts = append(assistantParts, tc)
		}
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeAI,
			Parts: assistantParts,
		})

		if len(choice.ToolCalls) == 0 {
			outcome.Reply = choice.Content
			break
		}

		for _, tc := range choice.ToolCalls {
			name := tc.FunctionCall.Name
			result := a.handleToolCall(ctx, &outcome, s, name, tc.FunctionCall.Arguments)

			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: tc.ID,
						Name:       name,
						Content:    result,
					},
				},
			})
		}
	}

	if outcome.Reply == "" && len(outcome.Actions) == 0 && !outcome.Confirm {
		outcome.Reply = "I wasn't able to work that out. Could you rephrase?"
	}
	if a.Logger != nil {
		a.Logger.LogLLM(s.ChatID, s.ID, input, outcome.Reply, actionKinds(outcome.Actions))
	}
	return outcome, nil
}

func (a *Assistant) handleToolCall(ctx context.Context, outcome *Outcome, s *plan.Session, name, args string) string {
	if name == "propose_confirmation" {
		outcome.Confirm = true
		return "Confirmation request noted; the user will approve or revise."
	}

	ts := a.toolsetFor(s.CurrentStep)
	if tr, ok := ts.translators[name]; ok {
		actions, err := tr(args, s)
		if err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		outcome.Actions = append(outcome.Actions, actions...)
		return fmt.Sprintf("Recorded %d action(s).", len(actions))
	}

	if tool := a.Registry.Get(name); tool != nil {
		if a.Logger != nil {
			a.Logger.LogToolCall(s.ChatID, s.ID, name, args)
		}
		res, err := tool.Execute(ctx, args)
		if err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return res
	}
	return fmt.Sprintf("Error: Tool %s not found", name)
}

// sessionContext renders the structured plan state as indented JSON for the
// system prompt, so the model always reasons over the latest data.
func sessionContext(s *plan.Session) (string, error) {
	ctx := struct {
		Step         plan.Step       `json:"step"`
		FurthestStep int             `json:"furthest_step"`
		Info         *plan.EventInfo `json:"info,omitempty"`
		Guests       []plan.Guest    `json:"guests"`
		Dishes       plan.DishPlan   `json:"dishes"`
		Schedule     []plan.PrepTask `json:"schedule"`
	}{s.CurrentStep, s.FurthestStep, s.Info, s.Guests, s.Dishes, s.Schedule}

	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render session context: %v", err)
	}
	return string(data), nil
}

func actionKinds(actions []plan.Action) []string {
	kinds := make([]string, len(actions))
	for i, a := range actions {
		kinds[i] = string(a.Kind)
	}
	return kinds
}
