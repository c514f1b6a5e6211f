package agent

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tmc/langchaingo/llms"

	"github.com/priya/fete/internal/plan"
	"github.com/priya/fete/internal/tools"
)

// translator converts a tool call's JSON arguments into projector actions.
// Translators never touch the session; they only read it to resolve
// display positions and library ids.
type translator func(args string, s *plan.Session) ([]plan.Action, error)

// stepToolset holds the action-emitting tool definitions the model sees for
// one wizard step, keyed by tool name.
type stepToolset struct {
	defs        []llms.Tool
	translators map[string]translator
}

func toolDef(name, description string, params map[string]any) llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}

var confirmToolDef = toolDef("propose_confirmation",
	"Propose finalizing the current step. Call this when the user indicates the step's content is complete; the user will approve or revise.",
	map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	})

var startOverToolDef = toolDef("start_over",
	"Discard the whole plan and restart the wizard from the beginning. Only call when the user explicitly asks to start over.",
	map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	})

func (a *Assistant) toolsetFor(step plan.Step) stepToolset {
	ts := stepToolset{translators: make(map[string]translator)}

	add := func(def llms.Tool, tr translator) {
		ts.defs = append(ts.defs, def)
		if tr != nil {
			ts.translators[def.Function.Name] = tr
		}
	}

	switch step {
	case plan.StepInfo:
		add(toolDef("set_event_info",
			"Record the event's basic details once the user has described them.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":      map[string]any{"type": "string"},
					"occasion":   map[string]any{"type": "string"},
					"date":       map[string]any{"type": "string", "description": "Event date, YYYY-MM-DD"},
					"time":       map[string]any{"type": "string", "description": "Start time, HH:MM"},
					"location":   map[string]any{"type": "string"},
					"head_count": map[string]any{"type": "integer"},
					"notes":      map[string]any{"type": "string"},
				},
				"required": []string{"title", "date"},
			}), translateSetEventInfo)

	case plan.StepGuests:
		add(toolDef("add_guests",
			"Add one or more guests to the list. Each guest needs a name and one contact channel when known.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"guests": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"name":  map[string]any{"type": "string"},
								"email": map[string]any{"type": "string"},
								"phone": map[string]any{"type": "string"},
								"note":  map[string]any{"type": "string"},
							},
							"required": []string{"name"},
						},
					},
				},
				"required": []string{"guests"},
			}), translateAddGuests)
		add(toolDef("remove_guest",
			"Remove one guest by list position as shown to the user (1-based).",
			numberParams("The guest's position in the list, starting at 1")),
			translateRemoveGuest)

	case plan.StepDishes:
		add(toolDef("add_dishes",
			"Add freshly authored dishes to the menu.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"dishes": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"name":        map[string]any{"type": "string"},
								"source":      map[string]any{"type": "string", "enum": []string{"photo", "url", "ai", "manual"}},
								"ingredients": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
								"recipe":      map[string]any{"type": "string"},
								"source_url":  map[string]any{"type": "string"},
							},
							"required": []string{"name", "source"},
						},
					},
				},
				"required": []string{"dishes"},
			}), translateAddDishes)
		add(toolDef("add_library_dishes",
			"Add dishes from the host's saved recipe library by id (use dish_library to find ids).",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"ids"},
			}), a.translateAddLibraryDishes)
		add(toolDef("remove_dish",
			"Remove one dish by its position in the combined menu as shown to the user (1-based).",
			numberParams("The dish's position in the menu, starting at 1")),
			translateRemoveDish)

	case plan.StepSchedule:
		add(toolDef("propose_schedule",
			"Propose the full prep schedule. Emit every task, ordered by day_offset then time_of_day.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tasks": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"description":  map[string]any{"type": "string"},
								"day_offset":   map[string]any{"type": "integer", "description": "Days relative to the event date; -1 is the day before, 0 the day of"},
								"time_of_day":  map[string]any{"type": "string", "description": "HH:MM"},
								"duration_min": map[string]any{"type": "integer"},
								"milestone":    map[string]any{"type": "boolean"},
							},
							"required": []string{"description", "day_offset", "time_of_day"},
						},
					},
				},
				"required": []string{"tasks"},
			}), translateProposeSchedule)
	}

	add(confirmToolDef, nil)
	add(startOverToolDef, func(string, *plan.Session) ([]plan.Action, error) {
		return []plan.Action{{Kind: plan.ActionStartOver}}, nil
	})
	return ts
}

func numberParams(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"number": map[string]any{"type": "integer", "description": description},
		},
		"required": []string{"number"},
	}
}

func translateSetEventInfo(args string, _ *plan.Session) ([]plan.Action, error) {
	var info plan.EventInfo
	if err := json.Unmarshal([]byte(args), &info); err != nil {
		return nil, fmt.Errorf("invalid set_event_info arguments: %v", err)
	}
	if info.Title == "" || info.Date == "" {
		return nil, fmt.Errorf("set_event_info needs at least a title and date")
	}
	return []plan.Action{{Kind: plan.ActionSetEventInfo, Info: &info}}, nil
}

func translateAddGuests(args string, _ *plan.Session) ([]plan.Action, error) {
	var payload struct {
		Guests []plan.Guest `json:"guests"`
	}
	if err := json.Unmarshal([]byte(args), &payload); err != nil {
		return nil, fmt.Errorf("invalid add_guests arguments: %v", err)
	}
	actions := make([]plan.Action, 0, len(payload.Guests))
	for i := range payload.Guests {
		g := payload.Guests[i]
		actions = append(actions, plan.Action{Kind: plan.ActionAddGuest, Guest: &g})
	}
	return actions, nil
}

func translateRemoveGuest(args string, _ *plan.Session) ([]plan.Action, error) {
	n, err := parseNumber(args)
	if err != nil {
		return nil, err
	}
	return []plan.Action{{Kind: plan.ActionRemoveGuest, Index: n - 1}}, nil
}

func translateAddDishes(args string, _ *plan.Session) ([]plan.Action, error) {
	var payload struct {
		Dishes []plan.NewDish `json:"dishes"`
	}
	if err := json.Unmarshal([]byte(args), &payload); err != nil {
		return nil, fmt.Errorf("invalid add_dishes arguments: %v", err)
	}
	actions := make([]plan.Action, 0, len(payload.Dishes))
	for i := range payload.Dishes {
		d := payload.Dishes[i]
		if d.Source == "" {
			d.Source = plan.DishSourceAI
		}
		actions = append(actions, plan.Action{Kind: plan.ActionAddDish, Dish: &d})
	}
	return actions, nil
}

func (a *Assistant) translateAddLibraryDishes(args string, _ *plan.Session) ([]plan.Action, error) {
	var payload struct {
		IDs []string `json:"ids"`
	}
	if err := json.Unmarshal([]byte(args), &payload); err != nil {
		return nil, fmt.Errorf("invalid add_library_dishes arguments: %v", err)
	}
	var actions []plan.Action
	for _, id := range payload.IDs {
		entry, ok := a.Library.Get(id)
		if !ok {
			return nil, fmt.Errorf("unknown library dish id %q", id)
		}
		dish := entry.AsDish()
		actions = append(actions, plan.Action{Kind: plan.ActionAddLibraryDish, Library: &dish})
	}
	return actions, nil
}

func translateRemoveDish(args string, s *plan.Session) ([]plan.Action, error) {
	n, err := parseNumber(args)
	if err != nil {
		return nil, err
	}
	a := plan.Action{Kind: plan.ActionRemoveDish, Index: n - 1}
	// The model sees the combined menu: library dishes first, then new ones.
	if a.Index >= len(s.Dishes.Existing) {
		a.Index -= len(s.Dishes.Existing)
		a.FromNew = true
	}
	return []plan.Action{a}, nil
}

func translateProposeSchedule(args string, _ *plan.Session) ([]plan.Action, error) {
	var payload struct {
		Tasks []plan.PrepTask `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(args), &payload); err != nil {
		return nil, fmt.Errorf("invalid propose_schedule arguments: %v", err)
	}
	// The schedule generator contract: tasks arrive pre-sorted. Enforce it
	// anyway so the projector can append blindly.
	sort.SliceStable(payload.Tasks, func(i, j int) bool {
		if payload.Tasks[i].DayOffset != payload.Tasks[j].DayOffset {
			return payload.Tasks[i].DayOffset < payload.Tasks[j].DayOffset
		}
		return payload.Tasks[i].TimeOfDay < payload.Tasks[j].TimeOfDay
	})
	actions := make([]plan.Action, 0, len(payload.Tasks))
	for i := range payload.Tasks {
		task := payload.Tasks[i]
		actions = append(actions, plan.Action{Kind: plan.ActionAddPrepTask, Task: &task})
	}
	return actions, nil
}

func parseNumber(args string) (int, error) {
	var payload struct {
		Number int `json:"number"`
	}
	if err := json.Unmarshal([]byte(args), &payload); err != nil {
		return 0, fmt.Errorf("invalid arguments: %v", err)
	}
	if payload.Number < 1 {
		return 0, fmt.Errorf("position must be 1 or greater, got %d", payload.Number)
	}
	return payload.Number, nil
}

// fetchToolNames lists the executable (non-action) tools offered per step.
func fetchToolNames(step plan.Step) []string {
	switch step {
	case plan.StepDishes:
		return []string{"recipe_import", "idea_search", "dish_library"}
	case plan.StepSchedule:
		return []string{"idea_search"}
	}
	return nil
}

// registryDefs builds llms tool definitions for the registry tools offered
// on this step.
func registryDefs(registry *tools.Registry, step plan.Step) []llms.Tool {
	var defs []llms.Tool
	for _, name := range fetchToolNames(step) {
		t := registry.Get(name)
		if t == nil {
			continue
		}
		defs = append(defs, toolDef(t.Name(), t.Description(), t.Parameters()))
	}
	return defs
}
