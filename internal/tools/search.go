package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// IdeaSearchTool lets the agent look up dish and menu ideas on the web when
// the host asks for suggestions.
type IdeaSearchTool struct {
	client *duckduckgo.Tool
}

func NewIdeaSearchTool() (*IdeaSearchTool, error) {
	ddg, err := duckduckgo.New(10, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &IdeaSearchTool{client: ddg}, nil
}

func (s *IdeaSearchTool) Name() string {
	return "idea_search"
}

func (s *IdeaSearchTool) Description() string {
	return "Search the web for dish, menu, or party ideas using DuckDuckGo."
}

func (s *IdeaSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to look up (e.g. 'easy vegetarian tapas for 12')",
			},
		},
		"required": []string{"query"},
	}
}

func (s *IdeaSearchTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	res, err := s.client.Call(ctx, args.Query)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	return res, nil
}
