package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/priya/fete/internal/plan"
)

// LibraryEntry is one reusable dish in the host's recipe library. The ID is
// the stable external id referenced by the dish plan.
type LibraryEntry struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Servings int      `yaml:"servings,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
}

// DishLibrary is the pre-existing recipe collection, loaded from a YAML file.
type DishLibrary struct {
	Entries []LibraryEntry
}

func LoadDishLibrary(path string) (*DishLibrary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dish library: %v", err)
	}
	var doc struct {
		Dishes []LibraryEntry `yaml:"dishes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse dish library: %v", err)
	}
	return &DishLibrary{Entries: doc.Dishes}, nil
}

// Get returns the entry with the given id.
func (l *DishLibrary) Get(id string) (LibraryEntry, bool) {
	for _, e := range l.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return LibraryEntry{}, false
}

// Search matches the query against names and tags, case-insensitive.
func (l *DishLibrary) Search(query string) []LibraryEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var hits []LibraryEntry
	for _, e := range l.Entries {
		if strings.Contains(strings.ToLower(e.Name), q) {
			hits = append(hits, e)
			continue
		}
		for _, tag := range e.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				hits = append(hits, e)
				break
			}
		}
	}
	return hits
}

// AsDish converts a library entry into the plan's reference type.
func (e LibraryEntry) AsDish() plan.LibraryDish {
	return plan.LibraryDish{LibraryID: e.ID, Name: e.Name, Servings: e.Servings}
}

// DishLibraryTool exposes the library to the agent on the dish step.
type DishLibraryTool struct {
	Library *DishLibrary
}

func NewDishLibraryTool(library *DishLibrary) *DishLibraryTool {
	return &DishLibraryTool{Library: library}
}

func (d *DishLibraryTool) Name() string {
	return "dish_library"
}

func (d *DishLibraryTool) Description() string {
	return "Search the host's saved recipe library for reusable dishes by name or tag."
}

func (d *DishLibraryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Name or tag to search for (e.g. 'vegetarian', 'paella')",
			},
		},
		"required": []string{"query"},
	}
}

func (d *DishLibraryTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	hits := d.Library.Search(args.Query)
	if len(hits) == 0 {
		return fmt.Sprintf("No library dishes match %q.", args.Query), nil
	}
	out, err := json.Marshal(hits)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
