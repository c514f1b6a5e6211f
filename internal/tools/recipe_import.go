package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// Renderer fetches a fully rendered page for sites that only produce their
// recipe content via JavaScript.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// RecipeImportTool fetches a recipe URL and extracts a dish payload the
// agent can turn into an add-dish action.
type RecipeImportTool struct {
	UserAgent string
	Fallback  Renderer // optional; used when plain fetch yields no content
}

func NewRecipeImportTool(fallback Renderer) *RecipeImportTool {
	return &RecipeImportTool{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Fallback:  fallback,
	}
}

func (r *RecipeImportTool) Name() string {
	return "recipe_import"
}

func (r *RecipeImportTool) Description() string {
	return "Fetch a recipe URL and extract its title and ingredient list as a dish the plan can use."
}

func (r *RecipeImportTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The full URL of the recipe page (e.g., https://example.com/paella)",
			},
		},
		"required": []string{"url"},
	}
}

func (r *RecipeImportTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	parsedURL, err := url.Parse(args.URL)
	if err != nil || parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("invalid recipe URL: %s", args.URL)
	}

	title, text, err := r.fetch(ctx, parsedURL)
	if err != nil {
		return "", err
	}

	if len(strings.TrimSpace(text)) < 200 && r.Fallback != nil {
		if html, rerr := r.Fallback.Render(ctx, args.URL); rerr == nil {
			if article, perr := readability.FromReader(strings.NewReader(html), parsedURL); perr == nil {
				if article.Title != "" {
					title = article.Title
				}
				text = bluemonday.StrictPolicy().Sanitize(article.TextContent)
			}
		}
	}

	dish := map[string]any{
		"name":        title,
		"source":      "url",
		"source_url":  args.URL,
		"ingredients": ExtractIngredients(text),
	}
	out, err := json.Marshal(dish)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (r *RecipeImportTool) fetch(ctx context.Context, pageURL *url.URL) (title, text string, err error) {
	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL.String(), nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", r.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch URL: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse page: %v", err)
	}

	sanitized := bluemonday.StrictPolicy().Sanitize(article.TextContent)
	if len(sanitized) > 50000 {
		sanitized = sanitized[:50000]
	}
	return article.Title, sanitized, nil
}

var (
	quantityRe = regexp.MustCompile(`^\s*(?:[-•*]\s*)?(?:\d+[\d/.,]*|½|⅓|¼|¾|an?\s)\s*\S`)
	headingRe  = regexp.MustCompile(`(?i)^\s*(?:ingredients?)\s*:?\s*$`)
	stopRe     = regexp.MustCompile(`(?i)^\s*(?:directions?|instructions?|method|steps|preparation|notes)\s*:?\s*$`)
)

// ExtractIngredients pulls ingredient-looking lines out of extracted page
// text. Lines under an "Ingredients" heading are taken until the next
// section heading; absent a heading, quantity-prefixed lines are used.
func ExtractIngredients(text string) []string {
	lines := strings.Split(text, "\n")

	var section []string
	inSection := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case headingRe.MatchString(trimmed):
			inSection = true
		case inSection && stopRe.MatchString(trimmed):
			inSection = false
		case inSection && trimmed != "" && len(trimmed) < 120:
			section = append(section, strings.TrimLeft(trimmed, "-•* "))
		}
		if len(section) >= 40 {
			break
		}
	}
	if len(section) > 0 {
		return section
	}

	var guessed []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if quantityRe.MatchString(trimmed) && len(trimmed) < 120 {
			guessed = append(guessed, strings.TrimLeft(trimmed, "-•* "))
		}
		if len(guessed) >= 40 {
			break
		}
	}
	return guessed
}
