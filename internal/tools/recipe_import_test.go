package tools

import (
	"strings"
	"testing"
)

func TestExtractIngredients_Sectioned(t *testing.T) {
	text := strings.Join([]string{
		"The best paella you will ever make.",
		"Ingredients",
		"2 cups bomba rice",
		"1 lb shrimp",
		"½ tsp saffron",
		"Directions",
		"Heat the pan and add the rice.",
	}, "\n")

	got := ExtractIngredients(text)
	want := []string{"2 cups bomba rice", "1 lb shrimp", "½ tsp saffron"}
	if len(got) != len(want) {
		t.Fatalf("ingredients = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ingredients[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractIngredients_QuantityFallback(t *testing.T) {
	text := strings.Join([]string{
		"A summer favorite.",
		"3 ripe tomatoes",
		"1 cucumber",
		"Slice everything thinly and dress with olive oil, then serve chilled on a large platter for the table.",
	}, "\n")

	got := ExtractIngredients(text)
	if len(got) != 2 {
		t.Fatalf("ingredients = %v", got)
	}
	if got[0] != "3 ripe tomatoes" || got[1] != "1 cucumber" {
		t.Errorf("ingredients = %v", got)
	}
}

func TestExtractIngredients_Empty(t *testing.T) {
	if got := ExtractIngredients("No recipe here, just a story about grandma."); len(got) != 0 {
		t.Errorf("ingredients = %v, want none", got)
	}
}
