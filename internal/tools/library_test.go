package tools

import (
	"os"
	"path/filepath"
	"testing"
)

const libraryYAML = `dishes:
  - id: lib-1
    name: Seafood Paella
    servings: 8
    tags: [spanish, rice]
  - id: lib-2
    name: Caprese Skewers
    servings: 12
    tags: [vegetarian, appetizer]
`

func TestLoadDishLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dishes.yaml")
	if err := os.WriteFile(path, []byte(libraryYAML), 0644); err != nil {
		t.Fatal(err)
	}

	lib, err := LoadDishLibrary(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(lib.Entries) != 2 {
		t.Fatalf("entries = %+v", lib.Entries)
	}

	entry, ok := lib.Get("lib-2")
	if !ok || entry.Name != "Caprese Skewers" {
		t.Errorf("Get(lib-2) = %+v, %v", entry, ok)
	}

	if hits := lib.Search("vegetarian"); len(hits) != 1 || hits[0].ID != "lib-2" {
		t.Errorf("Search(vegetarian) = %+v", hits)
	}
	if hits := lib.Search("paella"); len(hits) != 1 || hits[0].ID != "lib-1" {
		t.Errorf("Search(paella) = %+v", hits)
	}
	if hits := lib.Search("sushi"); len(hits) != 0 {
		t.Errorf("Search(sushi) = %+v", hits)
	}

	dish := entry.AsDish()
	if dish.LibraryID != "lib-2" || dish.Servings != 12 {
		t.Errorf("AsDish = %+v", dish)
	}
}
