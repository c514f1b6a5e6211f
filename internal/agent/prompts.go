package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/priya/fete/internal/plan"
)

// PromptManager loads the per-step system prompts from a directory of
// markdown files: base.md applies to every step, <step>.md adds the step's
// own directive.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// GetStepPrompt returns the combined system prompt for a wizard step.
func (pm *PromptManager) GetStepPrompt(step plan.Step) (string, error) {
	var contents []string

	base, err := os.ReadFile(filepath.Join(pm.Directory, "base.md"))
	if err == nil {
		contents = append(contents, string(base))
	}

	stepFile := filepath.Join(pm.Directory, string(step)+".md")
	data, err := os.ReadFile(stepFile)
	if err == nil {
		contents = append(contents, string(data))
	}

	if len(contents) == 0 {
		return "", fmt.Errorf("no prompt files for step %s in %s", step, pm.Directory)
	}

	return strings.Join(contents, "\n\n---\n\n"), nil
}
