package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const maxSuggestions = 10

// ErrNoGenerator is returned by the authoring helpers when text generation
// isn't configured.
var ErrNoGenerator = errors.New("text generation is not configured")

// TaskDraft is a generated task waiting to be created.
type TaskDraft struct {
	Title       string `json:"titulo"`
	Description string `json:"descricao,omitempty"`
}

// SuggestColumns asks the generator for the columns of a new board.
func SuggestColumns(ctx context.Context, gen TextGenerator, title, description string) ([]string, error) {
	if gen == nil {
		return nil, ErrNoGenerator
	}
	prompt := fmt.Sprintf("Sugira as colunas de um quadro kanban chamado %q (%s). "+
		"Responda apenas com um nome de coluna por linha, sem numeração.", title, description)
	out, err := gen.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate columns: %w", err)
	}

	var columns []string
	for _, line := range parseLines(out) {
		columns = append(columns, line)
		if len(columns) == maxSuggestions {
			break
		}
	}
	if len(columns) == 0 {
		return nil, errors.New("generator returned no columns")
	}
	return columns, nil
}

// SuggestTasks asks the generator for tasks of a column. Lines of the form
// "title | description" carry a description.
func SuggestTasks(ctx context.Context, gen TextGenerator, c *Context, column, hint string) ([]TaskDraft, error) {
	if gen == nil {
		return nil, ErrNoGenerator
	}
	prompt := fmt.Sprintf("Quadro:\n%s\nSugira novas tarefas para a coluna %q. %s\n"+
		"Responda com uma tarefa por linha no formato: título | descrição curta.", DescribeBoard(c), column, hint)
	out, err := gen.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tasks: %w", err)
	}

	var drafts []TaskDraft
	for _, line := range parseLines(out) {
		title, desc, _ := strings.Cut(line, "|")
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		drafts = append(drafts, TaskDraft{Title: title, Description: strings.TrimSpace(desc)})
		if len(drafts) == maxSuggestions {
			break
		}
	}
	if len(drafts) == 0 {
		return nil, errors.New("generator returned no tasks")
	}
	return drafts, nil
}

// parseLines splits generated text into items, dropping bullets, numbering
// and duplicates.
func parseLines(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeftFunc(line, func(r rune) bool {
			return unicode.IsDigit(r) || r == '-' || r == '*' || r == '•' || r == '.' || r == ')' || unicode.IsSpace(r)
		})
		line = strings.Trim(line, "\"*")
		if line == "" {
			continue
		}
		key := strings.ToLower(line)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, line)
	}
	return out
}
