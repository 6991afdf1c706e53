package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/CrowderSoup/begtask/config"
	"github.com/CrowderSoup/begtask/database"
)

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (g *fakeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

func strPtr(s string) *string { return &s }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
	return &t
}

func sampleContext() *Context {
	data := &database.KanbanData{
		Board: database.Board{ID: "b1", Title: "Sprint 12"},
		Columns: []database.Column{
			{ID: "c1", Title: "A fazer", Position: 0},
			{ID: "c2", Title: "Feito", Position: 1},
		},
		Tasks: []database.Task{
			{ID: "t1", ColumnID: "c1", Title: "Relatório", Priority: database.PriorityHigh,
				DueDate: datePtr(2024, 5, 1), ResponsibleID: strPtr("u1")},
			{ID: "t2", ColumnID: "c1", Title: "Planilha", Priority: database.PriorityLow,
				DueDate: datePtr(2024, 5, 12)},
			{ID: "t3", ColumnID: "c2", Title: "Deploy", Priority: database.PriorityMedium, ResponsibleID: strPtr("u2")},
		},
	}
	c := NewContext(data, "u1", []database.User{{ID: "u1", Name: "Ana"}, {ID: "u2", Email: "bia@example.com"}})
	c.Now = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	return c
}

func TestRules(t *testing.T) {
	tests := []struct {
		question string
		rule     string
		contains []string
	}{
		{"Quantas tarefas temos?", "count", []string{"3 tarefa(s)", "2 coluna(s)", "1 com prioridade alta"}},
		{"Tem algo ATRASADO?", "overdue", []string{"Relatório", "01/05/2024"}},
		{"o que vence essa semana", "due-soon", []string{"Planilha", "12/05/2024"}},
		{"tarefas urgentes", "high-priority", []string{"Relatório (A fazer)"}},
		{"quais são minhas tarefas", "mine", []string{"1 tarefa(s)", "Relatório"}},
		{"tarefas sem responsável", "unassigned", []string{"Planilha"}},
		{"quem está trabalhando?", "who", []string{"Ana: 1", "bia@example.com: 1", "sem responsável: 1"}},
		{"me mostra as colunas", "columns", []string{"A fazer: 2 tarefa(s)", "Feito: 1 tarefa(s)"}},
		{"Olá!", "greeting", []string{"Sprint 12"}},
		{"ajuda", "help", []string{"prioridade alta"}},
	}

	a := New(DefaultRules(), nil)
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got := a.Answer(context.Background(), tt.question, sampleContext())
			if got.Rule != tt.rule {
				t.Fatalf("rule = %s, want %s (reply %q)", got.Rule, tt.rule, got.Content)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got.Content, want) {
					t.Fatalf("reply %q misses %q", got.Content, want)
				}
			}
		})
	}
}

func TestFirstMatchWins(t *testing.T) {
	rules := []Rule{
		{Name: "first", Match: func(m Message) bool { return m.Contains("x") }, Respond: func(*Context) string { return "1" }},
		{Name: "second", Match: func(m Message) bool { return m.Contains("x") }, Respond: func(*Context) string { return "2" }},
	}
	got := New(rules, nil).Answer(context.Background(), "x", sampleContext())
	if got.Rule != "first" || got.Content != "1" {
		t.Fatalf("unexpected entry %+v", got)
	}
}

func TestGreetingNeedsWholeWord(t *testing.T) {
	if NewMessage("o que foi feito depois").HasWord("oi") {
		t.Fatal("\"oi\" must not match inside other words")
	}
}

func TestFallbackWithoutGenerator(t *testing.T) {
	got := New(DefaultRules(), nil).Answer(context.Background(), "xyz abc", sampleContext())
	if got.Content != UnknownReply {
		t.Fatalf("unexpected reply %q", got.Content)
	}
}

func TestGeneratorFallback(t *testing.T) {
	gen := &fakeGenerator{reply: "Faltam 2 tarefas."}
	a := New(DefaultRules(), gen)

	got := a.Answer(context.Background(), "xyz abc", sampleContext())
	if got.Content != "Faltam 2 tarefas." || got.Rule != "generator" {
		t.Fatalf("unexpected entry %+v", got)
	}
	if len(gen.prompts) != 1 || !strings.Contains(gen.prompts[0], "Relatório") {
		t.Fatalf("board not described in prompt: %v", gen.prompts)
	}

	gen.err = errors.New("boom")
	if got := a.Answer(context.Background(), "xyz abc", sampleContext()); got.Content != FallbackReply {
		t.Fatalf("expected fixed fallback on error, got %q", got.Content)
	}

	// Rules never reach the generator.
	a.Answer(context.Background(), "quantas tarefas", sampleContext())
	if len(gen.prompts) != 2 {
		t.Fatalf("generator called for a rule match: %d calls", len(gen.prompts))
	}
}

func TestTranscript(t *testing.T) {
	a := New(DefaultRules(), nil)
	a.Ask(context.Background(), "b1", "u1", "ajuda", sampleContext())
	a.Ask(context.Background(), "b1", "u2", "oi", sampleContext())

	got := a.Transcript("b1", "u1")
	if len(got) != 2 || got[0].Role != "user" || got[0].Content != "ajuda" || got[1].Role != "assistant" {
		t.Fatalf("unexpected transcript %+v", got)
	}
	if len(a.Transcript("b1", "u3")) != 0 {
		t.Fatal("expected empty transcript for unknown user")
	}

	for i := 0; i < maxTranscript; i++ {
		a.Ask(context.Background(), "b1", "u1", "oi", sampleContext())
	}
	if n := len(a.Transcript("b1", "u1")); n != maxTranscript {
		t.Fatalf("transcript length = %d, want %d", n, maxTranscript)
	}
}

func TestSuggestColumns(t *testing.T) {
	gen := &fakeGenerator{reply: "1. Backlog\n2. Em andamento\n- Revisão\n\n* Backlog\nConcluído"}
	cols, err := SuggestColumns(context.Background(), gen, "Site", "novo site")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if got := strings.Join(cols, ","); got != "Backlog,Em andamento,Revisão,Concluído" {
		t.Fatalf("columns = %s", got)
	}

	if _, err := SuggestColumns(context.Background(), nil, "Site", ""); !errors.Is(err, ErrNoGenerator) {
		t.Fatalf("expected ErrNoGenerator, got %v", err)
	}
	if _, err := SuggestColumns(context.Background(), &fakeGenerator{reply: "\n\n"}, "Site", ""); err == nil {
		t.Fatal("expected error for empty output")
	}
}

func TestSuggestTasks(t *testing.T) {
	gen := &fakeGenerator{reply: "- Criar layout | wireframes da home\n- Revisar textos\n| sem título"}
	drafts, err := SuggestTasks(context.Background(), gen, sampleContext(), "A fazer", "")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(drafts) != 2 || drafts[0].Title != "Criar layout" || drafts[0].Description != "wireframes da home" ||
		drafts[1].Title != "Revisar textos" || drafts[1].Description != "" {
		t.Fatalf("unexpected drafts %+v", drafts)
	}
}

func TestChatClient(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"bad auth"}}`))
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  resposta \n"}}]}`))
	}))
	defer srv.Close()

	c := NewChatClient(config.AIConfig{APIKey: "key", BaseURL: srv.URL + "/", Model: "m"})
	reply, err := c.Generate(context.Background(), "sys", "pergunta")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "resposta" {
		t.Fatalf("reply = %q", reply)
	}
	if got.Model != "m" || len(got.Messages) != 2 || got.Messages[1].Content != "pergunta" {
		t.Fatalf("unexpected request %+v", got)
	}

	bad := NewChatClient(config.AIConfig{APIKey: "wrong", BaseURL: srv.URL})
	if _, err := bad.Generate(context.Background(), "sys", "p"); err == nil || !strings.Contains(err.Error(), "bad auth") {
		t.Fatalf("expected API error, got %v", err)
	}

	if NewChatClient(config.AIConfig{}) != nil {
		t.Fatal("expected nil client without API key")
	}
}
