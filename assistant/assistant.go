package assistant

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/CrowderSoup/begtask/database"
)

const (
	// FallbackReply replaces the answer when text generation fails.
	FallbackReply = "Desculpe, não consegui responder agora. Tente novamente em instantes."

	// UnknownReply is used when no rule matches and no generator is set.
	UnknownReply = "Não entendi a pergunta. Digite \"ajuda\" para ver o que posso responder."

	maxTranscript = 100
)

const systemPrompt = "Você é o assistente do BegTask, um quadro kanban. Responda em português, de forma curta, " +
	"usando apenas as informações do quadro fornecido."

// Entry is one line of a conversation.
type Entry struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	Rule    string    `json:"rule,omitempty"`
	At      time.Time `json:"at"`
}

// Assistant answers questions and keeps a short transcript per board and
// user.
type Assistant struct {
	rules     []Rule
	generator TextGenerator
	now       func() time.Time

	mu          sync.Mutex
	transcripts map[string][]Entry
}

// New builds an assistant. generator may be nil.
func New(rules []Rule, generator TextGenerator) *Assistant {
	return &Assistant{
		rules:       rules,
		generator:   generator,
		now:         time.Now,
		transcripts: make(map[string][]Entry),
	}
}

// Answer replies to text using c. A matched rule always wins over the
// generator.
func (a *Assistant) Answer(ctx context.Context, text string, c *Context) Entry {
	if c.Now.IsZero() {
		c.Now = a.now()
	}
	m := NewMessage(text)

	if rule, ok := Match(a.rules, m); ok {
		return Entry{Role: "assistant", Content: rule.Respond(c), Rule: rule.Name, At: a.now()}
	}

	if a.generator == nil {
		return Entry{Role: "assistant", Content: UnknownReply, Rule: "fallback", At: a.now()}
	}

	prompt := fmt.Sprintf("Quadro:\n%s\nPergunta: %s", DescribeBoard(c), text)
	reply, err := a.generator.Generate(ctx, systemPrompt, prompt)
	if err != nil || reply == "" {
		log.Printf("Error generating assistant reply for board %s: %v", c.Data.Board.ID, err)
		reply = FallbackReply
	}
	return Entry{Role: "assistant", Content: reply, Rule: "generator", At: a.now()}
}

// Ask answers and records both sides in the transcript of boardID/userID.
func (a *Assistant) Ask(ctx context.Context, boardID, userID, text string, c *Context) Entry {
	question := Entry{Role: "user", Content: text, At: a.now()}
	answer := a.Answer(ctx, text, c)

	key := boardID + "/" + userID
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := append(a.transcripts[key], question, answer)
	if len(entries) > maxTranscript {
		entries = entries[len(entries)-maxTranscript:]
	}
	a.transcripts[key] = entries
	return answer
}

// Transcript returns a copy of the conversation of a user on a board.
func (a *Assistant) Transcript(boardID, userID string) []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Entry{}, a.transcripts[boardID+"/"+userID]...)
}

// DescribeBoard renders the board as plain text for a prompt.
func DescribeBoard(c *Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Título: %s\n", c.Data.Board.Title)
	if c.Data.Board.Description != "" {
		fmt.Fprintf(&b, "Descrição: %s\n", c.Data.Board.Description)
	}
	for _, col := range c.Data.Columns {
		fmt.Fprintf(&b, "Coluna %q:\n", col.Title)
		for _, t := range c.Data.Tasks {
			if t.ColumnID != col.ID {
				continue
			}
			fmt.Fprintf(&b, "  - %s [prioridade %s, responsável %s", t.Title, t.Priority, c.userName(t.ResponsibleID))
			if t.DueDate != nil {
				fmt.Fprintf(&b, ", entrega %s", formatDate(t.DueDate))
			}
			b.WriteString("]\n")
		}
	}
	return b.String()
}

// NewContext builds a rule context from a snapshot and the known users.
func NewContext(data *database.KanbanData, userID string, users []database.User) *Context {
	names := make(map[string]string, len(users))
	for _, u := range users {
		name := u.Name
		if name == "" {
			name = u.Email
		}
		names[u.ID] = name
	}
	return &Context{Data: data, UserID: userID, Users: names}
}
