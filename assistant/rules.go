// Package assistant answers questions about a board. A fixed table of
// keyword rules covers the common questions; anything else goes to a text
// generator when one is configured.
package assistant

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/CrowderSoup/begtask/database"
)

// Message is a user question, kept in its original form and normalized for
// matching.
type Message struct {
	Text       string
	Normalized string
}

var accents = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)

func NewMessage(text string) Message {
	normalized := accents.Replace(strings.ToLower(strings.TrimSpace(text)))
	return Message{Text: text, Normalized: strings.Join(strings.Fields(normalized), " ")}
}

// Contains reports whether any of the keywords appears in the message.
func (m Message) Contains(keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(m.Normalized, k) {
			return true
		}
	}
	return false
}

// HasWord is Contains restricted to whole words.
func (m Message) HasWord(words ...string) bool {
	fields := strings.FieldsFunc(m.Normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		for _, w := range words {
			if f == w {
				return true
			}
		}
	}
	return false
}

// Context is what a rule may look at to build its answer.
type Context struct {
	Data   *database.KanbanData
	UserID string
	Users  map[string]string // user id -> display name
	Now    time.Time
}

func (c *Context) columnTitle(id string) string {
	for _, col := range c.Data.Columns {
		if col.ID == id {
			return col.Title
		}
	}
	return "?"
}

func (c *Context) userName(id *string) string {
	if id == nil {
		return "sem responsável"
	}
	if name, ok := c.Users[*id]; ok && name != "" {
		return name
	}
	return "usuário desconhecido"
}

func (c *Context) filter(keep func(t database.Task) bool) []database.Task {
	var out []database.Task
	for _, t := range c.Data.Tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func (c *Context) list(tasks []database.Task, detail func(t database.Task) string) string {
	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "\n- %s (%s)", t.Title, c.columnTitle(t.ColumnID))
		if detail != nil {
			b.WriteString(": " + detail(t))
		}
	}
	return b.String()
}

// Rule is one entry of the dispatch table.
type Rule struct {
	Name    string
	Match   func(m Message) bool
	Respond func(c *Context) string
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func formatDate(t *time.Time) string {
	return t.Format("02/01/2006")
}

// DefaultRules is the rule table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:  "help",
			Match: func(m Message) bool { return m.Contains("ajuda", "o que voce faz", "comandos") },
			Respond: func(c *Context) string {
				return "Posso responder sobre: quantidade de tarefas, colunas, tarefas atrasadas, prazos da semana, " +
					"prioridade alta, tarefas sem responsável e as suas tarefas."
			},
		},
		{
			Name:  "overdue",
			Match: func(m Message) bool { return m.Contains("atrasad", "vencid") },
			Respond: func(c *Context) string {
				today := startOfDay(c.Now)
				late := c.filter(func(t database.Task) bool { return t.DueDate != nil && t.DueDate.Before(today) })
				if len(late) == 0 {
					return "Nenhuma tarefa atrasada. 🎉"
				}
				return fmt.Sprintf("%d tarefa(s) atrasada(s):", len(late)) +
					c.list(late, func(t database.Task) string { return "venceu em " + formatDate(t.DueDate) })
			},
		},
		{
			Name:  "due-soon",
			Match: func(m Message) bool { return m.Contains("prazo", "vence", "entrega", "semana") },
			Respond: func(c *Context) string {
				today := startOfDay(c.Now)
				limit := today.AddDate(0, 0, 7)
				soon := c.filter(func(t database.Task) bool {
					return t.DueDate != nil && !t.DueDate.Before(today) && t.DueDate.Before(limit)
				})
				if len(soon) == 0 {
					return "Nenhuma tarefa vence nos próximos 7 dias."
				}
				sort.SliceStable(soon, func(i, j int) bool { return soon[i].DueDate.Before(*soon[j].DueDate) })
				return fmt.Sprintf("%d tarefa(s) vencem nos próximos 7 dias:", len(soon)) +
					c.list(soon, func(t database.Task) string { return formatDate(t.DueDate) })
			},
		},
		{
			Name:  "high-priority",
			Match: func(m Message) bool { return m.Contains("prioridade", "urgente", "importante") },
			Respond: func(c *Context) string {
				high := c.filter(func(t database.Task) bool { return t.Priority == database.PriorityHigh })
				if len(high) == 0 {
					return "Não há tarefas com prioridade alta."
				}
				return fmt.Sprintf("%d tarefa(s) com prioridade alta:", len(high)) + c.list(high, nil)
			},
		},
		{
			Name:  "mine",
			Match: func(m Message) bool { return m.Contains("minhas tarefas", "minha tarefa", "para mim", "meu trabalho") },
			Respond: func(c *Context) string {
				mine := c.filter(func(t database.Task) bool { return t.ResponsibleID != nil && *t.ResponsibleID == c.UserID })
				if len(mine) == 0 {
					return "Você não é responsável por nenhuma tarefa neste quadro."
				}
				return fmt.Sprintf("Você é responsável por %d tarefa(s):", len(mine)) + c.list(mine, nil)
			},
		},
		{
			Name:  "unassigned",
			Match: func(m Message) bool { return m.Contains("sem responsavel", "sem dono", "ninguem") },
			Respond: func(c *Context) string {
				free := c.filter(func(t database.Task) bool { return t.ResponsibleID == nil })
				if len(free) == 0 {
					return "Todas as tarefas têm responsável."
				}
				return fmt.Sprintf("%d tarefa(s) sem responsável:", len(free)) + c.list(free, nil)
			},
		},
		{
			Name:  "who",
			Match: func(m Message) bool { return m.Contains("quem", "responsaveis") },
			Respond: func(c *Context) string {
				counts := make(map[string]int)
				for _, t := range c.Data.Tasks {
					counts[c.userName(t.ResponsibleID)]++
				}
				names := make([]string, 0, len(counts))
				for name := range counts {
					names = append(names, name)
				}
				sort.Strings(names)
				var b strings.Builder
				b.WriteString("Tarefas por responsável:")
				for _, name := range names {
					fmt.Fprintf(&b, "\n- %s: %d", name, counts[name])
				}
				return b.String()
			},
		},
		{
			Name:  "columns",
			Match: func(m Message) bool { return m.Contains("coluna", "etapa", "fluxo") },
			Respond: func(c *Context) string {
				if len(c.Data.Columns) == 0 {
					return "Este quadro ainda não tem colunas."
				}
				var b strings.Builder
				fmt.Fprintf(&b, "O quadro tem %d coluna(s):", len(c.Data.Columns))
				for _, col := range c.Data.Columns {
					n := len(c.filter(func(t database.Task) bool { return t.ColumnID == col.ID }))
					fmt.Fprintf(&b, "\n- %s: %d tarefa(s)", col.Title, n)
				}
				return b.String()
			},
		},
		{
			Name:  "count",
			Match: func(m Message) bool { return m.Contains("quantas", "quantidade", "total", "resumo") },
			Respond: func(c *Context) string {
				total := len(c.Data.Tasks)
				high := len(c.filter(func(t database.Task) bool { return t.Priority == database.PriorityHigh }))
				return fmt.Sprintf("O quadro %q tem %d tarefa(s) em %d coluna(s), %d com prioridade alta.",
					c.Data.Board.Title, total, len(c.Data.Columns), high)
			},
		},
		{
			Name:  "greeting",
			Match: func(m Message) bool { return m.HasWord("oi", "ola", "opa") || m.Contains("bom dia", "boa tarde", "boa noite") },
			Respond: func(c *Context) string {
				return fmt.Sprintf("Olá! Sou o assistente do quadro %q. Pergunte sobre prazos, prioridades ou responsáveis.",
					c.Data.Board.Title)
			},
		},
	}
}

// Match returns the first rule matching m.
func Match(rules []Rule, m Message) (Rule, bool) {
	for _, r := range rules {
		if r.Match(m) {
			return r, true
		}
	}
	return Rule{}, false
}
