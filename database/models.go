package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority is stored and sent in the Portuguese spelling the web client uses.
type Priority string

const (
	PriorityLow    Priority = "baixa"
	PriorityMedium Priority = "media"
	PriorityHigh   Priority = "alta"
)

// ParsePriority accepts both the stored spelling and the English aliases.
// An empty value defaults to medium.
func ParsePriority(value string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return PriorityMedium, nil
	case "baixa", "low":
		return PriorityLow, nil
	case "media", "média", "medium":
		return PriorityMedium, nil
	case "alta", "high":
		return PriorityHigh, nil
	}
	return "", fmt.Errorf("invalid priority %q", value)
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User doubles as the profile record.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"nome"`
	Phone          string    `json:"telefone,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	Role           string    `json:"role"`
	Active         bool      `json:"ativo"`
	NotifyWhatsApp bool      `json:"notificar_whatsapp"`
	NotifyEmail    bool      `json:"notificar_email"`
	PasswordHash   string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

type Board struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"titulo"`
	Description  string    `json:"descricao,omitempty"`
	Public       bool      `json:"publico"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Protected reports whether the public view of the board needs a password.
func (b Board) Protected() bool {
	return b.PasswordHash != ""
}

type Column struct {
	ID       string `json:"id"`
	BoardID  string `json:"board_id"`
	Title    string `json:"titulo"`
	Position int    `json:"posicao"`
	Color    string `json:"cor,omitempty"`
}

type Task struct {
	ID            string     `json:"id"`
	ColumnID      string     `json:"column_id"`
	Title         string     `json:"titulo"`
	Description   string     `json:"descricao,omitempty"`
	Priority      Priority   `json:"prioridade"`
	Position      int        `json:"posicao"`
	DueDate       *time.Time `json:"data_entrega,omitempty"`
	ResponsibleID *string    `json:"responsavel_id,omitempty"`
	ImageURL      string     `json:"imagem_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	Body      string    `json:"conteudo"`
	CreatedAt time.Time `json:"created_at"`
}

type Attachment struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	Name        string    `json:"nome"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"tamanho"`
	CreatedAt   time.Time `json:"created_at"`
}

// Embedding is the stored vector for one task, scoped to its board.
type Embedding struct {
	TaskID  string
	BoardID string
	Content string
	Vector  []float32
}

// KanbanData is a full board snapshot: the board, its columns ordered by
// position, and every task of those columns ordered by column then position.
type KanbanData struct {
	Board   Board    `json:"board"`
	Columns []Column `json:"columns"`
	Tasks   []Task   `json:"tasks"`
}

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.New().String()
}
