package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (s *DataService) ListComments(ctx context.Context, taskID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, task_id, user_id, body, created_at FROM comments
		WHERE task_id = ? ORDER BY created_at, id
	`), taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *DataService) GetComment(ctx context.Context, id string) (*Comment, error) {
	var c Comment
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, task_id, user_id, body, created_at FROM comments WHERE id = ?
	`), id).Scan(&c.ID, &c.TaskID, &c.UserID, &c.Body, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query comment: %w", notFound(err))
	}
	return &c, nil
}

func (s *DataService) CreateComment(ctx context.Context, c *Comment) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO comments (id, task_id, user_id, body, created_at) VALUES (?, ?, ?, ?, ?)
	`), c.ID, c.TaskID, c.UserID, c.Body, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

func (s *DataService) DeleteComment(ctx context.Context, id string) error {
	if err := requireRow(s.db.ExecContext(ctx, s.q(`DELETE FROM comments WHERE id = ?`), id)); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

// ListParticipants returns the profiles linked to a task.
func (s *DataService) ListParticipants(ctx context.Context, taskID string) ([]User, error) {
	cols := "u." + strings.ReplaceAll(userColumns, ", ", ", u.")
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+cols+` FROM users u
		JOIN task_participants p ON p.user_id = u.id
		WHERE p.task_id = ? ORDER BY p.created_at, u.email
	`), taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// AddParticipant links a user to a task; adding an existing link is a no-op.
func (s *DataService) AddParticipant(ctx context.Context, taskID, userID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO task_participants (task_id, user_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (task_id, user_id) DO NOTHING
	`), taskID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

func (s *DataService) RemoveParticipant(ctx context.Context, taskID, userID string) error {
	err := requireRow(s.db.ExecContext(ctx, s.q(`
		DELETE FROM task_participants WHERE task_id = ? AND user_id = ?
	`), taskID, userID))
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}

func (s *DataService) CreateAttachment(ctx context.Context, a *Attachment) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	a.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO attachments (id, task_id, name, url, content_type, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), a.ID, a.TaskID, a.Name, a.URL, a.ContentType, a.Size, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

func (s *DataService) ListAttachments(ctx context.Context, taskID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, task_id, name, url, content_type, size, created_at FROM attachments
		WHERE task_id = ? ORDER BY created_at, id
	`), taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	attachments := []Attachment{}
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Name, &a.URL, &a.ContentType, &a.Size, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}
