package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const taskColumns = `t.id, t.column_id, t.title, t.description, t.priority, t.position, t.due_date, t.responsible_id, t.image_url, t.created_at`

func scanTask(row rowScanner) (*Task, error) {
	var (
		t           Task
		priority    string
		due         sql.NullTime
		responsible sql.NullString
	)
	if err := row.Scan(&t.ID, &t.ColumnID, &t.Title, &t.Description, &priority, &t.Position,
		&due, &responsible, &t.ImageURL, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Priority = Priority(priority)
	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}
	if responsible.Valid && responsible.String != "" {
		r := responsible.String
		t.ResponsibleID = &r
	}
	return &t, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (s *DataService) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// ListBoardTasks returns all tasks of a board ordered by column position and
// then by task position.
func (s *DataService) ListBoardTasks(ctx context.Context, boardID string) ([]Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		JOIN board_columns c ON c.id = t.column_id
		WHERE c.board_id = ?
		ORDER BY c.position, c.id, t.position, t.id
	`, boardID)
}

func (s *DataService) ListColumnTasks(ctx context.Context, columnID string) ([]Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks t WHERE t.column_id = ? ORDER BY t.position, t.id
	`, columnID)
}

func (s *DataService) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`), id)
	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", notFound(err))
	}
	return t, nil
}

// BoardIDForTask resolves the board that currently owns a task.
func (s *DataService) BoardIDForTask(ctx context.Context, taskID string) (string, error) {
	var boardID string
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT c.board_id FROM tasks t JOIN board_columns c ON c.id = t.column_id WHERE t.id = ?
	`), taskID).Scan(&boardID)
	if err != nil {
		return "", fmt.Errorf("failed to query task board: %w", notFound(err))
	}
	return boardID, nil
}

// CreateTask appends the task at the end of its column.
func (s *DataService) CreateTask(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	t.CreatedAt = time.Now().UTC()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, s.q(`
			SELECT COALESCE(MAX(position), -1) + 1 FROM tasks WHERE column_id = ?
		`), t.ColumnID).Scan(&t.Position)
		if err != nil {
			return fmt.Errorf("failed to compute task position: %w", err)
		}
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO tasks (id, column_id, title, description, priority, position, due_date, responsible_id, image_url, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`), t.ID, t.ColumnID, t.Title, t.Description, string(t.Priority), t.Position,
			nullableTime(t.DueDate), nullableString(t.ResponsibleID), t.ImageURL, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
		return nil
	})
}

// UpdateTask saves the editable fields; column and position only change
// through MoveTask and UpdateTaskPosition.
func (s *DataService) UpdateTask(ctx context.Context, t *Task) error {
	err := requireRow(s.db.ExecContext(ctx, s.q(`
		UPDATE tasks SET title = ?, description = ?, priority = ?, due_date = ?, responsible_id = ?, image_url = ?
		WHERE id = ?
	`), t.Title, t.Description, string(t.Priority), nullableTime(t.DueDate), nullableString(t.ResponsibleID), t.ImageURL, t.ID))
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

func (s *DataService) UpdateTaskPosition(ctx context.Context, id string, position int) error {
	err := requireRow(s.db.ExecContext(ctx, s.q(`UPDATE tasks SET position = ? WHERE id = ?`), position, id))
	if err != nil {
		return fmt.Errorf("failed to update task %s position: %w", id, err)
	}
	return nil
}

// MoveTask sets the owning column and position of a task in one write.
func (s *DataService) MoveTask(ctx context.Context, id, columnID string, position int) error {
	err := requireRow(s.db.ExecContext(ctx, s.q(`
		UPDATE tasks SET column_id = ?, position = ? WHERE id = ?
	`), columnID, position, id))
	if err != nil {
		return fmt.Errorf("failed to move task %s: %w", id, err)
	}
	return nil
}

// DeleteTask removes the task, its participants, comments and attachments,
// then renumbers the rest of its column.
func (s *DataService) DeleteTask(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var columnID string
		err := tx.QueryRowContext(ctx, s.q(`SELECT column_id FROM tasks WHERE id = ?`), id).Scan(&columnID)
		if err != nil {
			return fmt.Errorf("failed to query task: %w", notFound(err))
		}
		if err := s.deleteTasks(ctx, tx, `id = ?`, id); err != nil {
			return err
		}
		return s.compact(ctx, tx, "tasks", "column_id", columnID)
	})
}
