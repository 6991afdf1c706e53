package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const boardColumns = `id, owner_id, title, description, public, password_hash, created_at`

func scanBoard(row rowScanner) (*Board, error) {
	var b Board
	if err := row.Scan(&b.ID, &b.OwnerID, &b.Title, &b.Description, &b.Public, &b.PasswordHash, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *DataService) CreateBoard(ctx context.Context, b *Board) error {
	if b.ID == "" {
		b.ID = NewID()
	}
	b.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO boards (`+boardColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`), b.ID, b.OwnerID, b.Title, b.Description, b.Public, b.PasswordHash, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert board: %w", err)
	}
	return nil
}

func (s *DataService) GetBoard(ctx context.Context, id string) (*Board, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+boardColumns+` FROM boards WHERE id = ?`), id)
	b, err := scanBoard(row)
	if err != nil {
		return nil, fmt.Errorf("failed to query board: %w", notFound(err))
	}
	return b, nil
}

// ListBoards returns the boards a user owns or works on, as responsible or
// participant of at least one task.
func (s *DataService) ListBoards(ctx context.Context, userID string) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+boardColumns+` FROM boards
		WHERE owner_id = ? OR id IN (`+memberBoardsQuery+`)
		ORDER BY created_at, id
	`), userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}
	defer rows.Close()

	boards := []Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan board: %w", err)
		}
		boards = append(boards, *b)
	}
	return boards, rows.Err()
}

const memberBoardsQuery = `
	SELECT c.board_id FROM board_columns c
	JOIN tasks t ON t.column_id = c.id
	LEFT JOIN task_participants p ON p.task_id = t.id
	WHERE t.responsible_id = ? OR p.user_id = ?`

// IsBoardMember reports whether the user owns the board or works on one of
// its tasks.
func (s *DataService) IsBoardMember(ctx context.Context, boardID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*) FROM boards
		WHERE id = ? AND (owner_id = ? OR id IN (`+memberBoardsQuery+`))
	`), boardID, userID, userID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check board membership: %w", err)
	}
	return n > 0, nil
}

func (s *DataService) UpdateBoard(ctx context.Context, b *Board) error {
	err := requireRow(s.db.ExecContext(ctx, s.q(`
		UPDATE boards SET title = ?, description = ?, public = ?, password_hash = ? WHERE id = ?
	`), b.Title, b.Description, b.Public, b.PasswordHash, b.ID))
	if err != nil {
		return fmt.Errorf("failed to update board: %w", err)
	}
	return nil
}

// DeleteBoard removes the board with all of its columns and tasks.
func (s *DataService) DeleteBoard(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.deleteTasks(ctx, tx, `column_id IN (SELECT id FROM board_columns WHERE board_id = ?)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM board_columns WHERE board_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete columns: %w", err)
		}
		if err := requireRow(tx.ExecContext(ctx, s.q(`DELETE FROM boards WHERE id = ?`), id)); err != nil {
			return fmt.Errorf("failed to delete board: %w", err)
		}
		return nil
	})
}

// deleteTasks removes the tasks matching where, dependents first.
func (s *DataService) deleteTasks(ctx context.Context, tx execer, where string, args ...any) error {
	for _, table := range []string{"task_participants", "comments", "attachments", "task_embeddings"} {
		query := `DELETE FROM ` + table + ` WHERE task_id IN (SELECT id FROM tasks WHERE ` + where + `)`
		if _, err := tx.ExecContext(ctx, s.q(query), args...); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM tasks WHERE `+where), args...); err != nil {
		return fmt.Errorf("failed to delete tasks: %w", err)
	}
	return nil
}

// LoadBoard reads a consistent snapshot of the board from the store.
func (s *DataService) LoadBoard(ctx context.Context, boardID string) (*KanbanData, error) {
	board, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	columns, err := s.ListColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.ListBoardTasks(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return &KanbanData{Board: *board, Columns: columns, Tasks: tasks}, nil
}
