package database

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *DataService) ListColumns(ctx context.Context, boardID string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, board_id, title, position, color FROM board_columns
		WHERE board_id = ? ORDER BY position, id
	`), boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	columns := []Column{}
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.ID, &c.BoardID, &c.Title, &c.Position, &c.Color); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

func (s *DataService) GetColumn(ctx context.Context, id string) (*Column, error) {
	var c Column
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, board_id, title, position, color FROM board_columns WHERE id = ?
	`), id).Scan(&c.ID, &c.BoardID, &c.Title, &c.Position, &c.Color)
	if err != nil {
		return nil, fmt.Errorf("failed to query column: %w", notFound(err))
	}
	return &c, nil
}

// CreateColumn appends the column at the end of its board.
func (s *DataService) CreateColumn(ctx context.Context, c *Column) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, s.q(`
			SELECT COALESCE(MAX(position), -1) + 1 FROM board_columns WHERE board_id = ?
		`), c.BoardID).Scan(&c.Position)
		if err != nil {
			return fmt.Errorf("failed to compute column position: %w", err)
		}
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO board_columns (id, board_id, title, position, color) VALUES (?, ?, ?, ?, ?)
		`), c.ID, c.BoardID, c.Title, c.Position, c.Color)
		if err != nil {
			return fmt.Errorf("failed to insert column: %w", err)
		}
		return nil
	})
}

func (s *DataService) UpdateColumn(ctx context.Context, c *Column) error {
	err := requireRow(s.db.ExecContext(ctx, s.q(`
		UPDATE board_columns SET title = ?, color = ? WHERE id = ?
	`), c.Title, c.Color, c.ID))
	if err != nil {
		return fmt.Errorf("failed to update column: %w", err)
	}
	return nil
}

// UpdateColumnPosition is the single-row write used while renumbering.
func (s *DataService) UpdateColumnPosition(ctx context.Context, id string, position int) error {
	err := requireRow(s.db.ExecContext(ctx, s.q(`UPDATE board_columns SET position = ? WHERE id = ?`), position, id))
	if err != nil {
		return fmt.Errorf("failed to update column %s position: %w", id, err)
	}
	return nil
}

// DeleteColumn deletes the column's tasks and their links before the column
// itself, then renumbers the remaining columns of the board.
func (s *DataService) DeleteColumn(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var boardID string
		err := tx.QueryRowContext(ctx, s.q(`SELECT board_id FROM board_columns WHERE id = ?`), id).Scan(&boardID)
		if err != nil {
			return fmt.Errorf("failed to query column: %w", notFound(err))
		}
		if err := s.deleteTasks(ctx, tx, `column_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM board_columns WHERE id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete column: %w", err)
		}
		return s.compact(ctx, tx, "board_columns", "board_id", boardID)
	})
}

// compact rewrites positions of the rows under parent to 0..n-1, keeping
// their current relative order.
func (s *DataService) compact(ctx context.Context, tx execer, table, parentColumn, parentID string) error {
	rows, err := tx.QueryContext(ctx, s.q(`
		SELECT id, position FROM `+table+` WHERE `+parentColumn+` = ? ORDER BY position, id
	`), parentID)
	if err != nil {
		return fmt.Errorf("failed to query %s positions: %w", table, err)
	}

	type entry struct {
		id       string
		position int
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.position); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan %s position: %w", table, err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for i, e := range entries {
		if e.position == i {
			continue
		}
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE `+table+` SET position = ? WHERE id = ?`), i, e.id); err != nil {
			return fmt.Errorf("failed to compact %s: %w", table, err)
		}
	}
	return nil
}
