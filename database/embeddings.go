package database

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// UpsertEmbedding stores or replaces the vector of a task.
func (s *DataService) UpsertEmbedding(ctx context.Context, e Embedding) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO task_embeddings (task_id, board_id, content, embedding, dimensions)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (task_id) DO UPDATE SET
			board_id = excluded.board_id, content = excluded.content,
			embedding = excluded.embedding, dimensions = excluded.dimensions
	`), e.TaskID, e.BoardID, e.Content, float32ToBlob(e.Vector), len(e.Vector))
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

// ListEmbeddings returns every stored vector of a board.
func (s *DataService) ListEmbeddings(ctx context.Context, boardID string) ([]Embedding, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT task_id, board_id, content, embedding, dimensions FROM task_embeddings WHERE board_id = ?
	`), boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []Embedding
	for rows.Next() {
		var (
			e    Embedding
			blob []byte
			dims int
		)
		if err := rows.Scan(&e.TaskID, &e.BoardID, &e.Content, &blob, &dims); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		e.Vector = blobToFloat32(blob, dims)
		embeddings = append(embeddings, e)
	}
	return embeddings, rows.Err()
}

func (s *DataService) DeleteEmbedding(ctx context.Context, taskID string) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM task_embeddings WHERE task_id = ?`), taskID); err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}

func float32ToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func blobToFloat32(b []byte, dims int) []float32 {
	v := make([]float32, dims)
	for i := 0; i < dims && i*4+4 <= len(b); i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
