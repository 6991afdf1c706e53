// Package search indexes tasks as embeddings and answers similarity queries
// scoped to one board.
package search

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/CrowderSoup/begtask/database"
)

const (
	DefaultLimit = 5
	MaxLimit     = 50
)

// ErrNotConfigured is returned when no embedder is available.
var ErrNotConfigured = errors.New("semantic search is not configured")

// Store is the part of the data layer the index needs.
type Store interface {
	UpsertEmbedding(ctx context.Context, e database.Embedding) error
	ListEmbeddings(ctx context.Context, boardID string) ([]database.Embedding, error)
	DeleteEmbedding(ctx context.Context, taskID string) error
	ListBoardTasks(ctx context.Context, boardID string) ([]database.Task, error)
}

// Result is one scored match.
type Result struct {
	TaskID  string  `json:"task_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type Service struct {
	store    Store
	embedder Embedder
}

// NewService creates the service. With a nil embedder every operation
// returns ErrNotConfigured.
func NewService(store Store, embedder Embedder) *Service {
	return &Service{store: store, embedder: embedder}
}

func (s *Service) Enabled() bool {
	return s.embedder != nil
}

// TaskContent is the text embedded for a task.
func TaskContent(t database.Task) string {
	if t.Description == "" {
		return t.Title
	}
	return t.Title + "\n" + t.Description
}

// IndexTask embeds a task and stores the vector.
func (s *Service) IndexTask(ctx context.Context, boardID string, t database.Task) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}
	content := TaskContent(t)
	vectors, err := s.embedder.Embed(ctx, []string{content})
	if err != nil {
		return fmt.Errorf("failed to embed task %s: %w", t.ID, err)
	}
	return s.store.UpsertEmbedding(ctx, database.Embedding{
		TaskID:  t.ID,
		BoardID: boardID,
		Content: content,
		Vector:  normalize(vectors[0]),
	})
}

// RemoveTask drops the vector of a task.
func (s *Service) RemoveTask(ctx context.Context, taskID string) error {
	return s.store.DeleteEmbedding(ctx, taskID)
}

// Reindex embeds every task of a board again and returns how many were
// stored.
func (s *Service) Reindex(ctx context.Context, boardID string) (int, error) {
	if !s.Enabled() {
		return 0, ErrNotConfigured
	}
	tasks, err := s.store.ListBoardTasks(ctx, boardID)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	contents := make([]string, len(tasks))
	for i, t := range tasks {
		contents[i] = TaskContent(t)
	}
	vectors, err := s.embedder.Embed(ctx, contents)
	if err != nil {
		return 0, fmt.Errorf("failed to embed board %s: %w", boardID, err)
	}

	for i, t := range tasks {
		if err := s.store.UpsertEmbedding(ctx, database.Embedding{
			TaskID:  t.ID,
			BoardID: boardID,
			Content: contents[i],
			Vector:  normalize(vectors[i]),
		}); err != nil {
			return i, err
		}
	}
	return len(tasks), nil
}

// Search embeds the query and returns the k most similar tasks of the board,
// best first. Vectors of a different dimension are skipped.
func (s *Service) Search(ctx context.Context, boardID, query string, k int) ([]Result, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}
	if k <= 0 {
		k = DefaultLimit
	}
	if k > MaxLimit {
		k = MaxLimit
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	q := normalize(vectors[0])

	stored, err := s.store.ListEmbeddings(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return topK(q, stored, k), nil
}

func topK(q []float32, stored []database.Embedding, k int) []Result {
	h := &minHeap{}
	heap.Init(h)
	for _, e := range stored {
		if len(e.Vector) != len(q) {
			continue
		}
		score := dotProduct(q, normalize(e.Vector))
		if h.Len() < k {
			heap.Push(h, Result{TaskID: e.TaskID, Content: e.Content, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = Result{TaskID: e.TaskID, Content: e.Content, Score: score}
			heap.Fix(h, 0)
		}
	}

	results := make([]Result, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(Result)
	}
	return results
}

// minHeap keeps the k best results with the worst at the root.
type minHeap []Result

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(Result)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
