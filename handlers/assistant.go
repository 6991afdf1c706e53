package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/begtask/assistant"
	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/kanban"
	"github.com/CrowderSoup/begtask/search"
)

// AssistantHandler serves the board assistant, content generation and
// semantic search.
type AssistantHandler struct {
	boardAccess
	boards    *kanban.Registry
	assistant *assistant.Assistant
	generator assistant.TextGenerator
	index     *search.Service
}

// NewAssistantHandler wires the handler. generator may be nil.
func NewAssistantHandler(data *database.DataService, boards *kanban.Registry, a *assistant.Assistant,
	generator assistant.TextGenerator, index *search.Service) *AssistantHandler {
	return &AssistantHandler{
		boardAccess: boardAccess{data: data},
		boards:      boards,
		assistant:   a,
		generator:   generator,
		index:       index,
	}
}

func (h *AssistantHandler) boardContext(r *http.Request, boardID string) (*assistant.Context, *database.User, error) {
	_, user, err := h.board(r, boardID)
	if err != nil {
		return nil, nil, err
	}
	snapshot, err := h.boards.Snapshot(r.Context(), boardID)
	if err != nil {
		return nil, nil, err
	}
	return assistant.NewContext(snapshot, user.ID, boardUsers(r.Context(), h.data, snapshot)), user, nil
}

// Ask answers a question about the board.
func (h *AssistantHandler) Ask(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	c, user, err := h.boardContext(r, boardID)
	if err != nil {
		writeFailure(w, "preparing assistant", err)
		return
	}
	var req struct {
		Message string `json:"mensagem"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding message", err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "mensagem is required")
		return
	}

	reply := h.assistant.Ask(r.Context(), boardID, user.ID, req.Message, c)
	writeSuccess(w, http.StatusOK, reply)
}

func (h *AssistantHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	_, user, err := h.board(r, boardID)
	if err != nil {
		writeFailure(w, "authorizing board", err)
		return
	}
	writeSuccess(w, http.StatusOK, h.assistant.Transcript(boardID, user.ID))
}

type generateRequest struct {
	Kind     string `json:"kind"`
	ColumnID string `json:"column_id"`
	Hint     string `json:"dica"`
}

// Generate creates columns or tasks suggested by the text generator.
func (h *AssistantHandler) Generate(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	c, _, err := h.boardContext(r, boardID)
	if err != nil {
		writeFailure(w, "preparing assistant", err)
		return
	}
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding request", err)
		return
	}

	var created any
	switch req.Kind {
	case "columns":
		created, err = h.generateColumns(r, c)
	case "tasks":
		created, err = h.generateTasks(r, c, req)
	default:
		writeError(w, http.StatusBadRequest, "kind must be columns or tasks")
		return
	}
	if err != nil {
		if errors.Is(err, assistant.ErrNoGenerator) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		// Some rows may have been created before the failure.
		refresh(r.Context(), h.boards, boardID)
		writeFailure(w, "generating "+req.Kind, err)
		return
	}

	refresh(r.Context(), h.boards, boardID)
	writeSuccess(w, http.StatusCreated, created)
}

func (h *AssistantHandler) generateColumns(r *http.Request, c *assistant.Context) ([]database.Column, error) {
	board := c.Data.Board
	titles, err := assistant.SuggestColumns(r.Context(), h.generator, board.Title, board.Description)
	if err != nil {
		return nil, err
	}
	columns := make([]database.Column, 0, len(titles))
	for _, title := range titles {
		col := database.Column{BoardID: board.ID, Title: title}
		if err := h.data.CreateColumn(r.Context(), &col); err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func (h *AssistantHandler) generateTasks(r *http.Request, c *assistant.Context, req generateRequest) ([]database.Task, error) {
	var column *database.Column
	for i := range c.Data.Columns {
		if c.Data.Columns[i].ID == req.ColumnID {
			column = &c.Data.Columns[i]
		}
	}
	if column == nil {
		return nil, invalid("column_id must name a column of the board")
	}

	drafts, err := assistant.SuggestTasks(r.Context(), h.generator, c, column.Title, req.Hint)
	if err != nil {
		return nil, err
	}
	tasks := make([]database.Task, 0, len(drafts))
	for _, d := range drafts {
		task := database.Task{
			ColumnID:    column.ID,
			Title:       d.Title,
			Description: d.Description,
			Priority:    database.PriorityMedium,
		}
		if err := h.data.CreateTask(r.Context(), &task); err != nil {
			return nil, err
		}
		if h.index.Enabled() {
			if err := h.index.IndexTask(r.Context(), c.Data.Board.ID, task); err != nil {
				log.Printf("Warning: failed to index task %s: %v", task.ID, err)
			}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Search runs a similarity query over the board's tasks.
func (h *AssistantHandler) Search(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	if _, _, err := h.board(r, boardID); err != nil {
		writeFailure(w, "authorizing board", err)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	k := search.DefaultLimit
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "k must be a positive number")
			return
		}
		k = n
	}

	results, err := h.index.Search(r.Context(), boardID, query, k)
	if err != nil {
		if errors.Is(err, search.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeFailure(w, "searching tasks", err)
		return
	}
	writeSuccess(w, http.StatusOK, results)
}
