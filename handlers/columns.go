package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/begtask/database"
)

type columnRequest struct {
	Title *string `json:"titulo"`
	Color *string `json:"cor"`
}

func (req *columnRequest) applyTo(c *database.Column) error {
	if req.Title != nil {
		c.Title = strings.TrimSpace(*req.Title)
	}
	if c.Title == "" {
		return invalid("titulo is required")
	}
	if req.Color != nil {
		c.Color = strings.TrimSpace(*req.Color)
	}
	return nil
}

// CreateColumn appends a column to a board.
func (h *BoardHandler) CreateColumn(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	if _, _, err := h.board(r, boardID); err != nil {
		writeFailure(w, "authorizing board", err)
		return
	}
	var req columnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding column", err)
		return
	}
	col := &database.Column{BoardID: boardID}
	if err := req.applyTo(col); err != nil {
		writeFailure(w, "preparing column", err)
		return
	}
	if err := h.data.CreateColumn(r.Context(), col); err != nil {
		writeFailure(w, "creating column", err)
		return
	}
	refresh(r.Context(), h.boards, boardID)
	writeSuccess(w, http.StatusCreated, col)
}

func (h *BoardHandler) UpdateColumn(w http.ResponseWriter, r *http.Request) {
	col, board, _, err := h.column(r, mux.Vars(r)["columnID"])
	if err != nil {
		writeFailure(w, "authorizing column", err)
		return
	}
	var req columnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding column", err)
		return
	}
	if err := req.applyTo(col); err != nil {
		writeFailure(w, "preparing column", err)
		return
	}
	if err := h.data.UpdateColumn(r.Context(), col); err != nil {
		writeFailure(w, "updating column", err)
		return
	}
	refresh(r.Context(), h.boards, board.ID)
	writeSuccess(w, http.StatusOK, col)
}

// DeleteColumn deletes a column with its tasks; remaining columns are
// renumbered.
func (h *BoardHandler) DeleteColumn(w http.ResponseWriter, r *http.Request) {
	col, board, _, err := h.column(r, mux.Vars(r)["columnID"])
	if err != nil {
		writeFailure(w, "authorizing column", err)
		return
	}
	tasks, err := h.data.ListColumnTasks(r.Context(), col.ID)
	if err != nil {
		writeFailure(w, "listing tasks", err)
		return
	}
	files := h.taskFiles(r, tasks)

	if err := h.data.DeleteColumn(r.Context(), col.ID); err != nil {
		writeFailure(w, "deleting column", err)
		return
	}
	h.deleteFiles(files)
	refresh(r.Context(), h.boards, board.ID)
	writeSuccess(w, http.StatusOK, map[string]string{"id": col.ID})
}
