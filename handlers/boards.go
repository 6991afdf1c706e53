package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/kanban"
	"github.com/CrowderSoup/begtask/search"
	"github.com/CrowderSoup/begtask/services"
)

var defaultColumns = []string{"A Fazer", "Em Progresso", "Concluído"}

// BoardHandler serves boards, columns, tasks and everything hanging off a
// task.
type BoardHandler struct {
	boardAccess
	boards   *kanban.Registry
	auth     *services.AuthService
	notifier *services.Notifier
	index    *search.Service
	storage  *services.FileStorage
	maxSize  int64
}

func NewBoardHandler(data *database.DataService, boards *kanban.Registry, auth *services.AuthService,
	notifier *services.Notifier, index *search.Service, storage *services.FileStorage, maxSize int64) *BoardHandler {
	return &BoardHandler{
		boardAccess: boardAccess{data: data},
		boards:      boards,
		auth:        auth,
		notifier:    notifier,
		index:       index,
		storage:     storage,
		maxSize:     maxSize,
	}
}

type boardRequest struct {
	Title       *string  `json:"titulo"`
	Description *string  `json:"descricao"`
	Public      *bool    `json:"publico"`
	Password    *string  `json:"senha"`
	Columns     []string `json:"colunas"`
}

// applyTo copies the set fields onto b. An empty password removes the
// protection.
func (req *boardRequest) applyTo(b *database.Board, auth *services.AuthService) error {
	if req.Title != nil {
		b.Title = strings.TrimSpace(*req.Title)
	}
	if b.Title == "" {
		return invalid("titulo is required")
	}
	if req.Description != nil {
		b.Description = strings.TrimSpace(*req.Description)
	}
	if req.Public != nil {
		b.Public = *req.Public
	}
	if req.Password != nil {
		if *req.Password == "" {
			b.PasswordHash = ""
			return nil
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			if errors.Is(err, services.ErrWeakPassword) {
				return invalid(err.Error())
			}
			return err
		}
		b.PasswordHash = hash
	}
	return nil
}

// ListBoards returns the boards the user owns or works on.
func (h *BoardHandler) ListBoards(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}
	boards, err := h.data.ListBoards(r.Context(), user.ID)
	if err != nil {
		writeFailure(w, "listing boards", err)
		return
	}
	writeSuccess(w, http.StatusOK, boards)
}

// CreateBoard creates a board with the requested columns, or the default
// three when none are given.
func (h *BoardHandler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}
	var req boardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding board", err)
		return
	}

	board := &database.Board{OwnerID: user.ID}
	if err := req.applyTo(board, h.auth); err != nil {
		writeFailure(w, "preparing board", err)
		return
	}
	if err := h.data.CreateBoard(r.Context(), board); err != nil {
		writeFailure(w, "creating board", err)
		return
	}

	titles := req.Columns
	if titles == nil {
		titles = defaultColumns
	}
	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		if err := h.data.CreateColumn(r.Context(), &database.Column{BoardID: board.ID, Title: title}); err != nil {
			writeFailure(w, "creating column", err)
			return
		}
	}

	snapshot, err := h.boards.Snapshot(r.Context(), board.ID)
	if err != nil {
		writeFailure(w, "loading board", err)
		return
	}
	writeSuccess(w, http.StatusCreated, snapshot)
}

// GetBoard returns the board snapshot the protocol works on.
func (h *BoardHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	if _, _, err := h.board(r, boardID); err != nil {
		writeFailure(w, "authorizing board", err)
		return
	}
	snapshot, err := h.boards.Snapshot(r.Context(), boardID)
	if err != nil {
		writeFailure(w, "loading board", err)
		return
	}
	writeSuccess(w, http.StatusOK, snapshot)
}

// Snapshot discards the shared view and reads the board again from the
// store.
func (h *BoardHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	if _, _, err := h.board(r, boardID); err != nil {
		writeFailure(w, "authorizing board", err)
		return
	}
	snapshot, err := h.boards.Refresh(r.Context(), boardID)
	if err != nil {
		writeFailure(w, "reloading board", err)
		return
	}
	writeSuccess(w, http.StatusOK, snapshot)
}

func (h *BoardHandler) UpdateBoard(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	board, _, err := h.owner(r, boardID)
	if err != nil {
		writeFailure(w, "authorizing board", err)
		return
	}
	var req boardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding board", err)
		return
	}
	if err := req.applyTo(board, h.auth); err != nil {
		writeFailure(w, "preparing board", err)
		return
	}
	if err := h.data.UpdateBoard(r.Context(), board); err != nil {
		writeFailure(w, "updating board", err)
		return
	}
	refresh(r.Context(), h.boards, boardID)
	writeSuccess(w, http.StatusOK, board)
}

// DeleteBoard removes a board with its columns, tasks and their files.
func (h *BoardHandler) DeleteBoard(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	if _, _, err := h.owner(r, boardID); err != nil {
		writeFailure(w, "authorizing board", err)
		return
	}
	tasks, err := h.data.ListBoardTasks(r.Context(), boardID)
	if err != nil {
		writeFailure(w, "listing tasks", err)
		return
	}
	files := h.taskFiles(r, tasks)

	if err := h.data.DeleteBoard(r.Context(), boardID); err != nil {
		writeFailure(w, "deleting board", err)
		return
	}
	h.deleteFiles(files)
	h.boards.Forget(boardID)
	writeSuccess(w, http.StatusOK, map[string]string{"id": boardID})
}

// Move applies a drag and drop gesture. A failed write answers 409 with the
// board as reloaded from the store.
func (h *BoardHandler) Move(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	if _, _, err := h.board(r, boardID); err != nil {
		writeFailure(w, "authorizing board", err)
		return
	}

	var g kanban.Gesture
	if err := decodeJSON(r, &g); err != nil {
		writeFailure(w, "decoding gesture", err)
		return
	}
	if g.Type != kanban.ItemColumn && g.Type != kanban.ItemTask {
		writeError(w, http.StatusBadRequest, "type must be column or task")
		return
	}

	res, err := h.boards.Apply(r.Context(), boardID, g)
	if err != nil {
		var perr *kanban.PersistError
		switch {
		case errors.As(err, &perr) && perr.Snapshot != nil:
			writeJSON(w, http.StatusConflict, map[string]any{
				"status": "error",
				"error":  "failed to save the new order; the board was reloaded",
				"data":   perr.Snapshot,
			})
		case errors.Is(err, kanban.ErrInvalidGesture):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeFailure(w, "applying gesture", err)
		}
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

// PublicBoard shows a public board without a session. Protected boards need
// their password in the body.
func (h *BoardHandler) PublicBoard(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	board, err := h.data.GetBoard(r.Context(), boardID)
	if err != nil {
		writeFailure(w, "loading board", err)
		return
	}
	if !board.Public {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if board.Protected() {
		var req struct {
			Password string `json:"senha"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeFailure(w, "decoding password", err)
			return
		}
		if err := h.auth.CheckPassword(board.PasswordHash, req.Password); err != nil {
			writeError(w, http.StatusForbidden, "Senha incorreta")
			return
		}
	}

	snapshot, err := h.boards.Snapshot(r.Context(), boardID)
	if err != nil {
		writeFailure(w, "loading board", err)
		return
	}
	writeSuccess(w, http.StatusOK, snapshot)
}

// taskFiles lists the stored files of tasks about to be deleted.
func (h *BoardHandler) taskFiles(r *http.Request, tasks []database.Task) []string {
	var files []string
	for _, t := range tasks {
		if t.ImageURL != "" {
			files = append(files, t.ImageURL)
		}
		attachments, err := h.data.ListAttachments(r.Context(), t.ID)
		if err != nil {
			log.Printf("Warning: failed to list attachments of task %s: %v", t.ID, err)
			continue
		}
		for _, a := range attachments {
			files = append(files, a.URL)
		}
	}
	return files
}

func (h *BoardHandler) deleteFiles(urls []string) {
	for _, u := range urls {
		if err := h.storage.Delete(u); err != nil {
			log.Printf("Warning: failed to delete file %s: %v", u, err)
		}
	}
}
