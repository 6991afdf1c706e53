package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/search"
	"github.com/CrowderSoup/begtask/services"
)

type taskRequest struct {
	Title         *string `json:"titulo"`
	Description   *string `json:"descricao"`
	Priority      *string `json:"prioridade"`
	DueDate       *string `json:"data_entrega"`
	ResponsibleID *string `json:"responsavel_id"`
}

// parseDueDate accepts a plain date or an RFC 3339 timestamp.
func parseDueDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, invalid("data_entrega must be YYYY-MM-DD or RFC 3339")
	}
	return &t, nil
}

// applyTo copies the set fields onto t. Empty strings clear the due date and
// the responsible user.
func (req *taskRequest) applyTo(ctx context.Context, t *database.Task, users UserStore) error {
	if req.Title != nil {
		t.Title = strings.TrimSpace(*req.Title)
	}
	if t.Title == "" {
		return invalid("titulo is required")
	}
	if req.Description != nil {
		t.Description = strings.TrimSpace(*req.Description)
	}
	if req.Priority != nil {
		p, err := database.ParsePriority(*req.Priority)
		if err != nil {
			return invalid(err.Error())
		}
		t.Priority = p
	}
	if req.DueDate != nil {
		due, err := parseDueDate(*req.DueDate)
		if err != nil {
			return err
		}
		t.DueDate = due
	}
	if req.ResponsibleID != nil {
		id := strings.TrimSpace(*req.ResponsibleID)
		if id == "" {
			t.ResponsibleID = nil
			return nil
		}
		if _, err := users.GetUser(ctx, id); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return invalid("responsavel_id is not a known user")
			}
			return err
		}
		t.ResponsibleID = &id
	}
	return nil
}

func sameResponsible(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// CreateTask appends a task to a column.
func (h *BoardHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	col, board, _, err := h.column(r, mux.Vars(r)["columnID"])
	if err != nil {
		writeFailure(w, "authorizing column", err)
		return
	}
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding task", err)
		return
	}
	task := &database.Task{ColumnID: col.ID, Priority: database.PriorityMedium}
	if err := req.applyTo(r.Context(), task, h.data); err != nil {
		writeFailure(w, "preparing task", err)
		return
	}
	if err := h.data.CreateTask(r.Context(), task); err != nil {
		writeFailure(w, "creating task", err)
		return
	}

	h.indexTask(r.Context(), board.ID, *task)
	if task.ResponsibleID != nil {
		h.notifyAssigned(*task, board.Title)
	}
	refresh(r.Context(), h.boards, board.ID)
	writeSuccess(w, http.StatusCreated, task)
}

type taskDetail struct {
	Task         *database.Task        `json:"task"`
	Participants []database.User       `json:"participantes"`
	Comments     []database.Comment    `json:"comentarios"`
	Attachments  []database.Attachment `json:"anexos"`
}

// GetTask returns a task with its participants, comments and attachments.
func (h *BoardHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, _, _, err := h.task(r, mux.Vars(r)["taskID"])
	if err != nil {
		writeFailure(w, "authorizing task", err)
		return
	}
	detail := taskDetail{Task: task}
	if detail.Participants, err = h.data.ListParticipants(r.Context(), task.ID); err != nil {
		writeFailure(w, "listing participants", err)
		return
	}
	if detail.Comments, err = h.data.ListComments(r.Context(), task.ID); err != nil {
		writeFailure(w, "listing comments", err)
		return
	}
	if detail.Attachments, err = h.data.ListAttachments(r.Context(), task.ID); err != nil {
		writeFailure(w, "listing attachments", err)
		return
	}
	writeSuccess(w, http.StatusOK, detail)
}

// UpdateTask edits a task. Column and position only change through moves.
func (h *BoardHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	task, board, _, err := h.task(r, mux.Vars(r)["taskID"])
	if err != nil {
		writeFailure(w, "authorizing task", err)
		return
	}
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding task", err)
		return
	}

	before := *task
	if err := req.applyTo(r.Context(), task, h.data); err != nil {
		writeFailure(w, "preparing task", err)
		return
	}
	if err := h.data.UpdateTask(r.Context(), task); err != nil {
		writeFailure(w, "updating task", err)
		return
	}

	if search.TaskContent(before) != search.TaskContent(*task) {
		h.indexTask(r.Context(), board.ID, *task)
	}
	if task.ResponsibleID != nil && !sameResponsible(before.ResponsibleID, task.ResponsibleID) {
		h.notifyAssigned(*task, board.Title)
	}
	refresh(r.Context(), h.boards, board.ID)
	writeSuccess(w, http.StatusOK, task)
}

// DeleteTask removes a task and tells its responsible user.
func (h *BoardHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	task, board, _, err := h.task(r, mux.Vars(r)["taskID"])
	if err != nil {
		writeFailure(w, "authorizing task", err)
		return
	}
	files := h.taskFiles(r, []database.Task{*task})

	if err := h.data.DeleteTask(r.Context(), task.ID); err != nil {
		writeFailure(w, "deleting task", err)
		return
	}
	h.deleteFiles(files)

	if task.ResponsibleID != nil {
		deleted, title := *task, board.Title
		h.notifier.Go("task deleted", func(ctx context.Context) error {
			return h.notifier.TaskDeleted(ctx, deleted, title)
		})
	}
	refresh(r.Context(), h.boards, board.ID)
	writeSuccess(w, http.StatusOK, map[string]string{"id": task.ID})
}

// UploadTaskImage replaces the cover image of a task.
func (h *BoardHandler) UploadTaskImage(w http.ResponseWriter, r *http.Request) {
	task, board, _, err := h.task(r, mux.Vars(r)["taskID"])
	if err != nil {
		writeFailure(w, "authorizing task", err)
		return
	}
	stored, _, err := receiveFile(w, r, h.storage, services.BucketTaskImages, h.maxSize)
	if err != nil {
		writeFailure(w, "storing task image", err)
		return
	}

	previous := task.ImageURL
	task.ImageURL = stored.URL
	if err := h.data.UpdateTask(r.Context(), task); err != nil {
		h.deleteFiles([]string{stored.URL})
		writeFailure(w, "updating task", err)
		return
	}
	if previous != "" {
		h.deleteFiles([]string{previous})
	}
	refresh(r.Context(), h.boards, board.ID)
	writeSuccess(w, http.StatusOK, task)
}

func (h *BoardHandler) indexTask(ctx context.Context, boardID string, task database.Task) {
	if !h.index.Enabled() {
		return
	}
	if err := h.index.IndexTask(ctx, boardID, task); err != nil {
		log.Printf("Warning: failed to index task %s: %v", task.ID, err)
	}
}

func (h *BoardHandler) notifyAssigned(task database.Task, boardTitle string) {
	h.notifier.Go("task assigned", func(ctx context.Context) error {
		return h.notifier.TaskAssigned(ctx, task, boardTitle)
	})
}
