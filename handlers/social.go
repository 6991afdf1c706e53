package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/services"
)

func (h *BoardHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	task, _, _, err := h.task(r, mux.Vars(r)["taskID"])
	if err != nil {
		writeFailure(w, "authorizing task", err)
		return
	}
	comments, err := h.data.ListComments(r.Context(), task.ID)
	if err != nil {
		writeFailure(w, "listing comments", err)
		return
	}
	writeSuccess(w, http.StatusOK, comments)
}

func (h *BoardHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	task, _, user, err := h.task(r, mux.Vars(r)["taskID"])
	if err != nil {
		writeFailure(w, "authorizing task", err)
		return
	}
	var req struct {
		Body string `json:"conteudo"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding comment", err)
		return
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		writeError(w, http.StatusBadRequest, "conteudo is required")
		return
	}

	comment := &database.Comment{TaskID: task.ID, UserID: user.ID, Body: body}
	if err := h.data.CreateComment(r.Context(), comment); err != nil {
		writeFailure(w, "creating comment", err)
		return
	}
	writeSuccess(w, http.StatusCreated, comment)
}

// DeleteComment lets the author or an admin remove a comment.
func (h *BoardHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	comment, err := h.data.GetComment(r.Context(), mux.Vars(r)["commentID"])
	if err != nil {
		writeFailure(w, "loading comment", err)
		return
	}
	_, _, user, err := h.task(r, comment.TaskID)
	if err != nil {
		writeFailure(w, "authorizing task", err)
		return
	}
	if comment.UserID != user.ID && user.Role != database.RoleAdmin {
		writeFailure(w, "deleting comment", errForbidden)
		return
	}
	if err := h.data.DeleteComment(r.Context(), comment.ID); err != nil {
		writeFailure(w, "deleting comment", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"id": comment.ID})
}

func (h *BoardHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	task, _, _, err := h.task(r, mux.Vars(r)["taskID"])
	if err != nil {
		writeFailure(w, "authorizing task", err)
		return
	}
	users, err := h.data.ListParticipants(r.Context(), task.ID)
	if err != nil {
		writeFailure(w, "listing participants", err)
		return
	}
	writeSuccess(w, http.StatusOK, users)
}

// AddParticipant links a user, named by id or email, to a task.
func (h *BoardHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	task, board, _, err := h.task(r, mux.Vars(r)["taskID"])
	if err != nil {
		writeFailure(w, "authorizing task", err)
		return
	}
	var req struct {
		UserID string `json:"user_id"`
		Email  string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding participant", err)
		return
	}

	var participant *database.User
	switch {
	case strings.TrimSpace(req.UserID) != "":
		participant, err = h.data.GetUser(r.Context(), strings.TrimSpace(req.UserID))
	case strings.TrimSpace(req.Email) != "":
		participant, err = h.data.GetUserByEmail(r.Context(), strings.TrimSpace(req.Email))
	default:
		writeError(w, http.StatusBadRequest, "user_id or email is required")
		return
	}
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "unknown user")
			return
		}
		writeFailure(w, "loading participant", err)
		return
	}

	if err := h.data.AddParticipant(r.Context(), task.ID, participant.ID); err != nil {
		writeFailure(w, "adding participant", err)
		return
	}
	refresh(r.Context(), h.boards, board.ID)
	writeSuccess(w, http.StatusCreated, participant)
}

func (h *BoardHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	task, board, _, err := h.task(r, vars["taskID"])
	if err != nil {
		writeFailure(w, "authorizing task", err)
		return
	}
	if err := h.data.RemoveParticipant(r.Context(), task.ID, vars["userID"]); err != nil {
		writeFailure(w, "removing participant", err)
		return
	}
	refresh(r.Context(), h.boards, board.ID)
	writeSuccess(w, http.StatusOK, map[string]string{"user_id": vars["userID"]})
}

func (h *BoardHandler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	task, _, _, err := h.task(r, mux.Vars(r)["taskID"])
	if err != nil {
		writeFailure(w, "authorizing task", err)
		return
	}
	attachments, err := h.data.ListAttachments(r.Context(), task.ID)
	if err != nil {
		writeFailure(w, "listing attachments", err)
		return
	}
	writeSuccess(w, http.StatusOK, attachments)
}

// UploadAttachment stores a file of any type against a task.
func (h *BoardHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	task, _, _, err := h.task(r, mux.Vars(r)["taskID"])
	if err != nil {
		writeFailure(w, "authorizing task", err)
		return
	}
	stored, name, err := receiveFile(w, r, h.storage, services.BucketAttachments, h.maxSize)
	if err != nil {
		writeFailure(w, "storing attachment", err)
		return
	}

	attachment := &database.Attachment{
		TaskID:      task.ID,
		Name:        name,
		URL:         stored.URL,
		ContentType: stored.ContentType,
		Size:        stored.Size,
	}
	if err := h.data.CreateAttachment(r.Context(), attachment); err != nil {
		h.deleteFiles([]string{stored.URL})
		writeFailure(w, "creating attachment", err)
		return
	}
	writeSuccess(w, http.StatusCreated, attachment)
}
