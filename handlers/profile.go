package handlers

import (
	"net/http"
	"strings"

	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/services"
)

type ProfileHandler struct {
	data    *database.DataService
	storage *services.FileStorage
	maxSize int64
}

func NewProfileHandler(data *database.DataService, storage *services.FileStorage, maxSize int64) *ProfileHandler {
	return &ProfileHandler{data: data, storage: storage, maxSize: maxSize}
}

type profileRequest struct {
	Name           *string `json:"nome"`
	Phone          *string `json:"telefone"`
	NotifyWhatsApp *bool   `json:"notificar_whatsapp"`
	NotifyEmail    *bool   `json:"notificar_email"`
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding profile", err)
		return
	}

	updated := *user
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.NotifyWhatsApp != nil {
		updated.NotifyWhatsApp = *req.NotifyWhatsApp
	}
	if req.NotifyEmail != nil {
		updated.NotifyEmail = *req.NotifyEmail
	}
	if updated.NotifyWhatsApp && updated.Phone == "" {
		writeError(w, http.StatusBadRequest, "telefone is required for WhatsApp notifications")
		return
	}

	if err := h.data.UpdateProfile(r.Context(), &updated); err != nil {
		writeFailure(w, "updating profile", err)
		return
	}
	writeSuccess(w, http.StatusOK, updated)
}

// UploadAvatar replaces the profile picture.
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}
	stored, _, err := receiveFile(w, r, h.storage, services.BucketAvatars, h.maxSize)
	if err != nil {
		writeFailure(w, "storing avatar", err)
		return
	}

	updated := *user
	updated.AvatarURL = stored.URL
	if err := h.data.UpdateProfile(r.Context(), &updated); err != nil {
		_ = h.storage.Delete(stored.URL)
		writeFailure(w, "updating profile", err)
		return
	}
	if user.AvatarURL != "" {
		_ = h.storage.Delete(user.AvatarURL)
	}
	writeSuccess(w, http.StatusOK, updated)
}
