package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/begtask/database"
)

// AdminHandler manages accounts. Routes are wrapped in RequireRole(admin).
type AdminHandler struct {
	data *database.DataService
}

func NewAdminHandler(data *database.DataService) *AdminHandler {
	return &AdminHandler{data: data}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.data.ListUsers(r.Context())
	if err != nil {
		writeFailure(w, "listing users", err)
		return
	}
	writeSuccess(w, http.StatusOK, users)
}

// UpdateUser toggles an account's access and role.
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}
	target, err := h.data.GetUser(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		writeFailure(w, "loading user", err)
		return
	}

	var req struct {
		Active *bool   `json:"ativo"`
		Role   *string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding user", err)
		return
	}

	active, role := target.Active, target.Role
	if req.Active != nil {
		active = *req.Active
	}
	if req.Role != nil {
		role = *req.Role
	}
	if role != database.RoleUser && role != database.RoleAdmin {
		writeError(w, http.StatusBadRequest, "role must be user or admin")
		return
	}
	if target.ID == admin.ID && (!active || role != database.RoleAdmin) {
		writeError(w, http.StatusBadRequest, "admins cannot deactivate or demote themselves")
		return
	}

	if err := h.data.SetUserStatus(r.Context(), target.ID, active, role); err != nil {
		writeFailure(w, "updating user", err)
		return
	}
	target.Active, target.Role = active, role
	writeSuccess(w, http.StatusOK, target)
}
