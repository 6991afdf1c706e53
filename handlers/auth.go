package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/services"
)

// AuthHandler handles authentication-related endpoints
type AuthHandler struct {
	authService *services.AuthService
	dataService *database.DataService
	publicURL   string
	exposeLinks bool
}

// NewAuthHandler creates the handler. With exposeLinks the generated links
// are returned in responses, for development setups without SMTP.
func NewAuthHandler(authService *services.AuthService, dataService *database.DataService, publicURL string, exposeLinks bool) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		dataService: dataService,
		publicURL:   strings.TrimRight(publicURL, "/"),
		exposeLinks: exposeLinks,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"senha"`
	Name     string `json:"nome"`
	Phone    string `json:"telefone"`
}

type session struct {
	Token string         `json:"token"`
	User  *database.User `json:"user"`
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

func (h *AuthHandler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

// Signup registers a user with a password and starts a session.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding signup", err)
		return
	}
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	hash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, services.ErrWeakPassword) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeFailure(w, "hashing password", err)
		return
	}

	if _, err := h.dataService.GetUserByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		writeFailure(w, "looking up user", err)
		return
	}

	user := &database.User{
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		Phone:        strings.TrimSpace(req.Phone),
		Active:       true,
		NotifyEmail:  true,
		PasswordHash: hash,
	}
	if h.authService.IsAdminEmail(req.Email) {
		user.Role = database.RoleAdmin
	}
	if err := h.dataService.CreateUser(r.Context(), user); err != nil {
		writeFailure(w, "creating user", err)
		return
	}

	h.startSession(w, http.StatusCreated, user)
}

// Login checks email and password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding login", err)
		return
	}

	user, err := h.dataService.GetUserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		writeFailure(w, "looking up user", err)
		return
	}
	if err := h.authService.Authenticate(user, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	h.startSession(w, http.StatusOK, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, status int, user *database.User) {
	token, err := h.authService.CreateJWT(user)
	if err != nil {
		writeFailure(w, "creating JWT", err)
		return
	}
	writeSuccess(w, status, session{Token: token, User: user})
}

// RequestMagicLink emails a one-time login link. Unknown addresses get the
// same answer so the endpoint can't be used to probe accounts.
func (h *AuthHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	h.sendLink(w, r, services.PurposeLogin)
}

// Recover emails a password reset link.
func (h *AuthHandler) Recover(w http.ResponseWriter, r *http.Request) {
	h.sendLink(w, r, services.PurposeReset)
}

func (h *AuthHandler) sendLink(w http.ResponseWriter, r *http.Request, purpose services.LinkPurpose) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding link request", err)
		return
	}
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	resp := map[string]string{
		"status":  "success",
		"message": "If the address is registered, a link has been sent",
	}

	user, err := h.dataService.GetUserByEmail(r.Context(), req.Email)
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeJSON(w, http.StatusOK, resp)
		return
	case err != nil:
		writeFailure(w, "looking up user", err)
		return
	case !user.Active:
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var link string
	if purpose == services.PurposeReset {
		link, err = h.authService.GenerateResetLink(r.Context(), user.Email, h.baseURL(r))
	} else {
		link, err = h.authService.GenerateMagicLink(r.Context(), user.Email, h.baseURL(r))
	}
	if err != nil {
		log.Printf("Error generating %s link: %v", purpose, err)
		writeError(w, http.StatusInternalServerError, "Failed to generate link")
		return
	}

	if h.exposeLinks {
		resp["magicLink"] = link
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleMagicLink processes a magic link token and redirects to the frontend
func (h *AuthHandler) HandleMagicLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "Missing token")
		return
	}

	email, err := h.authService.ConsumeToken(token, services.PurposeLogin)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired token")
		return
	}

	user, err := h.dataService.GetUserByEmail(r.Context(), email)
	if err != nil || !user.Active {
		writeError(w, http.StatusBadRequest, "Invalid or expired token")
		return
	}

	jwtToken, err := h.authService.CreateJWT(user)
	if err != nil {
		log.Printf("Error creating JWT: %v", err)
		writeError(w, http.StatusInternalServerError, "Authentication error")
		return
	}

	redirectURL := fmt.Sprintf("/?token=%s&email=%s", url.QueryEscape(jwtToken), url.QueryEscape(user.Email))
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// Reset sets a new password using a reset token.
func (h *AuthHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"senha"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, "decoding reset", err)
		return
	}

	hash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, services.ErrWeakPassword) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeFailure(w, "hashing password", err)
		return
	}

	email, err := h.authService.ConsumeToken(req.Token, services.PurposeReset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired token")
		return
	}
	user, err := h.dataService.GetUserByEmail(r.Context(), email)
	if err != nil {
		writeFailure(w, "looking up user", err)
		return
	}
	if err := h.dataService.SetPasswordHash(r.Context(), user.ID, hash); err != nil {
		writeFailure(w, "saving password", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// VerifyToken checks if a JWT token is valid
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	tokenString, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing authorization header")
		return
	}

	claims, err := h.authService.VerifyJWT(tokenString)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"email":  claims.Email,
		"role":   claims.Role,
		"status": "valid",
	})
}
