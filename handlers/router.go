package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/services"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Middleware *AuthMiddleware
	Auth       *AuthHandler
	Boards     *BoardHandler
	Profile    *ProfileHandler
	Assistant  *AssistantHandler
	Realtime   *RealtimeHandler
	Admin      *AdminHandler

	// FilesDir is served under /files/. StaticDir, when set, is served at /.
	FilesDir  string
	StaticDir string
}

func NewRouter(h Handlers) *mux.Router {
	r := mux.NewRouter()

	// Auth routes
	r.HandleFunc("/api/auth/signup", h.Auth.Signup).Methods("POST")
	r.HandleFunc("/api/auth/login", h.Auth.Login).Methods("POST")
	r.HandleFunc("/api/auth/magic-link", h.Auth.RequestMagicLink).Methods("POST")
	r.HandleFunc("/api/auth/magic-link", h.Auth.HandleMagicLink).Methods("GET")
	r.HandleFunc("/api/auth/recover", h.Auth.Recover).Methods("POST")
	r.HandleFunc("/api/auth/reset", h.Auth.Reset).Methods("POST")
	r.HandleFunc("/api/auth/verify", h.Auth.VerifyToken).Methods("GET")

	// Public viewer
	r.HandleFunc("/api/public/boards/{boardID}", h.Boards.PublicBoard).Methods("POST")

	// Everything below needs a session
	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.Middleware.Auth)

	api.HandleFunc("/profile", h.Profile.Get).Methods("GET")
	api.HandleFunc("/profile", h.Profile.Update).Methods("PUT")
	api.HandleFunc("/profile/avatar", h.Profile.UploadAvatar).Methods("POST")

	api.HandleFunc("/boards", h.Boards.ListBoards).Methods("GET")
	api.HandleFunc("/boards", h.Boards.CreateBoard).Methods("POST")
	api.HandleFunc("/boards/{boardID}", h.Boards.GetBoard).Methods("GET")
	api.HandleFunc("/boards/{boardID}", h.Boards.UpdateBoard).Methods("PUT")
	api.HandleFunc("/boards/{boardID}", h.Boards.DeleteBoard).Methods("DELETE")
	api.HandleFunc("/boards/{boardID}/snapshot", h.Boards.Snapshot).Methods("GET")
	api.HandleFunc("/boards/{boardID}/moves", h.Boards.Move).Methods("POST")
	api.HandleFunc("/boards/{boardID}/columns", h.Boards.CreateColumn).Methods("POST")

	api.HandleFunc("/columns/{columnID}", h.Boards.UpdateColumn).Methods("PUT")
	api.HandleFunc("/columns/{columnID}", h.Boards.DeleteColumn).Methods("DELETE")
	api.HandleFunc("/columns/{columnID}/tasks", h.Boards.CreateTask).Methods("POST")

	api.HandleFunc("/tasks/{taskID}", h.Boards.GetTask).Methods("GET")
	api.HandleFunc("/tasks/{taskID}", h.Boards.UpdateTask).Methods("PUT")
	api.HandleFunc("/tasks/{taskID}", h.Boards.DeleteTask).Methods("DELETE")
	api.HandleFunc("/tasks/{taskID}/image", h.Boards.UploadTaskImage).Methods("POST")
	api.HandleFunc("/tasks/{taskID}/comments", h.Boards.ListComments).Methods("GET")
	api.HandleFunc("/tasks/{taskID}/comments", h.Boards.CreateComment).Methods("POST")
	api.HandleFunc("/tasks/{taskID}/participants", h.Boards.ListParticipants).Methods("GET")
	api.HandleFunc("/tasks/{taskID}/participants", h.Boards.AddParticipant).Methods("POST")
	api.HandleFunc("/tasks/{taskID}/participants/{userID}", h.Boards.RemoveParticipant).Methods("DELETE")
	api.HandleFunc("/tasks/{taskID}/attachments", h.Boards.ListAttachments).Methods("GET")
	api.HandleFunc("/tasks/{taskID}/attachments", h.Boards.UploadAttachment).Methods("POST")
	api.HandleFunc("/comments/{commentID}", h.Boards.DeleteComment).Methods("DELETE")

	api.HandleFunc("/boards/{boardID}/assistant", h.Assistant.Ask).Methods("POST")
	api.HandleFunc("/boards/{boardID}/assistant", h.Assistant.Transcript).Methods("GET")
	api.HandleFunc("/boards/{boardID}/generate", h.Assistant.Generate).Methods("POST")
	api.HandleFunc("/boards/{boardID}/search", h.Assistant.Search).Methods("GET")

	// WebSocket route for real-time updates; browsers pass the token as ?token=
	api.HandleFunc("/ws", h.Realtime.HandleWebSocket)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(RequireRole(database.RoleAdmin))
	admin.HandleFunc("/users", h.Admin.ListUsers).Methods("GET")
	admin.HandleFunc("/users/{userID}", h.Admin.UpdateUser).Methods("PATCH")

	if h.FilesDir != "" {
		r.PathPrefix("/files/").Handler(http.StripPrefix("/files/", fileServer(h.FilesDir)))
	}
	if h.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(h.StaticDir)))
	}
	return r
}

// fileServer serves uploaded objects. Nothing under it is rendered as a page
// of this origin, and attachments are always downloaded.
func fileServer(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
		if strings.HasPrefix(r.URL.Path, services.BucketAttachments+"/") {
			w.Header().Set("Content-Disposition", "attachment")
		}
		files.ServeHTTP(w, r)
	})
}
