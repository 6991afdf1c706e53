package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/kanban"
	"github.com/CrowderSoup/begtask/services"
)

// boardAccess answers who may touch a board: its owner, anyone responsible
// for or participating in one of its tasks, and admins.
type boardAccess struct {
	data *database.DataService
}

func (a boardAccess) board(r *http.Request, boardID string) (*database.Board, *database.User, error) {
	user, ok := currentUser(r)
	if !ok {
		return nil, nil, errUnauthorized
	}
	board, err := a.data.GetBoard(r.Context(), boardID)
	if err != nil {
		return nil, nil, err
	}
	if user.Role == database.RoleAdmin || board.OwnerID == user.ID {
		return board, user, nil
	}
	member, err := a.data.IsBoardMember(r.Context(), boardID, user.ID)
	if err != nil {
		return nil, nil, err
	}
	if !member {
		return nil, nil, errForbidden
	}
	return board, user, nil
}

// owner is board restricted to the owner and admins.
func (a boardAccess) owner(r *http.Request, boardID string) (*database.Board, *database.User, error) {
	board, user, err := a.board(r, boardID)
	if err != nil {
		return nil, nil, err
	}
	if user.Role != database.RoleAdmin && board.OwnerID != user.ID {
		return nil, nil, errForbidden
	}
	return board, user, nil
}

func (a boardAccess) column(r *http.Request, columnID string) (*database.Column, *database.Board, *database.User, error) {
	col, err := a.data.GetColumn(r.Context(), columnID)
	if err != nil {
		return nil, nil, nil, err
	}
	board, user, err := a.board(r, col.BoardID)
	if err != nil {
		return nil, nil, nil, err
	}
	return col, board, user, nil
}

func (a boardAccess) task(r *http.Request, taskID string) (*database.Task, *database.Board, *database.User, error) {
	task, err := a.data.GetTask(r.Context(), taskID)
	if err != nil {
		return nil, nil, nil, err
	}
	boardID, err := a.data.BoardIDForTask(r.Context(), taskID)
	if err != nil {
		return nil, nil, nil, err
	}
	board, user, err := a.board(r, boardID)
	if err != nil {
		return nil, nil, nil, err
	}
	return task, board, user, nil
}

// refresh reloads a board's shared view after a change outside the
// reordering protocol.
func refresh(ctx context.Context, boards *kanban.Registry, boardID string) {
	if _, err := boards.Refresh(ctx, boardID); err != nil {
		log.Printf("Warning: failed to refresh board %s: %v", boardID, err)
	}
}

// receiveFile stores the "file" field of a multipart request.
func receiveFile(w http.ResponseWriter, r *http.Request, storage *services.FileStorage, bucket string, maxSize int64) (*services.StoredFile, string, error) {
	if maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<20)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", services.ErrFileTooLarge
		}
		return nil, "", invalid("missing file")
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	stored, err := storage.Save(bucket, header.Filename, contentType, file)
	if err != nil {
		return nil, "", err
	}
	name := strings.TrimSpace(header.Filename)
	if name == "" {
		name = stored.Name
	}
	return stored, name, nil
}

// boardUsers returns the owner and every responsible user of a snapshot.
func boardUsers(ctx context.Context, data *database.DataService, snapshot *database.KanbanData) []database.User {
	seen := map[string]bool{}
	ids := []string{snapshot.Board.OwnerID}
	for _, t := range snapshot.Tasks {
		if t.ResponsibleID != nil {
			ids = append(ids, *t.ResponsibleID)
		}
	}

	var users []database.User
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		u, err := data.GetUser(ctx, id)
		if err != nil {
			log.Printf("Warning: failed to load user %s: %v", id, err)
			continue
		}
		users = append(users, *u)
	}
	return users
}
