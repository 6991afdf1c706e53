package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const userColumns = `id, email, name, phone, avatar_url, role, active, notify_whatsapp, notify_email, password_hash, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.AvatarURL, &u.Role, &u.Active,
		&u.NotifyWhatsApp, &u.NotifyEmail, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user, filling in ID, role and creation time.
func (s *DataService) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), u.ID, u.Email, u.Name, u.Phone, u.AvatarURL, u.Role, u.Active,
		u.NotifyWhatsApp, u.NotifyEmail, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *DataService) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", notFound(err))
	}
	return u, nil
}

func (s *DataService) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", notFound(err))
	}
	return u, nil
}

func (s *DataService) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateProfile saves the user-editable profile fields.
func (s *DataService) UpdateProfile(ctx context.Context, u *User) error {
	err := requireRow(s.db.ExecContext(ctx, s.q(`
		UPDATE users SET name = ?, phone = ?, avatar_url = ?, notify_whatsapp = ?, notify_email = ?
		WHERE id = ?
	`), u.Name, u.Phone, u.AvatarURL, u.NotifyWhatsApp, u.NotifyEmail, u.ID))
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

func (s *DataService) SetPasswordHash(ctx context.Context, userID, hash string) error {
	err := requireRow(s.db.ExecContext(ctx, s.q(`UPDATE users SET password_hash = ? WHERE id = ?`), hash, userID))
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// SetUserStatus is the admin operation for toggling access and role.
func (s *DataService) SetUserStatus(ctx context.Context, userID string, active bool, role string) error {
	err := requireRow(s.db.ExecContext(ctx, s.q(`UPDATE users SET active = ?, role = ? WHERE id = ?`), active, role, userID))
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	return nil
}
