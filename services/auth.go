package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/CrowderSoup/begtask/config"
	"github.com/CrowderSoup/begtask/database"
)

const minPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWeakPassword       = fmt.Errorf("password must have at least %d characters", minPasswordLength)
)

// LinkPurpose separates login links from password reset links so one can't
// be redeemed as the other.
type LinkPurpose string

const (
	PurposeLogin LinkPurpose = "login"
	PurposeReset LinkPurpose = "reset"
)

type oneTimeToken struct {
	email   string
	purpose LinkPurpose
	expires time.Time
}

// Claims is what a session token carries.
type Claims struct {
	UserID string
	Email  string
	Role   string
}

type AuthService struct {
	mu     sync.Mutex
	tokens map[string]oneTimeToken // Map of token -> email

	jwtSecret   []byte
	tokenTTL    time.Duration
	linkTTL     time.Duration
	adminEmails map[string]bool
	mailer      Mailer
	now         func() time.Time
}

// NewAuthService creates the service. mailer may be nil, in which case links
// are only returned to the caller.
func NewAuthService(cfg config.AuthConfig, mailer Mailer) *AuthService {
	admins := make(map[string]bool, len(cfg.AdminEmails))
	for _, email := range cfg.AdminEmails {
		admins[strings.ToLower(strings.TrimSpace(email))] = true
	}
	return &AuthService{
		tokens:      make(map[string]oneTimeToken),
		jwtSecret:   []byte(cfg.JWTSecret),
		tokenTTL:    cfg.TokenTTL,
		linkTTL:     cfg.LinkTTL,
		adminEmails: admins,
		mailer:      mailer,
		now:         time.Now,
	}
}

// IsAdminEmail reports whether the email is configured to get the admin role.
func (s *AuthService) IsAdminEmail(email string) bool {
	return s.adminEmails[strings.ToLower(strings.TrimSpace(email))]
}

// HashPassword validates and hashes a new password.
func (s *AuthService) HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a stored hash with a candidate password. An empty
// hash never matches.
func (s *AuthService) CheckPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Authenticate checks credentials of an active user.
func (s *AuthService) Authenticate(user *database.User, password string) error {
	if user == nil || !user.Active {
		return ErrInvalidCredentials
	}
	return s.CheckPassword(user.PasswordHash, password)
}

// IssueToken creates a one-time token bound to an email and purpose.
func (s *AuthService) IssueToken(email string, purpose LinkPurpose) (string, error) {
	token, err := generateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	s.tokens[token] = oneTimeToken{
		email:   strings.ToLower(strings.TrimSpace(email)),
		purpose: purpose,
		expires: s.now().Add(s.linkTTL),
	}
	return token, nil
}

// ConsumeToken verifies a one-time token and returns the associated email.
// The token is removed whether or not it matched the purpose.
func (s *AuthService) ConsumeToken(token string, purpose LinkPurpose) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tokens[token]
	if !exists {
		return "", ErrInvalidToken
	}
	delete(s.tokens, token)

	if t.purpose != purpose || s.now().After(t.expires) {
		return "", ErrInvalidToken
	}
	return t.email, nil
}

func (s *AuthService) pruneLocked() {
	now := s.now()
	for token, t := range s.tokens {
		if now.After(t.expires) {
			delete(s.tokens, token)
		}
	}
}

// GenerateMagicLink creates a login token and emails the magic link
func (s *AuthService) GenerateMagicLink(ctx context.Context, email, baseURL string) (string, error) {
	token, err := s.IssueToken(email, PurposeLogin)
	if err != nil {
		return "", err
	}
	link := fmt.Sprintf("%s/api/auth/magic-link?token=%s", baseURL, token)

	body := fmt.Sprintf("Clique no link abaixo para entrar no BegTask:\n\n%s\n\nSe você não pediu este link, ignore este email.", link)
	s.send(ctx, email, "Seu link de acesso ao BegTask", body)
	return link, nil
}

// GenerateResetLink creates a password reset token and emails it.
func (s *AuthService) GenerateResetLink(ctx context.Context, email, baseURL string) (string, error) {
	token, err := s.IssueToken(email, PurposeReset)
	if err != nil {
		return "", err
	}
	link := fmt.Sprintf("%s/reset?token=%s", baseURL, token)

	body := fmt.Sprintf("Para redefinir sua senha do BegTask, acesse:\n\n%s\n\nO link expira em %s.", link, s.linkTTL)
	s.send(ctx, email, "Redefinição de senha do BegTask", body)
	return link, nil
}

func (s *AuthService) send(ctx context.Context, to, subject, body string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		log.Printf("Warning: Failed to send email: %v", err)
	}
}

// CreateJWT generates a session token for a user
func (s *AuthService) CreateJWT(user *database.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  user.Role,
		"exp":   s.now().Add(s.tokenTTL).Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// VerifyJWT verifies a session token and returns its claims
func (s *AuthService) VerifyJWT(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if sub == "" || email == "" {
		return nil, errors.New("subject or email claim missing")
	}
	return &Claims{UserID: sub, Email: email, Role: role}, nil
}

// Helper to generate a secure random token
func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
