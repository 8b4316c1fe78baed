package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const userContextKey contextKey = "user"

// accountClaims are the JWT claims issued to registered accounts.
type accountClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Register creates an account and returns it with a signed token.
func (s *Server) Register(ctx context.Context, email, password, displayName string) (User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, "", fmt.Errorf("%w: valid email is required", ErrValidation)
	}
	if len(password) < 8 {
		return User{}, "", fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.DisplayName, string(hash), formatTime(user.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return User{}, "", fmt.Errorf("%w: email already registered", ErrValidation)
		}
		return User{}, "", fmt.Errorf("register user: %w", err)
	}

	token, err := s.signToken(user)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}

// Login verifies credentials and returns the account with a signed token.
func (s *Server) Login(ctx context.Context, email, password string) (User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var (
		user      User
		hash      string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash, created_at FROM users WHERE email = ?`, email).
		Scan(&user.ID, &user.Email, &user.DisplayName, &hash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	}
	if err != nil {
		return User{}, "", fmt.Errorf("login: %w", err)
	}
	user.CreatedAt = parseTime(createdAt)

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, "", fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	}

	token, err := s.signToken(user)
	if err != nil {
		return User{}, "", err
	}
	return user, token, nil
}

func (s *Server) signToken(user User) (string, error) {
	claims := accountClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (s *Server) parseAccountToken(raw string) (string, error) {
	var claims accountClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return claims.Subject, nil
}

// requireAccount guards account-scoped routes with a bearer JWT and stores
// the user id on the request context.
func (s *Server) requireAccount(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := parseBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		userID, err := s.parseAccountToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, userID)
		next(w, r.WithContext(ctx))
	}
}

func parseBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return header
}

func userIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userContextKey).(string); ok {
		return v
	}
	return ""
}
