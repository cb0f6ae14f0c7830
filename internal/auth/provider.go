package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	database "github.com/Armour007/fast-tasks/internal"
	"github.com/Armour007/fast-tasks/internal/utils"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("username already exists")
	ErrWeakPassword       = errors.New("weak password")
)

// Credentials is the payload of the login and signin topics.
type Credentials struct {
	Username string `json:"username"`
	Pass     string `json:"pass"`
}

// MissingFields returns the bad-request message for absent fields, or ""
// when both are present.
func (c Credentials) MissingFields() string {
	if c.Username != "" && c.Pass != "" {
		return ""
	}
	msg := []string{"Bad Request"}
	if c.Username == "" {
		msg = append(msg, "Missing username")
	}
	if c.Pass == "" {
		msg = append(msg, "Missing password")
	}
	return strings.Join(msg, "\n")
}

// Token is the reply payload of login and signin.
type Token struct {
	Token string `json:"token"`
}

// Provider verifies and registers credentials.
type Provider interface {
	// VerifyCredentials returns ok=false with a nil error on a mismatch.
	VerifyCredentials(ctx context.Context, username, secret string) (token string, ok bool, err error)
	RegisterCredentials(ctx context.Context, c Credentials) (token string, err error)
}

// SQLProvider keeps users in the 'users' table and issues HS256 tokens.
type SQLProvider struct {
	db     *sqlx.DB
	secret []byte
	ttl    time.Duration
}

func NewSQLProvider(db *sqlx.DB, jwtSecret string, ttl time.Duration) *SQLProvider {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &SQLProvider{db: db, secret: []byte(jwtSecret), ttl: ttl}
}

func (p *SQLProvider) VerifyCredentials(ctx context.Context, username, secret string) (string, bool, error) {
	var u database.User
	err := p.db.GetContext(ctx, &u, "SELECT id, username, hashed_password, created_at, updated_at FROM users WHERE username = $1", username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load user: %w", err)
	}
	if !utils.CheckPasswordHash(secret, u.HashedPassword) {
		return "", false, nil
	}
	tok, err := utils.GenerateJWT(p.secret, u.ID, u.Username, p.ttl)
	if err != nil {
		return "", false, fmt.Errorf("sign token: %w", err)
	}
	return tok, true, nil
}

func (p *SQLProvider) RegisterCredentials(ctx context.Context, c Credentials) (string, error) {
	if ok, reason := utils.ValidatePasswordPolicy(c.Pass, c.Username); !ok {
		return "", fmt.Errorf("%w: %s", ErrWeakPassword, reason)
	}
	hashed, err := utils.HashPassword(c.Pass)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	var id uuid.UUID
	err = p.db.QueryRowxContext(ctx, "INSERT INTO users (username, hashed_password) VALUES ($1, $2) RETURNING id", c.Username, hashed).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", ErrUserExists
		}
		return "", fmt.Errorf("insert user: %w", err)
	}
	return utils.GenerateJWT(p.secret, id, c.Username, p.ttl)
}
