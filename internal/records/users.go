package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUsernameTaken  = errors.New("username taken")
	ErrInvalidSignup  = errors.New("invalid signup")
	ErrBadCredentials = errors.New("invalid username or password")
)

// User matches the users table.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	RoomsPlayed  int       `json:"roomsPlayed"`
	RoomsEscaped int       `json:"roomsEscaped"`
	BestLevel    int       `json:"bestLevel"`
	BestScore    int       `json:"bestScore"`
}

const userColumns = `id, username, password_hash, created_at, rooms_played, rooms_escaped, best_level, best_score`

func normalizeUsername(u string) string { return strings.TrimSpace(u) }

func validateSignup(u, p string) error {
	if len(u) < 3 || len(u) > 24 {
		return fmt.Errorf("%w: username must be 3-24 chars", ErrInvalidSignup)
	}
	for _, r := range u {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("%w: username: letters, numbers, underscore only", ErrInvalidSignup)
		}
	}
	if len(p) < 8 || len(p) > 72 {
		return fmt.Errorf("%w: password must be 8-72 chars", ErrInvalidSignup)
	}
	return nil
}

// CreateUser validates input, hashes the password and inserts the user.
func (s *Store) CreateUser(ctx context.Context, username, password string) (*User, error) {
	username = normalizeUsername(username)
	if err := validateSignup(username, password); err != nil {
		return nil, err
	}
	if _, err := s.FindUserByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(h),
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
		BestLevel:    1,
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?,?,?,?)`,
		u.ID, u.Username, u.PasswordHash, formatTime(u.CreatedAt)); err != nil {
		// lost a race with another signup for the same name
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Authenticate returns the user when password matches.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.FindUserByUsername(ctx, normalizeUsername(username))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return u, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(username)=lower(?)`, username))
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var created string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &created,
		&u.RoomsPlayed, &u.RoomsEscaped, &u.BestLevel, &u.BestScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

// LeaderRow is one line of the high-score table.
type LeaderRow struct {
	Username     string `json:"username"`
	BestScore    int    `json:"bestScore"`
	BestLevel    int    `json:"bestLevel"`
	RoomsEscaped int    `json:"roomsEscaped"`
}

// Leaderboard lists players who finished at least one room, best score first.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LeaderRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT username, best_score, best_level, rooms_escaped
        FROM users
        WHERE rooms_played > 0
        ORDER BY best_score DESC, best_level DESC, created_at ASC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LeaderRow, 0, limit)
	for rows.Next() {
		var r LeaderRow
		if err := rows.Scan(&r.Username, &r.BestScore, &r.BestLevel, &r.RoomsEscaped); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
