package daily

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a player has no attempt or a day has no scene yet.
var ErrNotFound = errors.New("daily: not found")

// Result is one player's finished daily room.
type Result struct {
	UserID    string `json:"userId"`
	Date      string `json:"date"`
	Clicks    int    `json:"clicks"`
	ElapsedMs int64  `json:"elapsedMs"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// AlreadyPlayed reports whether the player has a result for date.
func (s *Store) AlreadyPlayed(ctx context.Context, userID, date string) (bool, error) {
	var cnt int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM daily_results WHERE user_id=? AND date=?`,
		userID, date,
	).Scan(&cnt)
	return cnt > 0, err
}

// InsertResult stores r unless the player already has a result for the day.
// It reports whether a row was written.
func (s *Store) InsertResult(ctx context.Context, r Result) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO daily_results(user_id, date, clicks, elapsed_ms) VALUES(?,?,?,?)`,
		r.UserID, r.Date, r.Clicks, r.ElapsedMs,
	)
	if err != nil {
		return false, fmt.Errorf("insert daily result: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Attempt returns the session id of the player's daily room for date.
func (s *Store) Attempt(ctx context.Context, userID, date string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id FROM daily_attempts WHERE user_id=? AND date=?`,
		userID, date,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load daily attempt: %w", err)
	}
	return id, nil
}

// StartAttempt records sessionID as the player's room for date unless one is
// already recorded. It returns the recorded session id, which differs from
// sessionID when another request got there first.
func (s *Store) StartAttempt(ctx context.Context, userID, date, sessionID string) (string, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO daily_attempts(user_id, date, session_id) VALUES(?,?,?)`,
		userID, date, sessionID,
	); err != nil {
		return "", fmt.Errorf("insert daily attempt: %w", err)
	}
	return s.Attempt(ctx, userID, date)
}

// ClaimAnon moves a guest's attempts and results to userID when they sign in.
// Days the user already played under their account keep the account's rows.
func (s *Store) ClaimAnon(ctx context.Context, anonID, userID string) error {
	if anonID == "" || userID == "" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"daily_attempts", "daily_results"} {
		if _, err := tx.ExecContext(ctx,
			`UPDATE OR IGNORE `+table+` SET user_id=? WHERE user_id=?`, userID, anonID,
		); err != nil {
			return fmt.Errorf("claim %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// Scene is the stored scene shared by every player on Date.
type Scene struct {
	Date        string
	Theme       string
	Description string
	PNG         []byte
}

// Scene loads the scene for date.
func (s *Store) Scene(ctx context.Context, date string) (*Scene, error) {
	sc := Scene{Date: date}
	err := s.db.QueryRowContext(ctx,
		`SELECT theme, description, image FROM daily_scenes WHERE date=?`, date,
	).Scan(&sc.Theme, &sc.Description, &sc.PNG)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load daily scene: %w", err)
	}
	return &sc, nil
}

// SaveScene stores sc unless the day already has a scene, and returns the
// scene that is stored.
func (s *Store) SaveScene(ctx context.Context, sc Scene) (*Scene, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO daily_scenes(date, theme, description, image) VALUES(?,?,?,?)`,
		sc.Date, sc.Theme, sc.Description, sc.PNG,
	); err != nil {
		return nil, fmt.Errorf("insert daily scene: %w", err)
	}
	return s.Scene(ctx, sc.Date)
}

// LBRow is a leaderboard line. Guests show up without a username.
type LBRow struct {
	Username  string `json:"username,omitempty"`
	Clicks    int    `json:"clicks"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// Leaderboard ranks the day by fewest clicks, then fastest, then earliest.
func (s *Store) Leaderboard(ctx context.Context, date string, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT COALESCE(u.username, ''), d.clicks, d.elapsed_ms
        FROM daily_results d
        LEFT JOIN users u ON u.id = d.user_id
        WHERE d.date=?
        ORDER BY d.clicks ASC, d.elapsed_ms ASC, d.created_at ASC
        LIMIT ?`, date, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LBRow{}
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.Username, &r.Clicks, &r.ElapsedMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
