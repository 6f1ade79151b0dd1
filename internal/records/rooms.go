package records

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Room statuses stored in rooms.status.
const (
	StatusPlaying   = "playing"
	StatusEscaped   = "escaped"
	StatusGameOver  = "game_over"
	StatusAbandoned = "abandoned"
)

// Room is one row of room history. Exactly one of UserID and AnonymousID is set.
type Room struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId"`
	UserID      string     `json:"-"`
	AnonymousID string     `json:"-"`
	Mode        string     `json:"mode"`
	Level       int        `json:"level"`
	Theme       string     `json:"theme"`
	Status      string     `json:"status"`
	Clicks      int        `json:"clicks"`
	Score       int        `json:"score"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// InsertRoom records a room that just started and returns its id.
func (s *Store) InsertRoom(ctx context.Context, r Room) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = StatusPlaying
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO rooms (id, session_id, user_id, anonymous_id, mode, level, theme, status, clicks, score, started_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.SessionID, nullable(r.UserID), nullable(r.AnonymousID), r.Mode, r.Level, r.Theme,
		r.Status, r.Clicks, r.Score, formatTime(r.StartedAt))
	if err != nil {
		return "", fmt.Errorf("insert room: %w", err)
	}
	return r.ID, nil
}

// Finish describes how a room ended.
type Finish struct {
	RoomID string
	UserID string // stats are bumped when set
	Status string
	Level  int
	Clicks int
	Score  int // session score after the room
}

// FinishRoom closes a room row and, for escaped or lost rooms of a known
// user, updates their stats in the same transaction. A room that is
// already finished is left alone.
func (s *Store) FinishRoom(ctx context.Context, f Finish) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
        UPDATE rooms SET status=?, clicks=?, score=?, finished_at=?
        WHERE id=? AND status=?`,
		f.Status, f.Clicks, f.Score, formatTime(time.Now()), f.RoomID, StatusPlaying)
	if err != nil {
		return fmt.Errorf("finish room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	if f.UserID != "" && f.Status != StatusAbandoned {
		if err := bumpStats(ctx, tx, f); err != nil {
			return fmt.Errorf("bump stats: %w", err)
		}
	}
	return tx.Commit()
}

func bumpStats(ctx context.Context, tx *sql.Tx, f Finish) error {
	escaped := 0
	if f.Status == StatusEscaped {
		escaped = 1
	}
	_, err := tx.ExecContext(ctx, `
        UPDATE users SET
            rooms_played  = rooms_played + 1,
            rooms_escaped = rooms_escaped + ?,
            best_level    = MAX(best_level, ?),
            best_score    = MAX(best_score, ?)
        WHERE id=?`, escaped, f.Level, f.Score, f.UserID)
	return err
}

// RecentRooms lists a user's rooms, newest first.
func (s *Store) RecentRooms(ctx context.Context, userID string, limit int) ([]Room, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, session_id, mode, level, theme, status, clicks, score, started_at, COALESCE(finished_at,'')
        FROM rooms WHERE user_id=? ORDER BY started_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Room{}
	for rows.Next() {
		var (
			r                 Room
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Mode, &r.Level, &r.Theme, &r.Status,
			&r.Clicks, &r.Score, &started, &finished); err != nil {
			return nil, err
		}
		r.UserID = userID
		r.StartedAt = parseTime(started)
		if finished != "" {
			t := parseTime(finished)
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ClaimAnonRooms moves guest history to a user after login or signup.
func (s *Store) ClaimAnonRooms(ctx context.Context, anonID, userID string) (int64, error) {
	if anonID == "" || userID == "" {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET user_id=?, anonymous_id=NULL WHERE anonymous_id=?`, userID, anonID)
	if err != nil {
		return 0, fmt.Errorf("claim anon rooms: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Info().Str("user", userID).Int64("rooms", n).Msg("claimed anonymous rooms")
	}
	return n, nil
}
