// internal/httpserver/routes_daily.go
//
// HTTP routes for the daily room and the leaderboards.
//   - POST /daily/new         → start (or resume) today's room
//   - GET  /daily/leaderboard → top results for today (or ?date=)
//   - GET  /leaderboard       → all-time high scores
//
// Clicks go through POST /game/click like any other session. Each player
// gets one daily session per day, recorded in daily_attempts; a finished one
// is reported as played. Layout and theme come from the date seed, so every
// player gets the same room, and its scene is generated once per day and
// stored in daily_scenes.

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/escaperoom/internal/daily"
	"github.com/robalobadob/escaperoom/internal/game"
	"github.com/robalobadob/escaperoom/internal/imaging"
	"github.com/robalobadob/escaperoom/internal/store"
)

const leaderboardLimit = 20

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	r.Route("/daily", func(r chi.Router) {
		r.Post("/new", s.handleDailyNew)
		r.Get("/leaderboard", s.handleDailyLeaderboard)
	})
}

type dailyNewRes struct {
	gameView
	Played bool `json:"played"`
}

// handleDailyNew creates or resumes the caller's daily session. The attempt is
// recorded in the database when the room is handed out, so a lost or
// abandoned room stays used up across restarts and replicas.
func (s *Server) handleDailyNew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := s.owner(w, r)
	plan := daily.PlanFor(s.d.Now(), s.cfg.DailySalt, s.d.Catalog)

	played, err := s.d.Daily.AlreadyPlayed(ctx, owner, plan.Date)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if played {
		writeJSON(w, http.StatusOK, dailyPlayed(plan))
		return
	}

	id, err := s.d.Daily.Attempt(ctx, owner, plan.Date)
	if err == nil {
		s.resumeDaily(w, r, id, plan)
		return
	}
	if !errors.Is(err, daily.ErrNotFound) {
		writeErr(w, r, err)
		return
	}

	img, description, err := s.dailyScene(ctx, plan)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	sess := game.New(uuid.NewString())
	sess.Owner = owner
	sess.Mode = modeDaily
	if err := sess.StartRoom(game.TargetCount(daily.Level), plan.Placer()); err != nil {
		writeErr(w, r, err)
		return
	}
	sess.Room = game.Room{Theme: plan.Theme, Description: description, StartedAt: s.d.Now().UTC()}
	sess.RoomID = uuid.NewString()
	if err := s.d.Sessions.Create(ctx, sess); err != nil {
		writeErr(w, r, err)
		return
	}

	id, err = s.d.Daily.StartAttempt(ctx, owner, plan.Date, sess.ID)
	if err != nil || id != sess.ID {
		if derr := s.d.Sessions.Delete(ctx, sess.ID); derr != nil {
			hlog.FromRequest(r).Warn().Err(derr).Str("gameId", sess.ID).Msg("drop unused daily session")
		}
		if err != nil {
			writeErr(w, r, err)
			return
		}
		// a concurrent request recorded its session first
		s.resumeDaily(w, r, id, plan)
		return
	}
	s.d.Images.Put(sess.ID, img)
	s.recordStart(r, sess)

	v := viewOf(sess)
	v.Date = plan.Date
	writeJSON(w, http.StatusOK, dailyNewRes{gameView: v})
}

func dailyPlayed(plan daily.Plan) dailyNewRes {
	return dailyNewRes{gameView: gameView{Mode: modeDaily, Date: plan.Date}, Played: true}
}

// resumeDaily answers with the recorded daily session. A finished or lost
// room is reported as played; so is one that expired from the session store.
func (s *Server) resumeDaily(w http.ResponseWriter, r *http.Request, id string, plan daily.Plan) {
	sess, err := s.d.Sessions.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, dailyPlayed(plan))
		return
	}
	if err != nil {
		writeErr(w, r, err)
		return
	}
	v := viewOf(sess)
	v.Date = plan.Date
	writeJSON(w, http.StatusOK, dailyNewRes{gameView: v, Played: sess.Stage != game.StagePlaying})
}

// dailyScene returns the shared scene for plan's day. The first request of
// the day generates and stores it; everyone after that reads the stored copy.
func (s *Server) dailyScene(ctx context.Context, plan daily.Plan) (image.Image, string, error) {
	stored, err := s.d.Daily.Scene(ctx, plan.Date)
	if errors.Is(err, daily.ErrNotFound) {
		stored, err = s.generateDailyScene(ctx, plan)
	}
	if err != nil {
		return nil, "", err
	}

	key := dailySceneKey(plan.Date)
	if img, ok := s.d.Images.Get(key); ok {
		return img, stored.Description, nil
	}
	img, err := imaging.DecodePNG(stored.PNG)
	if err != nil {
		return nil, "", fmt.Errorf("daily scene %s: %w", plan.Date, err)
	}
	s.d.Images.Put(key, img)
	return img, stored.Description, nil
}

func (s *Server) generateDailyScene(ctx context.Context, plan daily.Plan) (*daily.Scene, error) {
	// one generation per process; replicas race on SaveScene and the first row wins
	s.dailyMu.Lock()
	defer s.dailyMu.Unlock()
	if stored, err := s.d.Daily.Scene(ctx, plan.Date); !errors.Is(err, daily.ErrNotFound) {
		return stored, err
	}

	sc, err := s.generate(ctx, plan.Theme)
	if err != nil {
		return nil, err
	}
	b, err := imaging.EncodePNG(sc.Image)
	if err != nil {
		return nil, err
	}
	return s.d.Daily.SaveScene(ctx, daily.Scene{
		Date:        plan.Date,
		Theme:       plan.Theme,
		Description: sc.Description,
		PNG:         b,
	})
}

func dailySceneKey(date string) string { return "daily|" + date }

// recordDaily stores an escaped daily room on the leaderboard.
func (s *Server) recordDaily(r *http.Request, sess *game.Session) {
	res := daily.Result{
		UserID:    sess.Owner,
		Date:      daily.DateKey(sess.Room.StartedAt),
		Clicks:    sess.ClickCount,
		ElapsedMs: s.d.Now().Sub(sess.Room.StartedAt).Milliseconds(),
	}
	if _, err := s.d.Daily.InsertResult(r.Context(), res); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("gameId", sess.ID).Msg("insert daily result")
	}
}

type dailyLBRes struct {
	Date string        `json:"date"`
	Top  []daily.LBRow `json:"top"`
}

// handleDailyLeaderboard returns the leaderboard for the given date (default today).
func (s *Server) handleDailyLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = daily.DateKey(s.d.Now())
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}
	rows, err := s.d.Daily.Leaderboard(r.Context(), date, leaderboardLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, dailyLBRes{Date: date, Top: rows})
}

// handleLeaderboard returns the all-time high scores.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.d.Records.Leaderboard(r.Context(), leaderboardLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"top": rows})
}
