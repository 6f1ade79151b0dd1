// internal/httpserver/routes_game.go
//
// Classic mode: a run of rooms with growing target counts.
//   - POST /game/new           → new session + first room
//   - POST /game/click         → register a click
//   - POST /game/next          → next room (after escaping, or abandon the current one)
//   - POST /game/restart       → back to level 1 after game over
//   - GET  /game/{id}          → snapshot + room info
//   - GET  /game/{id}/scene.png → scene image with found targets circled
//
// Scene generation happens before the session is touched, so a slow or
// failed generation never leaves a session half-updated.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/escaperoom/internal/daily"
	"github.com/robalobadob/escaperoom/internal/game"
	"github.com/robalobadob/escaperoom/internal/imaging"
	"github.com/robalobadob/escaperoom/internal/metrics"
	"github.com/robalobadob/escaperoom/internal/records"
	"github.com/robalobadob/escaperoom/internal/scene"
)

const (
	modeClassic = "classic"
	modeDaily   = "daily"
)

var (
	errGeneration      = errors.New("scene generation failed")
	errDailySingleRoom = errors.New("the daily room is a single room")
)

// Feedback shown for each click outcome.
var clickMessages = map[game.Outcome]string{
	game.OutcomeHit:             "Clue found!",
	game.OutcomeNear:            "Getting warm!",
	game.OutcomeMiss:            "Nothing here.",
	game.OutcomeBudgetExhausted: "Out of clicks!",
	game.OutcomeNoOp:            "This room is not in play.",
}

func (s *Server) mountGame(r chi.Router) {
	r.Route("/game", func(r chi.Router) {
		r.Post("/new", s.handleNewGame)
		r.Post("/click", s.handleClick)
		r.Post("/next", s.handleNext)
		r.Post("/restart", s.handleRestart)
		r.Get("/{id}", s.handleGetGame)
		r.Get("/{id}/scene.png", s.handleScene)
	})
}

// gameView is the JSON shape of a session for the client.
type gameView struct {
	GameID   string        `json:"gameId"`
	Mode     string        `json:"mode"`
	Date     string        `json:"date,omitempty"`
	Room     game.Room     `json:"room"`
	Snapshot game.Snapshot `json:"snapshot"`
	SceneURL string        `json:"sceneUrl"`
	// SceneSize is the side of the scene image; clicks are in this space
	// unless the client sends its display size.
	SceneSize int `json:"sceneSize"`
}

func viewOf(sess *game.Session) gameView {
	return gameView{
		GameID:    sess.ID,
		Mode:      sess.Mode,
		Room:      sess.Room,
		Snapshot:  sess.Snapshot(),
		SceneURL:  "/game/" + sess.ID + "/scene.png",
		SceneSize: scene.Size,
	}
}

// ------------------------------- scenes ------------------------------------

func (s *Server) generate(ctx context.Context, theme string) (*scene.Scene, error) {
	if timeout := s.cfg.GenerationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	sc, err := s.d.Scenes.Generate(ctx, theme)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errGeneration, err)
	}
	return sc, nil
}

// applyRoom copies generated room content into the session.
func (s *Server) applyRoom(sess *game.Session, sc *scene.Scene, roomID string) {
	sess.Room = game.Room{Theme: sc.Theme, Description: sc.Description, StartedAt: s.d.Now().UTC()}
	sess.RoomID = roomID
}

// recordStart inserts the history row for the session's current room.
func (s *Server) recordStart(r *http.Request, sess *game.Session) {
	metrics.RoomsStarted.WithLabelValues(sess.Mode).Inc()
	row := records.Room{
		ID:        sess.RoomID,
		SessionID: sess.ID,
		Mode:      sess.Mode,
		Level:     sess.Level,
		Theme:     sess.Room.Theme,
		StartedAt: sess.Room.StartedAt,
	}
	if u := currentUser(r); u != nil && u.ID == sess.Owner {
		row.UserID = u.ID
	} else {
		row.AnonymousID = sess.Owner
	}
	if _, err := s.d.Records.InsertRoom(r.Context(), row); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("gameId", sess.ID).Msg("insert room row")
	}
}

// recordFinish closes the history row for a room that ended with status.
func (s *Server) recordFinish(r *http.Request, roomID string, status string, level, clicks, score int) {
	if roomID == "" {
		return
	}
	if status != records.StatusAbandoned {
		metrics.RoomsFinished.WithLabelValues(status).Inc()
	}
	f := records.Finish{RoomID: roomID, Status: status, Level: level, Clicks: clicks, Score: score}
	if u := currentUser(r); u != nil {
		f.UserID = u.ID
	}
	if err := s.d.Records.FinishRoom(r.Context(), f); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("roomId", roomID).Msg("finish room row")
	}
}

// load fetches a session the caller owns.
func (s *Server) load(r *http.Request, id string) (*game.Session, error) {
	sess, err := s.d.Sessions.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if !s.owns(r, sess.Owner) {
		return nil, errNotOwner
	}
	return sess, nil
}

// ------------------------------- handlers ----------------------------------

type newGameReq struct {
	Theme string `json:"theme"` // optional; random when empty
}

// handleNewGame generates the first room and stores a fresh session.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	_ = json.NewDecoder(r.Body).Decode(&req) // empty body is fine

	owner := s.owner(w, r)
	sc, err := s.generate(r.Context(), req.Theme)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	sess := game.New(uuid.NewString())
	sess.Owner = owner
	sess.Mode = modeClassic
	if err := sess.StartRoom(game.TargetCount(sess.Level), s.d.Placer); err != nil {
		writeErr(w, r, err)
		return
	}
	s.applyRoom(sess, sc, uuid.NewString())
	if err := s.d.Sessions.Create(r.Context(), sess); err != nil {
		writeErr(w, r, err)
		return
	}
	s.d.Images.Put(sess.ID, sc.Image)
	s.recordStart(r, sess)

	hlog.FromRequest(r).Info().Str("gameId", sess.ID).Str("theme", sc.Theme).Msg("game started")
	writeJSON(w, http.StatusOK, viewOf(sess))
}

type clickReq struct {
	GameID string  `json:"gameId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	// Optional rendered size of the scene; coordinates are scaled to image space.
	DisplayWidth  float64 `json:"displayWidth,omitempty"`
	DisplayHeight float64 `json:"displayHeight,omitempty"`
}

type clickRes struct {
	game.ClickResult
	Message string `json:"message"`
}

// toImageSpace scales a display coordinate to the scene image.
func toImageSpace(v, display float64) float64 {
	if display <= 0 {
		return v
	}
	return v * float64(scene.Size) / display
}

// handleClick applies a click inside the store's update so concurrent
// clicks on one session are serialized.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req clickReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	if req.GameID == "" {
		writeError(w, http.StatusBadRequest, "missing_game_id")
		return
	}
	x := toImageSpace(req.X, req.DisplayWidth)
	y := toImageSpace(req.Y, req.DisplayHeight)

	var res game.ClickResult
	sess, err := s.d.Sessions.Update(r.Context(), req.GameID, func(sess *game.Session) error {
		if !s.owns(r, sess.Owner) {
			return errNotOwner
		}
		var err error
		res, err = sess.RegisterClick(x, y)
		return err
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	metrics.Clicks.WithLabelValues(string(res.Outcome)).Inc()

	switch {
	case res.Escaped:
		// Level has already moved on to the next room
		s.recordFinish(r, sess.RoomID, records.StatusEscaped, sess.Level-1, sess.ClickCount, sess.Score)
		if sess.Mode == modeDaily {
			s.recordDaily(r, sess)
		}
	case res.Outcome == game.OutcomeBudgetExhausted:
		s.recordFinish(r, sess.RoomID, records.StatusGameOver, sess.Level, game.MaxClicks, sess.Score)
	}

	writeJSON(w, http.StatusOK, clickRes{ClickResult: res, Message: clickMessages[res.Outcome]})
}

type roomReq struct {
	GameID string `json:"gameId"`
	Theme  string `json:"theme"`
}

// handleNext starts the next room. From PLAYING the current room is
// abandoned; from GAME_OVER the client must restart.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.changeRoom(w, r, false)
}

// handleRestart resets the run to level 1 with a new room.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.changeRoom(w, r, true)
}

func (s *Server) changeRoom(w http.ResponseWriter, r *http.Request, restart bool) {
	var req roomReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GameID == "" {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}

	// Fail fast before paying for a generation.
	cur, err := s.load(r, req.GameID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if cur.Mode == modeDaily {
		writeErr(w, r, errDailySingleRoom)
		return
	}
	if !restart && cur.Stage == game.StageGameOver {
		writeErr(w, r, game.ErrRestartRequired)
		return
	}

	sc, err := s.generate(r.Context(), req.Theme)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	var prev game.Session
	roomID := uuid.NewString()
	sess, err := s.d.Sessions.Update(r.Context(), req.GameID, func(sess *game.Session) error {
		if !s.owns(r, sess.Owner) {
			return errNotOwner
		}
		prev = *sess
		if restart {
			sess.Reset()
		}
		if err := sess.StartRoom(game.TargetCount(sess.Level), s.d.Placer); err != nil {
			return err
		}
		s.applyRoom(sess, sc, roomID)
		return nil
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if prev.Stage == game.StagePlaying {
		s.recordFinish(r, prev.RoomID, records.StatusAbandoned, prev.Level, prev.ClickCount, prev.Score)
	}
	s.d.Images.Put(sess.ID, sc.Image)
	s.recordStart(r, sess)
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	sess, err := s.load(r, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

// handleScene renders the room image with a ring around every found target.
func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	sess, err := s.load(r, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	img, ok := s.d.Images.Get(sess.ID)
	if !ok && sess.Mode == modeDaily {
		plan := daily.PlanFor(sess.Room.StartedAt, s.cfg.DailySalt, s.d.Catalog)
		if img, _, err = s.dailyScene(r.Context(), plan); err != nil {
			writeErr(w, r, err)
			return
		}
		ok = true
	}
	if !ok {
		writeError(w, http.StatusNotFound, "scene_not_found")
		return
	}

	found := sess.FoundPoints()
	pts := make([]image.Point, 0, len(found))
	for _, p := range found {
		pts = append(pts, image.Pt(p.X, p.Y))
	}
	b, err := imaging.EncodePNG(imaging.MarkFound(img, pts))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
