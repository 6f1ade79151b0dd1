package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/escaperoom/assets"
	"github.com/robalobadob/escaperoom/internal/ai"
	"github.com/robalobadob/escaperoom/internal/config"
	"github.com/robalobadob/escaperoom/internal/daily"
	"github.com/robalobadob/escaperoom/internal/game"
	"github.com/robalobadob/escaperoom/internal/records"
	"github.com/robalobadob/escaperoom/internal/scene"
	"github.com/robalobadob/escaperoom/internal/store"
	"github.com/robalobadob/escaperoom/internal/themes"
	"github.com/robalobadob/escaperoom/internal/toolkit"
)

// Classic rooms take targets from this list in order.
var testTargets = []game.Point{
	{X: 100, Y: 100}, {X: 300, Y: 300}, {X: 500, Y: 500}, {X: 700, Y: 700},
	{X: 900, Y: 900}, {X: 100, Y: 900}, {X: 900, Y: 100}, {X: 300, Y: 700},
}

type fakeImages struct{ err error }

func (f fakeImages) Generate(_ context.Context, _ string) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetNRGBA(32, 32, color.NRGBA{A: 255})
	return img, nil
}

type fakeText struct{ text string }

func (f fakeText) Complete(_ context.Context, _ ai.TextRequest) (string, error) { return f.text, nil }

type env struct {
	t       *testing.T
	srv     *httptest.Server
	catalog *themes.Catalog
	records *records.Store
	deps    Deps
}

type option func(*Deps)

func newEnv(t *testing.T, opts ...option) *env {
	t.Helper()
	db, err := records.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, records.Migrate(context.Background(), db, assets.Migrations()))

	cat, err := themes.Load("")
	require.NoError(t, err)

	d := Deps{
		Config: config.Config{
			ClientOrigin:      "http://localhost:5173",
			JWTSecret:         "test_secret",
			JWTExpiresDays:    1,
			CookieName:        "tok",
			AnonCookieName:    "anon",
			DailySalt:         "salt",
			RequestTimeout:    10 * time.Second,
			GenerationTimeout: 5 * time.Second,
		},
		Sessions: store.NewMemoryStore(),
		Records:  records.New(db),
		Daily:    daily.NewStore(db),
		Scenes:   &scene.Generator{Catalog: cat},
		Images:   scene.NewCache(16),
		Catalog:  cat,
		Placer:   game.FixedPlacer(testTargets),
	}
	for _, o := range opts {
		o(&d)
	}
	srv := httptest.NewServer(New(d).Router())
	t.Cleanup(srv.Close)
	return &env{t: t, srv: srv, catalog: cat, records: d.Records, deps: d}
}

// sharedWith points a second server at e's database, and at its session
// store too when sessions is set, like another replica or a restart.
func sharedWith(e *env, sessions bool) option {
	return func(d *Deps) {
		d.Records, d.Daily = e.deps.Records, e.deps.Daily
		if sessions {
			d.Sessions = e.deps.Sessions
		}
	}
}

func (e *env) client() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(e.t, err)
	return &http.Client{Jar: jar}
}

// call sends body as JSON and decodes the response into out (if non-nil).
func (e *env) call(c *http.Client, method, path string, body, out any) int {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.Do(req)
	require.NoError(e.t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(e.t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

type clickOut struct {
	Outcome  game.Outcome  `json:"outcome"`
	Message  string        `json:"message"`
	Escaped  bool          `json:"escaped"`
	Target   *game.Point   `json:"target"`
	Snapshot game.Snapshot `json:"snapshot"`
}

type errOut struct {
	Error string `json:"error"`
}

func (e *env) newGame(c *http.Client) gameView {
	e.t.Helper()
	var v gameView
	require.Equal(e.t, http.StatusOK, e.call(c, http.MethodPost, "/game/new", map[string]string{}, &v))
	return v
}

func (e *env) click(c *http.Client, id string, x, y float64) clickOut {
	e.t.Helper()
	var out clickOut
	require.Equal(e.t, http.StatusOK, e.call(c, http.MethodPost, "/game/click", map[string]any{"gameId": id, "x": x, "y": y}, &out))
	return out
}

func TestClassicRun(t *testing.T) {
	e := newEnv(t)
	c := e.client()

	v := e.newGame(c)
	assert.Equal(t, modeClassic, v.Mode)
	assert.Equal(t, game.StagePlaying, v.Snapshot.Stage)
	assert.Equal(t, 3, v.Snapshot.TargetCount)
	assert.Equal(t, game.MaxClicks, v.Snapshot.ClicksRemaining)
	assert.Contains(t, e.catalog.Themes, v.Room.Theme)
	assert.NotEmpty(t, v.Room.Description)

	out := e.click(c, v.GameID, 100, 100)
	assert.Equal(t, game.OutcomeHit, out.Outcome)
	assert.Equal(t, "Clue found!", out.Message)
	assert.Equal(t, &game.Point{X: 100, Y: 100}, out.Target)

	out = e.click(c, v.GameID, 400, 300)
	assert.Equal(t, game.OutcomeNear, out.Outcome)
	assert.Equal(t, "Getting warm!", out.Message)

	out = e.click(c, v.GameID, 1000, 100)
	assert.Equal(t, game.OutcomeMiss, out.Outcome)
	assert.Equal(t, "Nothing here.", out.Message)

	e.click(c, v.GameID, 300, 300)
	out = e.click(c, v.GameID, 500, 500)
	assert.True(t, out.Escaped)
	assert.Equal(t, game.StageEscaped, out.Snapshot.Stage)
	assert.Equal(t, 3*game.HitReward+game.EscapeBonus, out.Snapshot.Score)
	assert.Equal(t, 2, out.Snapshot.Level)

	var next gameView
	require.Equal(t, http.StatusOK, e.call(c, http.MethodPost, "/game/next", map[string]string{"gameId": v.GameID, "theme": "moonlit observatory"}, &next))
	assert.Equal(t, game.StagePlaying, next.Snapshot.Stage)
	assert.Equal(t, 4, next.Snapshot.TargetCount)
	assert.Equal(t, 600, next.Snapshot.Score)
	assert.Equal(t, "moonlit observatory", next.Room.Theme)

	var got gameView
	require.Equal(t, http.StatusOK, e.call(c, http.MethodGet, "/game/"+v.GameID, nil, &got))
	assert.Equal(t, next.Snapshot, got.Snapshot)
}

func TestSceneImageMarksFoundTargets(t *testing.T) {
	e := newEnv(t)
	c := e.client()
	v := e.newGame(c)
	e.click(c, v.GameID, 100, 100)

	res, err := c.Get(e.srv.URL + v.SceneURL)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "image/png", res.Header.Get("Content-Type"))

	img, err := png.Decode(res.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, scene.Size, scene.Size), img.Bounds())
	// ring passes through (100+radius-1, 100)
	r, g, b, _ := img.At(100+13, 100).RGBA()
	assert.Greater(t, g, r)
	assert.Greater(t, g, b)
}

func TestDisplayScaling(t *testing.T) {
	e := newEnv(t)
	c := e.client()
	v := e.newGame(c)

	var out clickOut
	require.Equal(t, http.StatusOK, e.call(c, http.MethodPost, "/game/click", map[string]any{
		"gameId": v.GameID, "x": 50, "y": 50, "displayWidth": 512, "displayHeight": 512,
	}, &out))
	assert.Equal(t, game.OutcomeHit, out.Outcome)
}

func TestClickErrors(t *testing.T) {
	e := newEnv(t)
	c := e.client()
	v := e.newGame(c)

	var eo errOut
	assert.Equal(t, http.StatusBadRequest, e.call(c, http.MethodPost, "/game/click", map[string]any{"gameId": v.GameID, "x": 1e9, "y": 5}, &eo))
	assert.Equal(t, "invalid_input", eo.Error)

	assert.Equal(t, http.StatusNotFound, e.call(c, http.MethodPost, "/game/click", map[string]any{"gameId": "nope", "x": 1, "y": 1}, &eo))

	// another player cannot see or touch the session
	stranger := e.client()
	assert.Equal(t, http.StatusNotFound, e.call(stranger, http.MethodGet, "/game/"+v.GameID, nil, &eo))
	assert.Equal(t, http.StatusNotFound, e.call(stranger, http.MethodPost, "/game/click", map[string]any{"gameId": v.GameID, "x": 100, "y": 100}, &eo))

	var got gameView
	require.Equal(t, http.StatusOK, e.call(c, http.MethodGet, "/game/"+v.GameID, nil, &got))
	assert.Equal(t, game.MaxClicks, got.Snapshot.ClicksRemaining, "rejected clicks are not counted")
}

func TestGameOverAndRestart(t *testing.T) {
	e := newEnv(t)
	c := e.client()
	v := e.newGame(c)
	e.click(c, v.GameID, 100, 100)

	for i := 0; i < game.MaxClicks-1; i++ {
		assert.Equal(t, game.OutcomeMiss, e.click(c, v.GameID, 1000, 100).Outcome)
	}
	out := e.click(c, v.GameID, 300, 300)
	assert.Equal(t, game.OutcomeBudgetExhausted, out.Outcome)
	assert.Equal(t, "Out of clicks!", out.Message)
	assert.Equal(t, game.StageGameOver, out.Snapshot.Stage)
	assert.Zero(t, out.Snapshot.ClicksRemaining)

	assert.Equal(t, game.OutcomeNoOp, e.click(c, v.GameID, 300, 300).Outcome)

	var eo errOut
	assert.Equal(t, http.StatusConflict, e.call(c, http.MethodPost, "/game/next", map[string]string{"gameId": v.GameID}, &eo))
	assert.Equal(t, "restart_required", eo.Error)

	var restarted gameView
	require.Equal(t, http.StatusOK, e.call(c, http.MethodPost, "/game/restart", map[string]string{"gameId": v.GameID}, &restarted))
	assert.Equal(t, 1, restarted.Snapshot.Level)
	assert.Zero(t, restarted.Snapshot.Score)
	assert.Equal(t, game.StagePlaying, restarted.Snapshot.Stage)
	assert.Empty(t, restarted.Snapshot.Found)
}

func TestGenerationFailure(t *testing.T) {
	e := newEnv(t, func(d *Deps) {
		d.Scenes = &scene.Generator{Catalog: d.Catalog, Images: fakeImages{err: errors.New("quota exceeded")}}
	})
	var eo errOut
	assert.Equal(t, http.StatusBadGateway, e.call(e.client(), http.MethodPost, "/game/new", nil, &eo))
	assert.Equal(t, "generation_failed", eo.Error)
}

func TestDailyRoom(t *testing.T) {
	e := newEnv(t)
	c := e.client()

	var first, again dailyNewRes
	require.Equal(t, http.StatusOK, e.call(c, http.MethodPost, "/daily/new", nil, &first))
	assert.False(t, first.Played)
	assert.Equal(t, modeDaily, first.Mode)
	assert.Equal(t, daily.DateKey(time.Now()), first.Date)

	require.Equal(t, http.StatusOK, e.call(c, http.MethodPost, "/daily/new", nil, &again))
	assert.Equal(t, first.GameID, again.GameID, "same session resumed")

	// everyone gets the same room
	var other dailyNewRes
	require.Equal(t, http.StatusOK, e.call(e.client(), http.MethodPost, "/daily/new", nil, &other))
	assert.NotEqual(t, first.GameID, other.GameID)
	assert.Equal(t, first.Room.Theme, other.Room.Theme)

	var eo errOut
	assert.Equal(t, http.StatusConflict, e.call(c, http.MethodPost, "/game/next", map[string]string{"gameId": first.GameID}, &eo))
	assert.Equal(t, "daily_single_room", eo.Error)

	plan := daily.PlanFor(time.Now(), "salt", e.catalog)
	var out clickOut
	for _, p := range plan.Targets {
		out = e.click(c, first.GameID, float64(p.X), float64(p.Y))
	}
	require.True(t, out.Escaped)

	var played dailyNewRes
	require.Equal(t, http.StatusOK, e.call(c, http.MethodPost, "/daily/new", nil, &played))
	assert.True(t, played.Played)

	var lb dailyLBRes
	require.Equal(t, http.StatusOK, e.call(c, http.MethodGet, "/daily/leaderboard", nil, &lb))
	require.Len(t, lb.Top, 1)
	assert.Equal(t, len(plan.Targets), lb.Top[0].Clicks)

	assert.Equal(t, http.StatusBadRequest, e.call(c, http.MethodGet, "/daily/leaderboard?date=yesterday", nil, &eo))
}

func TestLostDailyRoomCannotBeReplayed(t *testing.T) {
	a := newEnv(t)
	b := newEnv(t, sharedWith(a, true))
	c := a.client() // cookies are shared across both test servers

	var start dailyNewRes
	require.Equal(t, http.StatusOK, a.call(c, http.MethodPost, "/daily/new", nil, &start))
	require.False(t, start.Played)

	var resumed dailyNewRes
	require.Equal(t, http.StatusOK, b.call(c, http.MethodPost, "/daily/new", nil, &resumed))
	assert.Equal(t, start.GameID, resumed.GameID, "in-progress room resumes on another server")
	assert.False(t, resumed.Played)

	var out clickOut
	for i := 0; i <= game.MaxClicks; i++ {
		out = a.click(c, start.GameID, -1000, -1000)
	}
	require.Equal(t, game.OutcomeBudgetExhausted, out.Outcome)
	require.Equal(t, game.StageGameOver, out.Snapshot.Stage)

	var again dailyNewRes
	require.Equal(t, http.StatusOK, b.call(c, http.MethodPost, "/daily/new", nil, &again))
	assert.True(t, again.Played)
	assert.Equal(t, start.GameID, again.GameID)
	assert.Equal(t, game.StageGameOver, again.Snapshot.Stage)

	// a restarted server with empty session storage still counts the attempt
	restarted := newEnv(t, sharedWith(a, false))
	var fresh dailyNewRes
	require.Equal(t, http.StatusOK, restarted.call(c, http.MethodPost, "/daily/new", nil, &fresh))
	assert.True(t, fresh.Played)
	assert.Empty(t, fresh.GameID)

	var lb dailyLBRes
	require.Equal(t, http.StatusOK, a.call(c, http.MethodGet, "/daily/leaderboard", nil, &lb))
	assert.Empty(t, lb.Top, "lost rooms are not ranked")
}

type countingImages struct{ n atomic.Int32 }

// Generate returns a full-size scene filled with a shade that changes per call.
func (c *countingImages) Generate(context.Context, string) (image.Image, error) {
	shade := uint8(40 * c.n.Add(1))
	img := image.NewNRGBA(image.Rect(0, 0, scene.Size, scene.Size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = shade, shade, shade, 255
	}
	return img, nil
}

func TestDailySceneSharedAfterEviction(t *testing.T) {
	gen := &countingImages{}
	e := newEnv(t, func(d *Deps) {
		d.Scenes.Images = gen
		d.Images = scene.NewCache(1) // every session image evicts the daily one
	})

	shade := func(c *http.Client, url string) uint32 {
		t.Helper()
		res, err := c.Get(e.srv.URL + url)
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)
		img, err := png.Decode(res.Body)
		require.NoError(t, err)
		r, _, _, _ := img.At(scene.Size/2, scene.Size/2).RGBA()
		return r >> 8
	}

	var (
		clients []*http.Client
		views   []dailyNewRes
	)
	for i := 0; i < 3; i++ {
		c := e.client()
		var v dailyNewRes
		require.Equal(t, http.StatusOK, e.call(c, http.MethodPost, "/daily/new", nil, &v))
		require.False(t, v.Played)
		assert.Equal(t, uint32(40), shade(c, v.SceneURL), "player %d sees the first scene", i)
		clients = append(clients, c)
		views = append(views, v)
	}
	// the first player's image was evicted long ago and is reloaded
	assert.Equal(t, uint32(40), shade(clients[0], views[0].SceneURL))
	assert.Equal(t, int32(1), gen.n.Load(), "scene generated once per day")
	assert.Equal(t, views[0].Room.Description, views[2].Room.Description)
}

func TestAccountsAndStats(t *testing.T) {
	e := newEnv(t)
	c := e.client()

	var eo errOut
	assert.Equal(t, http.StatusUnauthorized, e.call(c, http.MethodGet, "/auth/me", nil, &eo))

	// play as a guest, then sign up mid-room
	v := e.newGame(c)
	e.click(c, v.GameID, 100, 100)

	creds := map[string]string{"username": "escapist", "password": "hunter22"}
	require.Equal(t, http.StatusOK, e.call(c, http.MethodPost, "/auth/signup", creds, nil))
	assert.Equal(t, http.StatusConflict, e.call(e.client(), http.MethodPost, "/auth/signup", creds, &eo))

	var me authUser
	require.Equal(t, http.StatusOK, e.call(c, http.MethodGet, "/auth/me", nil, &me))
	assert.Equal(t, "escapist", me.Username)

	e.click(c, v.GameID, 300, 300)
	require.True(t, e.click(c, v.GameID, 500, 500).Escaped)

	var stats map[string]any
	require.Equal(t, http.StatusOK, e.call(c, http.MethodGet, "/stats/me", nil, &stats))
	assert.EqualValues(t, 1, stats["roomsPlayed"])
	assert.EqualValues(t, 1, stats["roomsEscaped"])
	assert.EqualValues(t, 600, stats["bestScore"])

	var rooms []records.Room
	require.Equal(t, http.StatusOK, e.call(c, http.MethodGet, "/rooms/mine", nil, &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, records.StatusEscaped, rooms[0].Status)
	assert.Equal(t, v.GameID, rooms[0].SessionID)

	var lb struct {
		Top []records.LeaderRow `json:"top"`
	}
	require.Equal(t, http.StatusOK, e.call(c, http.MethodGet, "/leaderboard", nil, &lb))
	require.Len(t, lb.Top, 1)
	assert.Equal(t, "escapist", lb.Top[0].Username)

	fresh := e.client()
	assert.Equal(t, http.StatusUnauthorized, e.call(fresh, http.MethodPost, "/auth/login",
		map[string]string{"username": "escapist", "password": "wrong-one"}, &eo))
	require.Equal(t, http.StatusOK, e.call(fresh, http.MethodPost, "/auth/login", creds, nil))
	require.Equal(t, http.StatusOK, e.call(fresh, http.MethodGet, "/auth/me", nil, &me))

	require.Equal(t, http.StatusOK, e.call(fresh, http.MethodPost, "/auth/logout", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, e.call(fresh, http.MethodGet, "/auth/me", nil, &eo))
}

func TestToolkitRoutes(t *testing.T) {
	e := newEnv(t)
	c := e.client()

	var styles struct {
		Styles    []string        `json:"styles"`
		Providers map[string]bool `json:"providers"`
	}
	require.Equal(t, http.StatusOK, e.call(c, http.MethodGet, "/toolkit/styles", nil, &styles))
	assert.Equal(t, e.catalog.Styles, styles.Styles)
	assert.Empty(t, styles.Providers)

	var eo errOut
	assert.Equal(t, http.StatusServiceUnavailable, e.call(c, http.MethodPost, "/toolkit/item", map[string]string{"name": "key"}, &eo))

	kit := newEnv(t, func(d *Deps) {
		d.Toolkit = toolkit.New(d.Catalog, "English", toolkit.Provider{
			Name:     "google",
			Text:     fakeText{text: `{"name":"Brass Key","type":"Key","rank":"B","effect":"Opens doors","description":"Warm to the touch."}`},
			Images:   fakeImages{},
			Password: "open-sesame",
		})
	})

	assert.Equal(t, http.StatusUnauthorized, kit.call(c, http.MethodPost, "/toolkit/item",
		map[string]string{"name": "brass key", "provider": "google", "password": "nope"}, &eo))
	assert.Equal(t, http.StatusBadRequest, kit.call(c, http.MethodPost, "/toolkit/item",
		map[string]string{"name": "brass key", "provider": "openai"}, &eo))

	var item assetRes[toolkit.Item]
	require.Equal(t, http.StatusOK, kit.call(c, http.MethodPost, "/toolkit/item",
		map[string]string{"name": "brass key", "provider": "google", "password": "open-sesame", "style": "anime"}, &item))
	assert.Equal(t, "Brass Key", item.Data.Name)
	assert.Equal(t, "Anime", item.Style)
	assert.True(t, strings.HasPrefix(item.Image, "data:image/png;base64,"))
}

func TestDiagnostics(t *testing.T) {
	e := newEnv(t)
	c := e.client()
	v := e.newGame(c)
	e.click(c, v.GameID, 100, 100)

	var health map[string]any
	require.Equal(t, http.StatusOK, e.call(c, http.MethodGet, "/health", nil, &health))
	assert.Equal(t, true, health["ok"])

	res, err := c.Get(e.srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "escaperoom_clicks_total")

	var eo errOut
	assert.Equal(t, http.StatusNotFound, e.call(c, http.MethodGet, "/nowhere", nil, &eo))
	assert.Equal(t, "not_found", eo.Error)
}
