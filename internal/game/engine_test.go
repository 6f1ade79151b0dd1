package game

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedSession(t *testing.T, pts ...Point) *Session {
	t.Helper()
	s := New("s1")
	require.NoError(t, s.StartRoom(len(pts), FixedPlacer(pts)))
	return s
}

func assertFoundSubset(t *testing.T, s *Session) {
	t.Helper()
	assert.LessOrEqual(t, len(s.Found), len(s.Targets))
	seen := map[int]bool{}
	for _, i := range s.Found {
		assert.True(t, i >= 0 && i < len(s.Targets), "found index %d out of range", i)
		assert.False(t, seen[i], "target %d found twice", i)
		seen[i] = true
	}
}

func TestNewSession(t *testing.T) {
	s := New("abc")
	assert.Equal(t, StageStart, s.Stage)
	assert.Equal(t, 1, s.Level)
	assert.Zero(t, s.Score)
	assert.Equal(t, 3, TargetCount(s.Level))
}

func TestStartRoom(t *testing.T) {
	s := New("s")
	require.NoError(t, s.StartRoom(3, NewRandomPlacer()))
	assert.Equal(t, StagePlaying, s.Stage)
	assert.Len(t, s.Targets, 3)
	assert.Empty(t, s.Found)
	assert.Zero(t, s.ClickCount)
	for _, p := range s.Targets {
		assert.GreaterOrEqual(t, p.X, DefaultBoundMin)
		assert.LessOrEqual(t, p.X, DefaultBoundMax)
		assert.GreaterOrEqual(t, p.Y, DefaultBoundMin)
		assert.LessOrEqual(t, p.Y, DefaultBoundMax)
	}
}

func TestStartRoomRejectsBadCountAtomically(t *testing.T) {
	s := startedSession(t, Point{100, 100}, Point{500, 500})
	_, err := s.RegisterClick(900, 900)
	require.NoError(t, err)
	before := s.Clone()

	for _, n := range []int{0, -1} {
		err := s.StartRoom(n, NewRandomPlacer())
		require.ErrorIs(t, err, ErrInvalidConfiguration)
		assert.Equal(t, before, s)
	}

	err = s.StartRoom(3, FixedPlacer{{1, 1}})
	require.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Equal(t, before, s)
}

func TestStartRoomClearsPreviousRoom(t *testing.T) {
	s := startedSession(t, Point{100, 100}, Point{500, 500})
	_, err := s.RegisterClick(100, 100)
	require.NoError(t, err)
	require.Len(t, s.Found, 1)

	require.NoError(t, s.StartRoom(2, FixedPlacer{{200, 200}, {300, 300}}))
	assert.Empty(t, s.Found)
	assert.Zero(t, s.ClickCount)
	assert.Equal(t, []Point{{200, 200}, {300, 300}}, s.Targets)
	assert.Equal(t, HitReward, s.Score, "score carries across rooms")
}

func TestClickClassificationBoundaries(t *testing.T) {
	cases := []struct {
		name string
		x, y float64
		want Outcome
	}{
		{"exact", 500, 500, OutcomeHit},
		{"just inside hit", 549.99, 500, OutcomeHit},
		{"exactly hit radius", 550, 500, OutcomeNear},
		{"just inside near", 500, 649.99, OutcomeNear},
		{"exactly near radius", 500, 650, OutcomeMiss},
		{"far", 100, 100, OutcomeMiss},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := startedSession(t, Point{500, 500}, Point{900, 900})
			res, err := s.RegisterClick(tc.x, tc.y)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Outcome)
			assert.Equal(t, 1, s.ClickCount)
		})
	}
}

func TestHitPicksNearestRemaining(t *testing.T) {
	s := startedSession(t, Point{100, 100}, Point{130, 100}, Point{800, 800})

	res, err := s.RegisterClick(125, 100)
	require.NoError(t, err)
	require.Equal(t, OutcomeHit, res.Outcome)
	assert.Equal(t, Point{130, 100}, *res.Target)

	// (130,100) is now found, so the same click resolves to (100,100).
	res, err = s.RegisterClick(125, 100)
	require.NoError(t, err)
	require.Equal(t, OutcomeHit, res.Outcome)
	assert.Equal(t, Point{100, 100}, *res.Target)
	assertFoundSubset(t, s)
}

func TestDuplicateTargetsAreEachFindable(t *testing.T) {
	s := startedSession(t, Point{300, 300}, Point{300, 300})

	for i := 0; i < 2; i++ {
		res, err := s.RegisterClick(300, 300)
		require.NoError(t, err)
		assert.Equal(t, OutcomeHit, res.Outcome)
	}
	assert.Equal(t, StageEscaped, s.Stage)
	assertFoundSubset(t, s)
}

func TestEscapeScenario(t *testing.T) {
	pts := []Point{{100, 100}, {500, 500}, {900, 900}}
	s := startedSession(t, pts...)
	startScore, startLevel := s.Score, s.Level

	order := []Point{pts[2], pts[0], pts[1]}
	for i, p := range order {
		res, err := s.RegisterClick(float64(p.X), float64(p.Y))
		require.NoError(t, err)
		assert.Equal(t, OutcomeHit, res.Outcome)
		assert.Equal(t, i == len(order)-1, res.Escaped)
		assertFoundSubset(t, s)
	}

	assert.Equal(t, StageEscaped, s.Stage)
	assert.Equal(t, startScore+3*HitReward+EscapeBonus, s.Score)
	assert.Equal(t, 600, s.Score-startScore)
	assert.Equal(t, startLevel+1, s.Level)
	assert.Equal(t, order, s.FoundPoints())

	// Escape fires once: further clicks do nothing.
	score, level := s.Score, s.Level
	res, err := s.RegisterClick(100, 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOp, res.Outcome)
	assert.Equal(t, score, s.Score)
	assert.Equal(t, level, s.Level)
}

func TestClickBudgetScenario(t *testing.T) {
	s := startedSession(t, Point{100, 100}, Point{120, 120})

	for i := 1; i <= MaxClicks; i++ {
		res, err := s.RegisterClick(900, 900)
		require.NoError(t, err)
		require.Equal(t, OutcomeMiss, res.Outcome, "click %d", i)
		assert.Equal(t, MaxClicks-i, res.Snapshot.ClicksRemaining)
	}
	res, err := s.RegisterClick(900, 900)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBudgetExhausted, res.Outcome)
	assert.Equal(t, StageGameOver, res.Snapshot.Stage)
	assert.Equal(t, StageGameOver, s.Stage)
	assert.Zero(t, res.Snapshot.ClicksRemaining)
}

func TestBudgetExhaustedSkipsEvaluation(t *testing.T) {
	s := startedSession(t, Point{100, 100}, Point{800, 800})
	for i := 0; i < MaxClicks; i++ {
		_, err := s.RegisterClick(450, 450)
		require.NoError(t, err)
	}
	// The 21st click is right on a target, but the budget is gone.
	res, err := s.RegisterClick(100, 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBudgetExhausted, res.Outcome)
	assert.Empty(t, s.Found)
	assert.Zero(t, s.Score)
}

func TestNonPlayingClicksDoNotMutate(t *testing.T) {
	stages := map[string]*Session{
		"start": New("s"),
	}
	escaped := startedSession(t, Point{100, 100})
	_, _ = escaped.RegisterClick(100, 100)
	stages["escaped"] = escaped

	over := startedSession(t, Point{100, 100})
	for i := 0; i <= MaxClicks; i++ {
		_, _ = over.RegisterClick(900, 900)
	}
	stages["game over"] = over

	for name, s := range stages {
		t.Run(name, func(t *testing.T) {
			before := s.Clone()
			for i := 0; i < 5; i++ {
				res, err := s.RegisterClick(100, 100)
				require.NoError(t, err)
				assert.Equal(t, OutcomeNoOp, res.Outcome)
			}
			assert.Equal(t, before, s)
		})
	}
}

func TestInvalidInputLeavesStateUnchanged(t *testing.T) {
	s := startedSession(t, Point{100, 100}, Point{800, 800})
	before := s.Clone()

	bad := [][2]float64{
		{math.NaN(), 1},
		{1, math.Inf(1)},
		{math.Inf(-1), 1},
		{2e6, 100},
		{100, -2e6},
	}
	for _, c := range bad {
		_, err := s.RegisterClick(c[0], c[1])
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	}
	assert.Equal(t, before, s)
}

func TestGameOverRequiresReset(t *testing.T) {
	s := startedSession(t, Point{100, 100})
	for i := 0; i <= MaxClicks; i++ {
		_, _ = s.RegisterClick(900, 900)
	}
	require.Equal(t, StageGameOver, s.Stage)

	err := s.StartRoom(3, NewRandomPlacer())
	require.ErrorIs(t, err, ErrRestartRequired)
	assert.Equal(t, StageGameOver, s.Stage)

	s.Reset()
	assert.Equal(t, StageStart, s.Stage)
	assert.Equal(t, 1, s.Level)
	assert.Zero(t, s.Score)
	require.NoError(t, s.StartRoom(TargetCount(s.Level), NewRandomPlacer()))
	assert.Equal(t, StagePlaying, s.Stage)
	assert.Len(t, s.Targets, 3)
}

func TestNextRoomAfterEscapeGrowsTargets(t *testing.T) {
	s := startedSession(t, Point{100, 100}, Point{200, 200}, Point{300, 300})
	for _, p := range []Point{{100, 100}, {200, 200}, {300, 300}} {
		_, err := s.RegisterClick(float64(p.X), float64(p.Y))
		require.NoError(t, err)
	}
	require.Equal(t, 2, s.Level)
	require.NoError(t, s.StartRoom(TargetCount(s.Level), NewRandomPlacer()))
	assert.Len(t, s.Targets, 4)
	assert.Equal(t, StagePlaying, s.Stage)
}

func TestCloneIsDeep(t *testing.T) {
	s := startedSession(t, Point{100, 100}, Point{200, 200})
	c := s.Clone()
	c.Targets[0] = Point{1, 1}
	c.Found = append(c.Found, 0)
	assert.Equal(t, Point{100, 100}, s.Targets[0])
	assert.Empty(t, s.Found)
}
