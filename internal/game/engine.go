// internal/game/engine.go
//
// Core game engine for a single hidden-object session.
// Responsibilities:
//   - Start rooms with a fresh set of targets from a Placer.
//   - Classify clicks against the remaining targets (hit/near/miss).
//   - Enforce the per-room click budget.
//   - Track state transitions: start → playing → escaped | game over.
//
// Notes:
//   - The engine never talks to generators or stores; callers hand it points
//     and persist the session afterwards.
//   - Target placement does not guarantee separation. Two targets may overlap
//     inside HitRadius; each is still found by its own click because Found
//     tracks target indexes, not coordinates.
package game

import (
	"fmt"
	"math"
	"time"
)

const (
	HitRadius   = 50.0
	NearRadius  = 150.0
	MaxClicks   = 20
	HitReward   = 100
	EscapeBonus = 300

	baseTargets = 2

	// maxCoordinate bounds accepted click input; anything larger is garbage
	// from the client rather than a position on a scene image.
	maxCoordinate = 1e6
)

// TargetCount is the number of hidden targets for a level.
func TargetCount(level int) int { return baseTargets + level }

// New constructs a session at StageStart, level 1, score 0.
func New(id string) *Session {
	return &Session{
		ID:        id,
		Stage:     StageStart,
		Level:     1,
		Targets:   []Point{},
		Found:     []int{},
		CreatedAt: time.Now().UTC(),
	}
}

// StartRoom replaces the current room with n targets from p.
// The call is atomic: on error nothing is mutated.
//
// Allowed from START, PLAYING (the current room is abandoned) and ESCAPED.
// From GAME_OVER the caller must Reset first.
func (s *Session) StartRoom(n int, p Placer) error {
	if n <= 0 {
		return fmt.Errorf("%w: target count %d", ErrInvalidConfiguration, n)
	}
	if p == nil {
		return fmt.Errorf("%w: no placer", ErrInvalidConfiguration)
	}
	if s.Stage == StageGameOver {
		return ErrRestartRequired
	}
	pts := p.Place(n)
	if len(pts) != n {
		return fmt.Errorf("%w: placer returned %d of %d targets", ErrInvalidConfiguration, len(pts), n)
	}

	targets := make([]Point, n)
	copy(targets, pts)
	s.Targets = targets
	s.Found = []int{}
	s.ClickCount = 0
	s.Stage = StagePlaying
	return nil
}

// Reset restarts the run after a game over: level 1, score 0, no room.
func (s *Session) Reset() {
	s.Stage = StageStart
	s.Level = 1
	s.Score = 0
	s.Targets = []Point{}
	s.Found = []int{}
	s.ClickCount = 0
	s.Room = Room{}
	s.RoomID = ""
}

// RegisterClick evaluates a click at (x, y) in target space.
//
// Sequence while playing:
//  1. Count the click; over MaxClicks → GAME_OVER, BUDGET_EXHAUSTED.
//  2. Find the nearest target not yet found.
//  3. d < HitRadius → HIT, d < NearRadius → NEAR, otherwise MISS.
//  4. A HIT that completes the set → ESCAPED, bonus, next level.
//
// Outside PLAYING the call is a NO_OP and nothing is mutated.
func (s *Session) RegisterClick(x, y float64) (ClickResult, error) {
	if !validCoord(x) || !validCoord(y) {
		return ClickResult{}, fmt.Errorf("%w: (%v, %v)", ErrInvalidInput, x, y)
	}
	if s.Stage != StagePlaying {
		return ClickResult{Outcome: OutcomeNoOp, Snapshot: s.Snapshot()}, nil
	}

	s.ClickCount++
	if s.ClickCount > MaxClicks {
		s.Stage = StageGameOver
		return ClickResult{Outcome: OutcomeBudgetExhausted, Snapshot: s.Snapshot()}, nil
	}

	idx, dist := s.nearestRemaining(x, y)
	if idx < 0 {
		return ClickResult{Outcome: OutcomeNoOp, Snapshot: s.Snapshot()}, nil
	}

	res := ClickResult{Distance: dist}
	switch {
	case dist < HitRadius:
		res.Outcome = OutcomeHit
		s.Found = append(s.Found, idx)
		s.Score += HitReward
		t := s.Targets[idx]
		res.Target = &t
		if len(s.Found) == len(s.Targets) {
			s.Stage = StageEscaped
			s.Score += EscapeBonus
			s.Level++
			res.Escaped = true
		}
	case dist < NearRadius:
		res.Outcome = OutcomeNear
	default:
		res.Outcome = OutcomeMiss
	}
	res.Snapshot = s.Snapshot()
	return res, nil
}

// Snapshot reports the values the presentation layer needs.
func (s *Session) Snapshot() Snapshot {
	remaining := MaxClicks - s.ClickCount
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{
		Stage:            s.Stage,
		Level:            s.Level,
		Score:            s.Score,
		ClicksRemaining:  remaining,
		TargetsRemaining: len(s.Targets) - len(s.Found),
		TargetCount:      len(s.Targets),
		Found:            s.FoundPoints(),
	}
}

// FoundPoints returns the found targets in discovery order.
func (s *Session) FoundPoints() []Point {
	out := make([]Point, 0, len(s.Found))
	for _, i := range s.Found {
		if i >= 0 && i < len(s.Targets) {
			out = append(out, s.Targets[i])
		}
	}
	return out
}

// Clone returns a deep copy, so stores never hand out shared slices.
func (s *Session) Clone() *Session {
	c := *s
	c.Targets = append([]Point(nil), s.Targets...)
	c.Found = append([]int(nil), s.Found...)
	return &c
}

// nearestRemaining returns the index of the closest unfound target and its
// distance, or -1 when every target is found.
func (s *Session) nearestRemaining(x, y float64) (int, float64) {
	found := make(map[int]struct{}, len(s.Found))
	for _, i := range s.Found {
		found[i] = struct{}{}
	}
	best, bestDist := -1, math.Inf(1)
	for i, p := range s.Targets {
		if _, ok := found[i]; ok {
			continue
		}
		d := math.Hypot(x-float64(p.X), y-float64(p.Y))
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// validCoord rejects NaN, ±Inf and absurd magnitudes.
func validCoord(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) <= maxCoordinate
}
