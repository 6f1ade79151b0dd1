// internal/game/types.go
//
// Core type definitions for the hidden-object game engine.
// Defines:
//   - Stage: coarse lifecycle of a session (start/playing/escaped/game over).
//   - Outcome: per-click classification returned to the caller.
//   - Point, Room, Session: state for a single player's run of rooms.
//   - Snapshot, ClickResult: read-only views handed to the presentation layer.

package game

import (
	"errors"
	"time"
)

// Stage is the session state machine position.
type Stage string

const (
	StageStart    Stage = "START"
	StagePlaying  Stage = "PLAYING"
	StageEscaped  Stage = "ESCAPED"
	StageGameOver Stage = "GAME_OVER"
)

// Outcome represents the evaluation result for a single click.
//   - HIT:              click landed within HitRadius of a remaining target.
//   - NEAR:             within NearRadius but not a hit ("warm").
//   - MISS:             nothing close ("cold").
//   - BUDGET_EXHAUSTED: the click went over MaxClicks; the room is lost.
//   - NO_OP:            session was not playing; nothing changed.
type Outcome string

const (
	OutcomeHit             Outcome = "HIT"
	OutcomeNear            Outcome = "NEAR"
	OutcomeMiss            Outcome = "MISS"
	OutcomeBudgetExhausted Outcome = "BUDGET_EXHAUSTED"
	OutcomeNoOp            Outcome = "NO_OP"
)

var (
	// ErrInvalidInput is returned for non-finite or out-of-range click coordinates.
	ErrInvalidInput = errors.New("invalid click coordinates")
	// ErrInvalidConfiguration is returned when a room cannot be built as requested.
	ErrInvalidConfiguration = errors.New("invalid room configuration")
	// ErrRestartRequired is returned when starting a room after game over without Reset.
	ErrRestartRequired = errors.New("game over: reset required")
)

// Point is an image-space coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Room is the generated content of the current round. The engine only
// stores it; it is produced by the scene generator.
type Room struct {
	Theme       string    `json:"theme"`
	Description string    `json:"description"`
	StartedAt   time.Time `json:"startedAt"`
}

// Session holds the state of one player's run. Fields are exported so the
// session can be persisted by any store; mutate only through the methods.
type Session struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner,omitempty"` // user id or anonymous id
	Mode       string    `json:"mode,omitempty"`  // "classic" | "daily"
	Stage      Stage     `json:"stage"`
	Level      int       `json:"level"`
	Score      int       `json:"score"`
	Targets    []Point   `json:"targets"`
	Found      []int     `json:"found"` // indexes into Targets, in discovery order
	ClickCount int       `json:"clickCount"`
	Room       Room      `json:"room"`
	RoomID     string    `json:"roomId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Snapshot is what the presentation layer renders after every operation.
type Snapshot struct {
	Stage            Stage   `json:"stage"`
	Level            int     `json:"level"`
	Score            int     `json:"score"`
	ClicksRemaining  int     `json:"clicksRemaining"`
	TargetsRemaining int     `json:"targetsRemaining"`
	TargetCount      int     `json:"targetCount"`
	Found            []Point `json:"found"`
}

// ClickResult is returned by RegisterClick.
type ClickResult struct {
	Outcome  Outcome  `json:"outcome"`
	Distance float64  `json:"distance,omitempty"`
	Target   *Point   `json:"target,omitempty"` // set on HIT
	Escaped  bool     `json:"escaped,omitempty"`
	Snapshot Snapshot `json:"snapshot"`
}
