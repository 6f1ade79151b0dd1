package game

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Default placement bounds for the 1024x1024 scene, inset from the edges.
const (
	DefaultBoundMin = 80
	DefaultBoundMax = 950

	separationAttempts = 30
)

// Placer supplies n target points for a new room.
type Placer interface {
	Place(n int) []Point
}

// PlacerFunc adapts a function to Placer.
type PlacerFunc func(n int) []Point

func (f PlacerFunc) Place(n int) []Point { return f(n) }

// FixedPlacer always returns the same points (tests, replays).
type FixedPlacer []Point

func (f FixedPlacer) Place(n int) []Point {
	if n > len(f) {
		n = len(f)
	}
	return append([]Point(nil), f[:n]...)
}

// RandomPlacer draws points uniformly from [Min, Max]² (inclusive).
// MinSeparation is zero by default, which allows overlapping targets.
// When set, each point is redrawn up to a bounded number of times to keep
// that distance from earlier points; the last draw is kept if none fits.
type RandomPlacer struct {
	Min, Max      int
	MinSeparation float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomPlacer returns a placer over the default bounds seeded from the runtime.
func NewRandomPlacer() *RandomPlacer {
	return &RandomPlacer{
		Min: DefaultBoundMin,
		Max: DefaultBoundMax,
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// NewSeededPlacer returns a deterministic placer; the same seed yields the same rooms.
func NewSeededPlacer(seed uint64) *RandomPlacer {
	return &RandomPlacer{
		Min: DefaultBoundMin,
		Max: DefaultBoundMax,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (r *RandomPlacer) Place(n int) []Point {
	if n <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	lo, hi := r.Min, r.Max
	if hi < lo {
		lo, hi = hi, lo
	}

	out := make([]Point, 0, n)
	for len(out) < n {
		var p Point
		for attempt := 0; attempt < separationAttempts; attempt++ {
			p = Point{X: lo + r.rng.IntN(hi-lo+1), Y: lo + r.rng.IntN(hi-lo+1)}
			if r.MinSeparation <= 0 || farFromAll(p, out, r.MinSeparation) {
				break
			}
		}
		out = append(out, p)
	}
	return out
}

func farFromAll(p Point, pts []Point, sep float64) bool {
	for _, q := range pts {
		if math.Hypot(float64(p.X-q.X), float64(p.Y-q.Y)) < sep {
			return false
		}
	}
	return true
}
