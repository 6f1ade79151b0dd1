// internal/daily/daily.go
//
// The daily room: one deterministic room per UTC day, the same for every
// player. The date is keyed with HMAC(salt, YYYY-MM-DD) so the layout cannot
// be predicted without the server salt.
package daily

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/robalobadob/escaperoom/internal/game"
	"github.com/robalobadob/escaperoom/internal/themes"
)

// Level is the level every daily room is played at.
const Level = 1

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Seed derives the day's seed from the first 8 bytes of HMAC-SHA256(salt, date).
func Seed(date, salt string) uint64 {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(date))
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// Plan is everything needed to start the day's room.
type Plan struct {
	Date    string
	Seed    uint64
	Theme   string
	Targets []game.Point
}

// Placer hands out the plan's fixed targets.
func (p Plan) Placer() game.Placer { return game.FixedPlacer(p.Targets) }

// PlanFor builds the plan for the day containing t.
func PlanFor(t time.Time, salt string, catalog *themes.Catalog) Plan {
	date := DateKey(t)
	seed := Seed(date, salt)
	return Plan{
		Date:    date,
		Seed:    seed,
		Theme:   catalog.ForIndex(seed),
		Targets: game.NewSeededPlacer(seed).Place(game.TargetCount(Level)),
	}
}
