// Package trust holds the pure trust model: levels, the level recomputation
// rule and the fixed policy tables that every other component reads.
package trust

import (
	"fmt"
	"strings"
	"time"
)

type Level int

const (
	LevelNew      Level = 0
	LevelBasic    Level = 1
	LevelTrusted  Level = 2
	LevelVerified Level = 3
)

// Levels lists every level in ascending privilege.
var Levels = []Level{LevelNew, LevelBasic, LevelTrusted, LevelVerified}

func (l Level) String() string {
	switch l {
	case LevelNew:
		return "new"
	case LevelBasic:
		return "basic"
	case LevelTrusted:
		return "trusted"
	case LevelVerified:
		return "verified"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Valid reports whether l is one of the four known levels.
func (l Level) Valid() bool {
	return l >= LevelNew && l <= LevelVerified
}

// LevelFromInt maps a stored ordinal back to a Level. Unknown values fall back
// to New.
func LevelFromInt(v int) Level {
	l := Level(v)
	if !l.Valid() {
		return LevelNew
	}
	return l
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new":
		return LevelNew, nil
	case "basic":
		return LevelBasic, nil
	case "trusted":
		return LevelTrusted, nil
	case "verified":
		return LevelVerified, nil
	}
	return LevelNew, fmt.Errorf("unknown trust level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Metrics is the input of ComputeLevel.
type Metrics struct {
	AccountAge       time.Duration
	Posts            int
	Points           int
	Flags            int
	Strikes          int
	VerifiedOverride bool
}

// AgeDays is the account age in whole days.
func (m Metrics) AgeDays() int {
	if m.AccountAge <= 0 {
		return 0
	}
	return int(m.AccountAge / (24 * time.Hour))
}

type levelRule struct {
	name  string
	match func(m Metrics) bool
	level Level
}

// levelRules is evaluated top to bottom; the first match wins. Keep the
// strike demotion first so it overrides every positive signal.
var levelRules = []levelRule{
	{
		name:  "strike demotion",
		match: func(m Metrics) bool { return m.Strikes >= Policy.DemotionStrikes },
		level: LevelNew,
	},
	{
		name:  "verified override",
		match: func(m Metrics) bool { return m.VerifiedOverride },
		level: LevelVerified,
	},
	{
		name: "trusted",
		match: func(m Metrics) bool {
			g := Policy.TrustedGate
			return m.AgeDays() >= g.MinAgeDays && m.Posts >= g.MinPosts && m.Points >= g.MinPoints && m.Flags < g.MaxFlags
		},
		level: LevelTrusted,
	},
	{
		name: "basic",
		match: func(m Metrics) bool {
			g := Policy.BasicGate
			return m.AgeDays() >= g.MinAgeDays && m.Posts >= g.MinPosts && m.Points >= g.MinPoints && m.Flags < g.MaxFlags
		},
		level: LevelBasic,
	},
}

// ComputeLevel derives the trust level from accumulated signals. It is total
// and deterministic.
func ComputeLevel(m Metrics) Level {
	for _, r := range levelRules {
		if r.match(m) {
			return r.level
		}
	}
	return LevelNew
}
