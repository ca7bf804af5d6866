package trust

import "time"

type Action string

const (
	ActionPost     Action = "post"
	ActionFollow   Action = "follow"
	ActionUnfollow Action = "unfollow"
	ActionLike     Action = "like"
	ActionComment  Action = "comment"
	ActionLogin    Action = "login"
	ActionSignup   Action = "signup"
)

// GatedActions are the per-user actions carried in the rate table.
var GatedActions = []Action{ActionPost, ActionFollow, ActionUnfollow, ActionLike, ActionComment, ActionLogin}

const (
	Hour = time.Hour
	Day  = 24 * time.Hour
)

// Quota is one (limit, window) pair.
type Quota struct {
	Limit  int
	Window time.Duration
}

// LevelGate is a set of minimums a user must meet for a level.
type LevelGate struct {
	MinAgeDays int
	MinPosts   int
	MinPoints  int
	MaxFlags   int // exclusive
}

// RiskBracket applies Increase when the device has at most MaxPriorAccounts
// accounts attached before the new one. MaxPriorAccounts < 0 means unbounded.
type RiskBracket struct {
	MaxPriorAccounts int
	Increase         int
}

// PolicyTable is the single place holding product thresholds.
type PolicyTable struct {
	RateLimits map[Level]map[Action][]Quota
	IPLimits   map[Action]Quota

	ActivityPoints map[Activity]int
	// RecomputeThreshold is the smallest |delta| that triggers a level recompute.
	RecomputeThreshold int

	DemotionStrikes int
	TrustedGate     LevelGate
	BasicGate       LevelGate

	StrikePenalty     int
	FlagPenalty       int
	FlagStrikeEvery   int
	BanDurations      map[int]time.Duration
	MaxBanDuration    time.Duration
	BanStartsAtStrike int

	InviteQuota      map[Level]int
	InviteReward     int
	InviteCodeLength int
	InviteCodeTries  int

	RiskBrackets       []RiskBracket
	MaxRiskScore       int
	AutoBlockRiskScore int
}

var Policy = PolicyTable{
	RateLimits: map[Level]map[Action][]Quota{
		LevelNew: {
			ActionPost:     {{1, Hour}, {5, Day}},
			ActionFollow:   {{5, Hour}, {20, Day}},
			ActionUnfollow: {{10, Day}},
			ActionLike:     {{30, Hour}},
			ActionComment:  {{10, Hour}},
			ActionLogin:    {{5, Hour}},
		},
		LevelBasic: {
			ActionPost:     {{5, Hour}, {20, Day}},
			ActionFollow:   {{20, Hour}, {100, Day}},
			ActionUnfollow: {{50, Day}},
			ActionLike:     {{100, Hour}},
			ActionComment:  {{30, Hour}},
			ActionLogin:    {{10, Hour}},
		},
		LevelTrusted: {
			ActionPost:     {{20, Hour}, {100, Day}},
			ActionFollow:   {{100, Hour}, {500, Day}},
			ActionUnfollow: {{200, Day}},
			ActionLike:     {{500, Hour}},
			ActionComment:  {{100, Hour}},
			ActionLogin:    {{20, Hour}},
		},
		LevelVerified: {
			ActionPost:     {{50, Hour}, {200, Day}},
			ActionFollow:   {{200, Hour}, {1000, Day}},
			ActionUnfollow: {{500, Day}},
			ActionLike:     {{1000, Hour}},
			ActionComment:  {{200, Hour}},
			ActionLogin:    {{30, Hour}},
		},
	},
	IPLimits: map[Action]Quota{
		ActionLogin:  {10, Hour},
		ActionSignup: {3, Day},
	},

	ActivityPoints: map[Activity]int{
		ActivityPostCreated:    5,
		ActivityCommentCreated: 2,
		ActivityLikeReceived:   1,
		ActivityFollowerGained: 3,
		ActivityFollowerLost:   -1,
		ActivityFlagReceived:   -10,
		ActivityContentRemoved: -25,
	},
	RecomputeThreshold: 5,

	DemotionStrikes: 3,
	TrustedGate:     LevelGate{MinAgeDays: 90, MinPosts: 50, MinPoints: 200, MaxFlags: 3},
	BasicGate:       LevelGate{MinAgeDays: 7, MinPosts: 5, MinPoints: 20, MaxFlags: 5},

	StrikePenalty:   50,
	FlagPenalty:     10,
	FlagStrikeEvery: 10,
	BanDurations: map[int]time.Duration{
		3: 7 * Day,
		4: 30 * Day,
	},
	MaxBanDuration:    365 * Day,
	BanStartsAtStrike: 3,

	InviteQuota: map[Level]int{
		LevelNew:      3,
		LevelBasic:    10,
		LevelTrusted:  50,
		LevelVerified: 200,
	},
	InviteReward:     10,
	InviteCodeLength: 12,
	InviteCodeTries:  10,

	RiskBrackets: []RiskBracket{
		{MaxPriorAccounts: 2, Increase: 5},
		{MaxPriorAccounts: 5, Increase: 15},
		{MaxPriorAccounts: 10, Increase: 30},
		{MaxPriorAccounts: -1, Increase: 50},
	},
	MaxRiskScore:       100,
	AutoBlockRiskScore: 90,
}

// QuotasFor returns the windows that gate action at level. A nil result means
// the action is not rate limited.
func QuotasFor(level Level, action Action) []Quota {
	byAction, ok := Policy.RateLimits[level]
	if !ok {
		byAction = Policy.RateLimits[LevelNew]
	}
	return byAction[action]
}

// WindowsFor returns the distinct window lengths tracked for action. Counters
// are level-independent so a promotion does not reset them.
func WindowsFor(action Action) []time.Duration {
	return windowsOf(QuotasFor(LevelNew, action))
}

func windowsOf(quotas []Quota) []time.Duration {
	if len(quotas) == 0 {
		return nil
	}
	out := make([]time.Duration, 0, len(quotas))
	for _, q := range quotas {
		out = append(out, q.Window)
	}
	return out
}

// IPQuotaFor returns the pre-authentication quota for action.
func IPQuotaFor(action Action) (Quota, bool) {
	q, ok := Policy.IPLimits[action]
	return q, ok
}

// BanDuration is the suspension imposed when a user reaches strikes. The
// second result is false below the ban threshold.
func BanDuration(strikes int) (time.Duration, bool) {
	if strikes < Policy.BanStartsAtStrike {
		return 0, false
	}
	if d, ok := Policy.BanDurations[strikes]; ok {
		return d, true
	}
	return Policy.MaxBanDuration, true
}

// InviteQuotaFor is the lifetime number of invites a level may send.
func InviteQuotaFor(level Level) int {
	if q, ok := Policy.InviteQuota[level]; ok {
		return q
	}
	return Policy.InviteQuota[LevelNew]
}

// RiskIncrease is the risk added when a new account is attached to a device
// already seen with priorAccounts accounts.
func RiskIncrease(priorAccounts int) int {
	for _, b := range Policy.RiskBrackets {
		if b.MaxPriorAccounts < 0 || priorAccounts <= b.MaxPriorAccounts {
			return b.Increase
		}
	}
	return Policy.RiskBrackets[len(Policy.RiskBrackets)-1].Increase
}

// RaiseRisk adds the bracket increase to score and clamps the result.
func RaiseRisk(score, priorAccounts int) int {
	score += RiskIncrease(priorAccounts)
	if score > Policy.MaxRiskScore {
		return Policy.MaxRiskScore
	}
	return score
}

// ClampPoints floors points at zero.
func ClampPoints(points int) int {
	if points < 0 {
		return 0
	}
	return points
}
