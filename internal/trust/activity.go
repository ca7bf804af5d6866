package trust

import "fmt"

type Activity string

const (
	ActivityPostCreated    Activity = "post_created"
	ActivityCommentCreated Activity = "comment_created"
	ActivityLikeReceived   Activity = "like_received"
	ActivityFollowerGained Activity = "follower_gained"
	ActivityFollowerLost   Activity = "follower_lost"
	ActivityFlagReceived   Activity = "flag_received"
	ActivityContentRemoved Activity = "content_removed"
)

func ParseActivity(s string) (Activity, error) {
	a := Activity(s)
	if _, ok := Policy.ActivityPoints[a]; !ok {
		return "", fmt.Errorf("unknown activity %q", s)
	}
	return a, nil
}

// Points is the trust point delta for a. Unknown activities are worth zero.
func (a Activity) Points() int {
	return Policy.ActivityPoints[a]
}

// TriggersRecompute reports whether the delta is large enough to re-evaluate
// the level.
func (a Activity) TriggersRecompute() bool {
	d := a.Points()
	if d < 0 {
		d = -d
	}
	return d >= Policy.RecomputeThreshold
}
