package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeAllowed     = "allowed"
	OutcomeLimited     = "limited"
	OutcomeUnavailable = "unavailable"
)

var (
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_ratelimit_decisions_total",
		Help: "Rate limit checks by action and outcome.",
	}, []string{"action", "outcome"})

	Strikes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trust_strikes_total",
		Help: "Strikes recorded against users.",
	})

	Bans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trust_bans_total",
		Help: "Automatic bans imposed on strike escalation.",
	})

	DeviceBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trust_device_blocks_total",
		Help: "Devices blocked, manually or by risk threshold.",
	})

	InvitesConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trust_invites_consumed_total",
		Help: "Successful invite redemptions.",
	})
)
