package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GameActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_actions_total",
			Help: "Match actions by game, action and outcome",
		},
		[]string{"game", "action", "outcome"},
	)
	StoreConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "store_conflicts_total",
			Help: "Commits retried because another writer got there first",
		},
	)
	TimersFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timers_fired_total",
			Help: "Delayed actions fired by the scheduler",
		},
		[]string{"action"},
	)
	MatchesSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matches_swept_total",
			Help: "Stale or expired matches removed by the janitor",
		},
	)
)

func init() {
	prometheus.MustRegister(GameActions)
	prometheus.MustRegister(StoreConflicts)
	prometheus.MustRegister(TimersFired)
	prometheus.MustRegister(MatchesSwept)
}

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeBusy     = "busy"
	outcomeError    = "error"
)
