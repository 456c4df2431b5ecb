package coordinator

import "github.com/prometheus/client_golang/prometheus"

var (
	// challengesIssued counts puzzles sent, labeled by variant.
	challengesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_challenges_issued_total",
			Help: "Total number of verification challenges issued.",
		},
		[]string{"kind"},
	)

	// challengeOutcomes counts terminal resolutions of membership requests.
	challengeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_challenge_outcomes_total",
			Help: "Terminal outcomes of verification challenges.",
		},
		[]string{"outcome"},
	)

	// answerRaces counts answer/timeout collisions resolved by losing the
	// terminal-transition check. Expected to be rare but nonzero.
	answerRaces = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_challenge_races_total",
			Help: "Challenge resolutions abandoned after losing the terminal transition.",
		},
	)
)

func init() {
	prometheus.MustRegister(challengesIssued, challengeOutcomes, answerRaces)
}
