package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the auth counters. A nil *Metrics records nothing.
type Metrics struct {
	signIns         *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	signUps         *prometheus.CounterVec
	sessionsEvicted prometheus.Counter
	sessionsSwept   prometheus.Counter
	staleRetries    *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whisperlink",
			Subsystem: "auth",
			Name:      "signins_total",
			Help:      "Sign-in attempts by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whisperlink",
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Access token refreshes by result.",
		}, []string{"result"}),
		signUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whisperlink",
			Subsystem: "auth",
			Name:      "signups_total",
			Help:      "Sign-ups by result.",
		}, []string{"result"}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whisperlink",
			Subsystem: "auth",
			Name:      "sessions_evicted_total",
			Help:      "Sessions dropped because an account exceeded its session limit.",
		}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "whisperlink",
			Subsystem: "auth",
			Name:      "sessions_swept_total",
			Help:      "Expired sessions removed from session lists.",
		}),
		staleRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "whisperlink",
			Subsystem: "auth",
			Name:      "stale_retries_total",
			Help:      "Account saves retried after a concurrent update.",
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{
		m.signIns, m.refreshes, m.signUps, m.sessionsEvicted, m.sessionsSwept, m.staleRetries,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SessionsSwept and SessionsEvicted make Metrics a session.Observer.
func (m *Metrics) SessionsSwept(n int) {
	if m != nil {
		m.sessionsSwept.Add(float64(n))
	}
}

func (m *Metrics) SessionsEvicted(n int) {
	if m != nil {
		m.sessionsEvicted.Add(float64(n))
	}
}

func (m *Metrics) signIn(result string) {
	if m != nil {
		m.signIns.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) refresh(result string) {
	if m != nil {
		m.refreshes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) signUp(result string) {
	if m != nil {
		m.signUps.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) staleRetry(op string) {
	if m != nil {
		m.staleRetries.WithLabelValues(op).Inc()
	}
}
