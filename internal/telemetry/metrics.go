package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/event"
)

const namespace = "raindrop"

type Metrics struct {
	Challenges      *prometheus.CounterVec
	BattlesStarted  prometheus.Counter
	BattlesFinished *prometheus.CounterVec
	Answers         *prometheus.CounterVec
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the service metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Challenges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenge_events_total",
			Help:      "Challenge lifecycle transitions.",
		}, []string{"event"}),
		BattlesStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "battles_started_total",
			Help:      "Battles that moved to in-progress.",
		}),
		BattlesFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "battles_completed_total",
			Help:      "Completed battles by win condition.",
		}, []string{"win_condition"}),
		Answers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Submitted battle answers.",
		}, []string{"correct"}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Observe counts domain events published on eb.
func (m *Metrics) Observe(eb *event.Bus) {
	count := func(ctx context.Context, e event.Event) error {
		m.Challenges.WithLabelValues(e.Name()).Inc()
		return nil
	}
	for _, name := range []string{
		domain.EventNameChallengeCreated,
		domain.EventNameChallengeAccepted,
		domain.EventNameChallengeDeclined,
		domain.EventNameChallengeCancelled,
		domain.EventNameChallengeExpired,
	} {
		eb.Subscribe(name, count)
	}

	event.On(eb, domain.EventNameBattleStarted, func(context.Context, domain.EventBattleStarted) error {
		m.BattlesStarted.Inc()
		return nil
	})
	event.On(eb, domain.EventNameBattleCompleted, func(_ context.Context, e domain.EventBattleCompleted) error {
		cond := ""
		if e.Battle.Results != nil {
			cond = string(e.Battle.Results.WinCondition)
		}
		m.BattlesFinished.WithLabelValues(cond).Inc()
		return nil
	})
	event.On(eb, domain.EventNameAnswerSubmitted, func(_ context.Context, e domain.EventAnswerSubmitted) error {
		m.Answers.WithLabelValues(strconv.FormatBool(e.Answer.Correct)).Inc()
		return nil
	})
}

// GinMiddleware records request counts and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
