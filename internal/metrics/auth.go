// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	authOnce sync.Once

	loginsStarted  prometheus.Counter
	callbacksTotal *prometheus.CounterVec
	refreshesTotal *prometheus.CounterVec
	logoutsTotal   prometheus.Counter
)

// RegisterAuth registers the auth-flow collectors. Idempotent.
func RegisterAuth(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	authOnce.Do(func() {
		loginsStarted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_logins_started_total",
			Help: "Login redirects issued to the identity provider",
		})
		callbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_callbacks_total",
			Help: "Callback completions by outcome",
		}, []string{"outcome"}) // success|provider_error|missing_code|session_expired|invalid_state|unsafe_redirect|exchange_failed
		refreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_refreshes_total",
			Help: "Token refresh attempts by result",
		}, []string{"result"}) // success|failure
		logoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_logouts_total",
			Help: "Logout requests handled",
		})

		reg.MustRegister(loginsStarted, callbacksTotal, refreshesTotal, logoutsTotal)
	})
}

// The increment helpers are nil-safe so unit tests can run without RegisterAuth.

func LoginStarted() {
	if loginsStarted != nil {
		loginsStarted.Inc()
	}
}

func CallbackOutcome(outcome string) {
	if callbacksTotal != nil {
		callbacksTotal.WithLabelValues(outcome).Inc()
	}
}

func RefreshResult(result string) {
	if refreshesTotal != nil {
		refreshesTotal.WithLabelValues(result).Inc()
	}
}

func Logout() {
	if logoutsTotal != nil {
		logoutsTotal.Inc()
	}
}
