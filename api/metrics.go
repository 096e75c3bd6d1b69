package api

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the Prometheus counters for the auth surface. Counters
// register against the default registry once; every API instance shares
// them.
type metrics struct {
	registrations      prometheus.Counter
	logins             prometheus.Counter
	loginFailures      prometheus.Counter
	logouts            prometheus.Counter
	validations        prometheus.Counter
	validationFailures prometheus.Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *metrics
)

func newMetrics() *metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &metrics{
			registrations: promauto.NewCounter(prometheus.CounterOpts{
				Name: "keygate_registrations_total",
				Help: "Accounts registered.",
			}),
			logins: promauto.NewCounter(prometheus.CounterOpts{
				Name: "keygate_logins_total",
				Help: "Successful logins.",
			}),
			loginFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "keygate_login_failures_total",
				Help: "Rejected login attempts.",
			}),
			logouts: promauto.NewCounter(prometheus.CounterOpts{
				Name: "keygate_logouts_total",
				Help: "Explicit logouts.",
			}),
			validations: promauto.NewCounter(prometheus.CounterOpts{
				Name: "keygate_token_validations_total",
				Help: "Successful token validations.",
			}),
			validationFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "keygate_token_validation_failures_total",
				Help: "Rejected token validations.",
			}),
		}
	})
	return sharedMetrics
}
