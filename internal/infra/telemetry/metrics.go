package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsOptions configures the account-security metric collectors.
type MetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// Metrics exposes Prometheus collectors for authentication instrumentation.
type Metrics struct {
	LoginAttempts     *prometheus.CounterVec
	PasscodesIssued   *prometheus.CounterVec
	PasscodesConsumed *prometheus.CounterVec
	JanitorDeleted    prometheus.Counter
}

// NewMetrics constructs and registers the collectors with the provided registerer.
func NewMetrics(opts MetricsOptions) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "accounts"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	loginAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Total login attempts partitioned by outcome.",
	}, []string{"outcome"})

	passcodesIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "passcode",
		Name:      "issued_total",
		Help:      "Total one-time passcodes issued partitioned by purpose.",
	}, []string{"purpose"})

	passcodesConsumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "passcode",
		Name:      "validations_total",
		Help:      "Total passcode validations partitioned by result.",
	}, []string{"result"})

	janitorDeleted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "passcode",
		Name:      "janitor_deleted_total",
		Help:      "Total expired passcode rows removed by the janitor.",
	})

	collectors := []prometheus.Collector{loginAttempts, passcodesIssued, passcodesConsumed, janitorDeleted}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, fmt.Errorf("register collector: %w", err)
			}
		}
	}

	return &Metrics{
		LoginAttempts:     loginAttempts,
		PasscodesIssued:   passcodesIssued,
		PasscodesConsumed: passcodesConsumed,
		JanitorDeleted:    janitorDeleted,
	}, nil
}
