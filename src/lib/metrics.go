package lib

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsVerified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nftdrops",
		Name:      "payments_verified_total",
		Help:      "Payments checked by flow and outcome",
	}, []string{"flow", "outcome"})

	DistributionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nftdrops",
		Name:      "distributions_total",
		Help:      "On-chain distributions by distribution type and outcome",
	}, []string{"distribution_type", "outcome"})

	EmailsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nftdrops",
		Name:      "emails_total",
		Help:      "Transactional emails by template and result",
	}, []string{"template", "result"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nftdrops",
		Name:      "webhook_events_total",
		Help:      "Stripe webhook deliveries by event type and outcome",
	}, []string{"type", "outcome"})

	ConfirmationPolls = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nftdrops",
		Name:      "confirmation_poll_attempts",
		Help:      "Attempts needed before a crypto payment was seen mined",
		Buckets:   []float64{1, 2, 3, 4, 5},
	})
)
