package maker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Cycles          prometheus.Counter
	OffersCreated   prometheus.Counter
	OffersCancelled prometheus.Counter
	Submissions     prometheus.Counter
	Errors          *prometheus.CounterVec
	OpenOffers      prometheus.Gauge
	Bid             prometheus.Gauge
	Ask             prometheus.Gauge
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dexmaker",
			Name:      "cycles_total",
			Help:      "Loop iterations run.",
		}),
		OffersCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dexmaker",
			Name:      "offers_created_total",
			Help:      "Offers created on the order book.",
		}),
		OffersCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dexmaker",
			Name:      "offers_cancelled_total",
			Help:      "Offers deleted from the order book.",
		}),
		Submissions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dexmaker",
			Name:      "transactions_submitted_total",
			Help:      "Transactions accepted by Horizon.",
		}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dexmaker",
			Name:      "errors_total",
			Help:      "Errors by kind.",
		}, []string{"kind"}),
		OpenOffers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "dexmaker",
			Name:      "open_offers",
			Help:      "Open offers on the configured pair at the last poll.",
		}),
		Bid: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "dexmaker",
			Name:      "best_bid",
			Help:      "Best bid observed when offers were last created.",
		}),
		Ask: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "dexmaker",
			Name:      "best_ask",
			Help:      "Best ask observed when offers were last created.",
		}),
	}
}
