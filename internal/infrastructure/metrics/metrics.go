// Package metrics exposes Prometheus counters for the bidding engine and
// lot closer, plus the /metrics scrape handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the Metrics interfaces of the bidding and closing
// services on a dedicated Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	bidsTotal      *prometheus.CounterVec
	proxyTriggered prometheus.Counter
	softCloses     prometheus.Counter
	buyNows        prometheus.Counter
	lotsClosed     *prometheus.CounterVec
	wsClients      prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		bidsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "bids_total",
			Help:      "Bid attempts by result code.",
		}, []string{"result"}),
		proxyTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "proxy_bids_triggered_total",
			Help:      "Automatic proxy bids placed on behalf of a max bid.",
		}),
		softCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "soft_close_extensions_total",
			Help:      "Lot closing times extended by late bids.",
		}),
		buyNows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "buy_now_total",
			Help:      "Lots sold at their buy now price.",
		}),
		lotsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "lots_closed_total",
			Help:      "Lots settled by outcome.",
		}, []string{"outcome"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "auction",
			Name:      "websocket_clients",
			Help:      "Currently connected live-update clients.",
		}),
	}

	c.registry.MustRegister(
		c.bidsTotal,
		c.proxyTriggered,
		c.softCloses,
		c.buyNows,
		c.lotsClosed,
		c.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) RecordBid(resultCode string) { c.bidsTotal.WithLabelValues(resultCode).Inc() }
func (c *Collector) RecordProxyTriggered()       { c.proxyTriggered.Inc() }
func (c *Collector) RecordSoftClose()            { c.softCloses.Inc() }
func (c *Collector) RecordBuyNow()               { c.buyNows.Inc() }

func (c *Collector) RecordLotClosed(outcome string) { c.lotsClosed.WithLabelValues(outcome).Inc() }

func (c *Collector) ClientConnected()    { c.wsClients.Inc() }
func (c *Collector) ClientDisconnected() { c.wsClients.Dec() }

// Handler returns the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
