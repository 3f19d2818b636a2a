package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolStats is the part of pgxpool.Stat exported as gauges
type PoolStats interface {
	TotalConns() int32
	AcquiredConns() int32
	IdleConns() int32
	MaxConns() int32
}

type dbPoolCollector struct {
	stats    func() PoolStats
	total    *prometheus.Desc
	acquired *prometheus.Desc
	idle     *prometheus.Desc
	max      *prometheus.Desc
}

// NewDBPoolCollector reads pool statistics on every scrape
func NewDBPoolCollector(stats func() PoolStats) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", name), help, nil, nil)
	}
	return &dbPoolCollector{
		stats:    stats,
		total:    desc("total_conns", "Connections currently open"),
		acquired: desc("acquired_conns", "Connections currently in use"),
		idle:     desc("idle_conns", "Idle connections"),
		max:      desc("max_conns", "Maximum size of the pool"),
	}
}

// RegisterDBPool registers the pool collector with the default registry
func RegisterDBPool(stats func() PoolStats) error {
	return prometheus.Register(NewDBPoolCollector(stats))
}

func (c *dbPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.acquired
	ch <- c.idle
	ch <- c.max
}

func (c *dbPoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns()))
}
