package bonecache

import "github.com/prometheus/client_golang/prometheus"

// Collector exports cache counters to Prometheus.
type Collector struct {
	cache *Cache

	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	bytes     *prometheus.Desc
	budget    *prometheus.Desc
	entries   *prometheus.Desc
}

// NewCollector returns a collector for c. Register it with a
// prometheus.Registerer to expose the metrics.
func NewCollector(c *Cache) *Collector {
	return &Collector{
		cache:     c,
		hits:      prometheus.NewDesc("bonecache_hits_total", "Acquires that found matrices valid for the requested time.", nil, nil),
		misses:    prometheus.NewDesc("bonecache_misses_total", "Acquires that had to recompute.", nil, nil),
		evictions: prometheus.NewDesc("bonecache_evictions_total", "Entries evicted to stay within the byte budget.", nil, nil),
		bytes:     prometheus.NewDesc("bonecache_bytes", "Bytes charged to live entries.", nil, nil),
		budget:    prometheus.NewDesc("bonecache_budget_bytes", "Configured byte budget.", nil, nil),
		entries:   prometheus.NewDesc("bonecache_entries", "Live entries.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.bytes
	ch <- c.budget
	ch <- c.entries
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.cache.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(s.Bytes))
	ch <- prometheus.MustNewConstMetric(c.budget, prometheus.GaugeValue, float64(s.Budget))
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.Entries))
}
