package cache

import "github.com/prometheus/client_golang/prometheus"

// Collector exports cache statistics to Prometheus.
type Collector struct {
	cache *Cache

	size      *prometheus.Desc
	capacity  *prometheus.Desc
	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
}

// NewCollector returns a prometheus.Collector reading from c on every scrape.
func NewCollector(c *Cache, namespace string) *Collector {
	fq := func(name string) string {
		return prometheus.BuildFQName(namespace, "cache", name)
	}
	return &Collector{
		cache:     c,
		size:      prometheus.NewDesc(fq("entries"), "Number of entries currently held", nil, nil),
		capacity:  prometheus.NewDesc(fq("capacity"), "Maximum number of entries", nil, nil),
		hits:      prometheus.NewDesc(fq("hits_total"), "Lookups that returned a live entry", nil, nil),
		misses:    prometheus.NewDesc(fq("misses_total"), "Lookups that found no live entry", nil, nil),
		evictions: prometheus.NewDesc(fq("evictions_total"), "Entries dropped to respect capacity", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.capacity
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.cache.Stats()
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(s.Capacity))
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
}
