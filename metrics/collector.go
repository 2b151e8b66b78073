// Package metrics exports pipe statistics to Prometheus.
//
// A Collector holds a set of named pipes and reads their counters on every
// scrape, so the pipes themselves never touch Prometheus:
//
//	c := metrics.NewCollector("kernel")
//	c.Add(p.Name(), p)
//	prometheus.MustRegister(c)
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aradilov/ringpipe"
)

// Source is what the collector reads from a pipe.
type Source interface {
	Stats() ringpipe.Stats
	ReadAvail() int
	Cap() int
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(ringpipe.Stats) uint64
}

// Collector implements prometheus.Collector over a set of pipes.
type Collector struct {
	counters []counterDesc
	buffered *prometheus.Desc
	capacity *prometheus.Desc

	mu      sync.RWMutex
	sources map[string]Source
}

// NewCollector creates a collector whose metric names start with namespace.
func NewCollector(namespace string) *Collector {
	labels := []string{"pipe"}
	counter := func(name, help string, value func(ringpipe.Stats) uint64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "pipe", name), help, labels, nil),
			value: value,
		}
	}

	return &Collector{
		counters: []counterDesc{
			counter("writes_total", "Write calls that moved at least one byte",
				func(s ringpipe.Stats) uint64 { return s.Writes }),
			counter("reads_total", "Read calls that moved at least one byte",
				func(s ringpipe.Stats) uint64 { return s.Reads }),
			counter("written_bytes_total", "Bytes written into the pipe",
				func(s ringpipe.Stats) uint64 { return s.BytesWritten }),
			counter("read_bytes_total", "Bytes read from the pipe",
				func(s ringpipe.Stats) uint64 { return s.BytesRead }),
			counter("waits_total", "Times a caller blocked on the pipe",
				func(s ringpipe.Stats) uint64 { return s.Waits }),
			counter("timeouts_total", "Calls that timed out without progress",
				func(s ringpipe.Stats) uint64 { return s.Timeouts }),
			counter("cancellations_total", "Calls cancelled by a reset",
				func(s ringpipe.Stats) uint64 { return s.Cancellations }),
			counter("closed_errors_total", "Calls refused because the pipe was closed",
				func(s ringpipe.Stats) uint64 { return s.ClosedErrors }),
			counter("resets_total", "Pipe resets",
				func(s ringpipe.Stats) uint64 { return s.Resets }),
			counter("closes_total", "Pipe closes",
				func(s ringpipe.Stats) uint64 { return s.Closes }),
		},
		buffered: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pipe", "buffered_bytes"),
			"Bytes currently buffered", labels, nil),
		capacity: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pipe", "capacity_bytes"),
			"Pipe capacity", labels, nil),
		sources: make(map[string]Source),
	}
}

// Add starts exporting src under name, replacing any pipe already using it.
func (c *Collector) Add(name string, src Source) {
	c.mu.Lock()
	c.sources[name] = src
	c.mu.Unlock()
}

// Remove stops exporting the pipe registered under name.
func (c *Collector) Remove(name string) {
	c.mu.Lock()
	delete(c.sources, name)
	c.mu.Unlock()
}

// Names returns the registered pipe names in sorted order.
func (c *Collector) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.buffered
	ch <- c.capacity
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, src := range c.sources {
		stats := src.Stats()
		for _, cd := range c.counters {
			ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(stats)), name)
		}
		ch <- prometheus.MustNewConstMetric(c.buffered, prometheus.GaugeValue, float64(src.ReadAvail()), name)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(src.Cap()), name)
	}
}

var _ prometheus.Collector = (*Collector)(nil)
