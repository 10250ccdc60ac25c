package pager

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics counts record I/O of a pager. A nil *Metrics counts nothing.
type Metrics struct {
	Reads  prometheus.Counter
	Writes prometheus.Counter
	Allocs prometheus.Counter
	Frees  prometheus.Counter
}

// NewMetrics creates the counters and registers them on reg when it is not
// nil. The name label tells several pagers apart on one registry.
func NewMetrics(reg prometheus.Registerer, name string) *Metrics {
	labels := prometheus.Labels{"index": name}
	newCounter := func(metric, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "slotindex",
			Subsystem:   "pager",
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		})
	}
	m := &Metrics{
		Reads:  newCounter("reads_total", "Record or slot reads issued against the index file."),
		Writes: newCounter("writes_total", "Record or slot writes issued against the index file."),
		Allocs: newCounter("allocations_total", "Records popped from the free list."),
		Frees:  newCounter("frees_total", "Records pushed back onto the free list."),
	}
	if reg != nil {
		reg.MustRegister(m.Reads, m.Writes, m.Allocs, m.Frees)
	}
	return m
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Reads, Writes, Allocs, Frees float64
}

func (s Snapshot) Sub(o Snapshot) Snapshot {
	return Snapshot{
		Reads:  s.Reads - o.Reads,
		Writes: s.Writes - o.Writes,
		Allocs: s.Allocs - o.Allocs,
		Frees:  s.Frees - o.Frees,
	}
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Reads:  counterValue(m.Reads),
		Writes: counterValue(m.Writes),
		Allocs: counterValue(m.Allocs),
		Frees:  counterValue(m.Frees),
	}
}

func counterValue(c prometheus.Counter) float64 {
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		return 0
	}
	return out.GetCounter().GetValue()
}

func (m *Metrics) read() {
	if m != nil {
		m.Reads.Inc()
	}
}

func (m *Metrics) write() {
	if m != nil {
		m.Writes.Inc()
	}
}

func (m *Metrics) alloc() {
	if m != nil {
		m.Allocs.Inc()
	}
}

func (m *Metrics) free() {
	if m != nil {
		m.Frees.Inc()
	}
}
