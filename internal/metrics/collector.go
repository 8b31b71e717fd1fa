// Package metrics aggregates forwarding results into per-handle and
// whole-run summaries.
package metrics

import (
	"slices"
	"sync"
	"time"

	"github.com/dmagro/acct-xmlrpc/internal/forwarder"
	"github.com/dmagro/acct-xmlrpc/internal/rpc"
	"github.com/dmagro/acct-xmlrpc/internal/stats"
)

// HandleMetrics holds the counters for one pool handle.
type HandleMetrics struct {
	Handle    int
	Delivered int
	Failed    int
	Latency   stats.Latency
}

// Calls is the number of calls dispatched on the handle.
func (m HandleMetrics) Calls() int { return m.Delivered + m.Failed }

// Summary is the aggregate of a run.
type Summary struct {
	Events    int
	Delivered int
	Skipped   int
	Failed    int

	// ByStage and ByType break failures down.
	ByStage map[forwarder.Stage]int
	ByType  map[rpc.ErrorType]int

	Latency stats.Latency
	Handles []HandleMetrics // ascending by handle
	Balance Balance
	Elapsed time.Duration
}

// SuccessRate is the percentage of marked events that were delivered.
func (s Summary) SuccessRate() float64 {
	attempted := s.Delivered + s.Failed
	if attempted == 0 {
		return 0
	}
	return float64(s.Delivered) / float64(attempted) * 100
}

// Collector accumulates results. It is safe for concurrent use.
type Collector struct {
	size int

	mu      sync.Mutex
	start   time.Time
	results []forwarder.Result
}

// NewCollector returns an empty collector for a pool of size handles. Its
// elapsed clock starts now.
func NewCollector(size int) *Collector {
	return &Collector{size: size, start: time.Now()}
}

// Add records r.
func (c *Collector) Add(r *forwarder.Result) {
	if r == nil {
		return
	}
	c.mu.Lock()
	c.results = append(c.results, *r)
	c.mu.Unlock()
}

// Summarize computes the summary of everything added so far.
func (c *Collector) Summarize() Summary {
	c.mu.Lock()
	results := slices.Clone(c.results)
	elapsed := time.Since(c.start)
	c.mu.Unlock()

	s := Summary{
		Events:  len(results),
		ByStage: make(map[forwarder.Stage]int),
		ByType:  make(map[rpc.ErrorType]int),
		Elapsed: elapsed,
	}

	var all []time.Duration
	perHandle := make(map[int][]time.Duration)
	handles := make(map[int]*HandleMetrics)
	get := func(id int) *HandleMetrics {
		if m, ok := handles[id]; ok {
			return m
		}
		m := &HandleMetrics{Handle: id}
		handles[id] = m
		return m
	}
	// Idle handles are reported too.
	for id := 0; id < c.size; id++ {
		get(id)
	}

	for _, r := range results {
		switch r.Outcome {
		case forwarder.OutcomeNoOp:
			s.Skipped++
		case forwarder.OutcomeOK:
			s.Delivered++
			all = append(all, r.Latency)
			get(r.Handle).Delivered++
			perHandle[r.Handle] = append(perHandle[r.Handle], r.Latency)
		default:
			s.Failed++
			s.ByStage[r.Stage]++
			s.ByType[r.ErrorType]++
			if r.Handle >= 0 {
				get(r.Handle).Failed++
			}
		}
	}

	s.Latency = stats.Summarize(all)
	for id, m := range handles {
		m.Latency = stats.Summarize(perHandle[id])
		s.Handles = append(s.Handles, *m)
	}
	slices.SortFunc(s.Handles, func(a, b HandleMetrics) int { return a.Handle - b.Handle })
	s.Balance = CheckBalance(s.Handles)
	return s
}
