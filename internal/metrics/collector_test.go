package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmagro/acct-xmlrpc/internal/forwarder"
	"github.com/dmagro/acct-xmlrpc/internal/rpc"
)

func ok(handle int, latency time.Duration) *forwarder.Result {
	return &forwarder.Result{Outcome: forwarder.OutcomeOK, Handle: handle, Latency: latency}
}

func failed(handle int, stage forwarder.Stage, typ rpc.ErrorType) *forwarder.Result {
	return &forwarder.Result{
		Outcome:   forwarder.OutcomeFailed,
		Handle:    handle,
		Stage:     stage,
		ErrorType: typ,
		Err:       errors.New("boom"),
	}
}

func TestCollectorSummarize(t *testing.T) {
	c := NewCollector(3)
	c.Add(ok(0, 10*time.Millisecond))
	c.Add(ok(1, 30*time.Millisecond))
	c.Add(failed(2, forwarder.StageCallDispatch, rpc.ErrorTypeFault))
	c.Add(ok(0, 20*time.Millisecond))
	c.Add(&forwarder.Result{Outcome: forwarder.OutcomeNoOp, Handle: -1})
	c.Add(failed(-1, forwarder.StageAcquire, rpc.ErrorTypeOther))
	c.Add(nil)

	s := c.Summarize()
	if s.Events != 6 || s.Delivered != 3 || s.Skipped != 1 || s.Failed != 2 {
		t.Fatalf("counts = %+v", s)
	}
	if s.ByStage[forwarder.StageCallDispatch] != 1 || s.ByStage[forwarder.StageAcquire] != 1 {
		t.Errorf("ByStage = %v", s.ByStage)
	}
	if s.ByType[rpc.ErrorTypeFault] != 1 {
		t.Errorf("ByType = %v", s.ByType)
	}
	if s.Latency.Count != 3 || s.Latency.Max != 30*time.Millisecond || s.Latency.Avg != 20*time.Millisecond {
		t.Errorf("Latency = %+v", s.Latency)
	}
	if got := s.SuccessRate(); got != 60 {
		t.Errorf("SuccessRate = %v, want 60", got)
	}

	if len(s.Handles) != 3 {
		t.Fatalf("Handles = %+v", s.Handles)
	}
	want := []struct{ delivered, failed int }{{2, 0}, {1, 0}, {0, 1}}
	for i, w := range want {
		h := s.Handles[i]
		if h.Handle != i || h.Delivered != w.delivered || h.Failed != w.failed {
			t.Errorf("Handles[%d] = %+v, want %+v", i, h, w)
		}
	}
}

func TestCollectorReportsIdleHandles(t *testing.T) {
	c := NewCollector(4)
	c.Add(ok(1, time.Millisecond))
	s := c.Summarize()
	if len(s.Handles) != 4 {
		t.Fatalf("Handles = %d, want 4", len(s.Handles))
	}
	if s.Balance.Spread != 1 || !s.Balance.Even {
		t.Errorf("Balance = %+v", s.Balance)
	}
}

func TestCollectorConcurrentAdd(t *testing.T) {
	c := NewCollector(2)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add(ok(i%2, time.Millisecond))
		}()
	}
	wg.Wait()
	if s := c.Summarize(); s.Delivered != 50 || s.Handles[0].Calls() != 25 {
		t.Errorf("Summary = %+v", s)
	}
}

func TestCheckBalance(t *testing.T) {
	tests := []struct {
		name       string
		handles    []HandleMetrics
		wantEven   bool
		wantIssues int
	}{
		{"empty", nil, true, 0},
		{"within one", []HandleMetrics{{Handle: 0, Delivered: 3}, {Handle: 1, Delivered: 2}}, true, 0},
		{"skewed", []HandleMetrics{{Handle: 0, Delivered: 1}, {Handle: 1, Delivered: 5}}, false, 1},
		{"dead handle", []HandleMetrics{{Handle: 0, Delivered: 2}, {Handle: 1, Failed: 2}}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := CheckBalance(tt.handles)
			if b.Even != tt.wantEven || len(b.Issues) != tt.wantIssues {
				t.Errorf("CheckBalance = %+v, want even=%v issues=%d", b, tt.wantEven, tt.wantIssues)
			}
		})
	}
}
