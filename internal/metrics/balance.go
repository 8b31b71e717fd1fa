package metrics

import "fmt"

// Balance describes how evenly calls were spread over the pool.
type Balance struct {
	MinCalls int
	MaxCalls int
	Spread   int  // MaxCalls - MinCalls
	Even     bool // Spread within the allowed drift
	Issues   []string
}

// AllowedDrift is the largest per-handle call spread reported as even.
// Rotation keeps every handle within one call of the others. Checkout mode
// makes no such promise.
const AllowedDrift = 1

// CheckBalance compares call counts across handles.
func CheckBalance(handles []HandleMetrics) Balance {
	if len(handles) == 0 {
		return Balance{Even: true}
	}

	b := Balance{MinCalls: handles[0].Calls(), MaxCalls: handles[0].Calls()}
	busiest, idlest := handles[0].Handle, handles[0].Handle
	for _, h := range handles[1:] {
		n := h.Calls()
		if n < b.MinCalls {
			b.MinCalls, idlest = n, h.Handle
		}
		if n > b.MaxCalls {
			b.MaxCalls, busiest = n, h.Handle
		}
	}
	b.Spread = b.MaxCalls - b.MinCalls
	b.Even = b.Spread <= AllowedDrift
	if !b.Even {
		b.Issues = append(b.Issues, fmt.Sprintf(
			"handle %d dispatched %d calls, handle %d dispatched %d", busiest, b.MaxCalls, idlest, b.MinCalls))
	}
	for _, h := range handles {
		if h.Calls() > 0 && h.Delivered == 0 {
			b.Issues = append(b.Issues, fmt.Sprintf("handle %d delivered nothing (%d failures)", h.Handle, h.Failed))
		}
	}
	return b
}
