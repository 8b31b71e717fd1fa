package output

import (
	"fmt"
	"io"

	"github.com/rodaine/table"

	"github.com/dmagro/acct-xmlrpc/internal/pool"
)

// HandleInfo describes one pool handle.
type HandleInfo struct {
	ID   int    `json:"id"`
	Next int    `json:"next"`
	URL  string `json:"url"`
	Auth string `json:"auth"`
	User string `json:"user,omitempty"`
}

// CheckReport is the result of building and tearing down a pool.
type CheckReport struct {
	URL      string       `json:"url"`
	Method   string       `json:"method"`
	Mode     string       `json:"mode"`
	Size     int          `json:"pool_size"`
	Handles  []HandleInfo `json:"handles"`
	Teardown string       `json:"teardown"`
}

// NewCheckReport describes p. It must be called before p is torn down.
func NewCheckReport(p *pool.Pool, method string) *CheckReport {
	r := &CheckReport{Method: method, Mode: string(p.Mode()), Size: p.Size()}
	for _, h := range p.Handles() {
		info := HandleInfo{ID: h.ID, Next: p.Next(h).ID}
		if h.Server != nil {
			info.URL = h.Server.URL()
			info.Auth = string(h.Server.Mode())
			info.User = h.Server.User()
		}
		if r.URL == "" {
			r.URL = info.URL
		}
		r.Handles = append(r.Handles, info)
	}
	return r
}

// RenderCheckTerminal writes the pool layout to w.
func RenderCheckTerminal(w io.Writer, r *CheckReport) {
	fmt.Fprintf(w, "%s %s\n", cyan("──"), bold("Pool check"))
	fmt.Fprintf(w, "  Endpoint: %s  method %s\n", r.URL, cyan(r.Method))
	fmt.Fprintf(w, "  Mode: %s  size %d\n\n", r.Mode, r.Size)

	tbl := table.New("Handle", "Next", "Auth", "User").WithWriter(w)
	tbl.WithHeaderFormatter(headerFmt)
	for _, h := range r.Handles {
		user := h.User
		if user == "" {
			user = "—"
		}
		tbl.AddRow(h.ID, h.Next, h.Auth, user)
	}
	tbl.Print()
	fmt.Fprintln(w)

	if r.Teardown == "ok" {
		fmt.Fprintf(w, "%s %d handles created and released\n", green("✓"), r.Size)
	} else {
		fmt.Fprintf(w, "%s teardown: %s\n", red("✗"), r.Teardown)
	}
}
