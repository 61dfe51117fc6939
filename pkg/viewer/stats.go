package viewer

import (
	"fmt"
	"time"
)

type Stats struct {
	Issued, Applied, Discarded int64
	P50, P90, Max              time.Duration // issue to commit, applied renders only
}

func (s Stats) String() string {
	return fmt.Sprintf("renders issued=%d applied=%d discarded=%d, latency p50=%s p90=%s max=%s",
		s.Issued, s.Applied, s.Discarded, s.P50, s.P90, s.Max)
}

func (p *Presenter) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	s := Stats{Issued: p.issued, Applied: p.applied, Discarded: p.discarded}
	if p.latency.TotalCount() > 0 {
		s.P50 = time.Duration(p.latency.ValueAtQuantile(50)) * time.Microsecond
		s.P90 = time.Duration(p.latency.ValueAtQuantile(90)) * time.Microsecond
		s.Max = time.Duration(p.latency.Max()) * time.Microsecond
	}
	return s
}
