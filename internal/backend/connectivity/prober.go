package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Prober periodically checks a URL and feeds the result into a Monitor.
type Prober struct {
	url        string
	interval   time.Duration
	httpClient *http.Client
	monitor    *Monitor
}

func NewProber(url string, interval time.Duration, monitor *Monitor) *Prober {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Prober{
		url:      url,
		interval: interval,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		monitor: monitor,
	}
}

// Check performs one probe. Any response below 500 counts as reachable.
func (p *Prober) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		slog.Warn("Connectivity: invalid probe request", "url", p.url, "error", err)
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Debug("Connectivity: probe failed", "url", p.url, "error", err)
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Run probes immediately and then every interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.monitor.SetOnline(p.Check(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
