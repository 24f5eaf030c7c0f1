// Package heartbeat keeps a hosted instance awake by calling its own
// liveness endpoint on a schedule.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"depenses/internal/log"
)

// Path is the liveness endpoint served by the API and pinged by Pinger.
const Path = "/api/heartbeat"

// Status is the liveness response body.
type Status struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload returns the body served at Path.
func Payload(now time.Time) Status {
	return Status{Status: "ok", Timestamp: now.UTC()}
}

// Pinger calls appURL+Path every interval.
type Pinger struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *log.Logger
}

// NewPinger builds a pinger. A nil logger uses the default one.
func NewPinger(appURL string, interval time.Duration, logger *log.Logger) (*Pinger, error) {
	if interval <= 0 {
		return nil, errors.New("heartbeat interval must be positive")
	}
	if !strings.HasPrefix(appURL, "http://") && !strings.HasPrefix(appURL, "https://") {
		return nil, fmt.Errorf("heartbeat url %q must be http or https", appURL)
	}
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &Pinger{
		url:      strings.TrimRight(appURL, "/") + Path,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger.WithComponent(log.ComponentHeartbeat),
	}, nil
}

// URL is the endpoint being pinged.
func (p *Pinger) URL() string { return p.url }

// Ping performs one request and decodes the reply.
func (p *Pinger) Ping(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Status{}, fmt.Errorf("build heartbeat request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("heartbeat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Status{}, fmt.Errorf("heartbeat ping failed with status %d", resp.StatusCode)
	}
	var st Status
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&st); err != nil {
		return Status{}, fmt.Errorf("decode heartbeat: %w", err)
	}
	return st, nil
}

// Run pings until ctx is done. Failures are logged and never stop the loop.
func (p *Pinger) Run(ctx context.Context) error {
	p.logger.Info("Heartbeat started", "url", p.url, "interval", p.interval.String())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Heartbeat stopped")
			return nil
		case <-ticker.C:
			st, err := p.Ping(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				p.logger.Error("Heartbeat ping failed", log.FieldError, err)
				continue
			}
			p.logger.Info("Heartbeat ping successful", "status", st.Status, "server_time", st.Timestamp)
		}
	}
}
