// Package keepalive pings an external health-check URL on a fixed interval.
package keepalive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pinger issues a GET to a URL every interval. Failures are logged only.
type Pinger struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *zap.Logger

	cancel context.CancelFunc
	done   sync.WaitGroup
}

// NewPinger creates a pinger. A nil client uses a client with a timeout of one interval.
func NewPinger(url string, interval time.Duration, client *http.Client, logger *zap.Logger) *Pinger {
	if client == nil {
		client = &http.Client{Timeout: interval}
	}
	return &Pinger{url: url, interval: interval, client: client, logger: logger}
}

// Start begins pinging until ctx ends or Stop is called.
func (p *Pinger) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done.Go(func() { p.loop(ctx) })
}

// Stop ends the loop and waits for an in-flight ping.
func (p *Pinger) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.done.Wait()
}

func (p *Pinger) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// A started ping runs to completion, bounded by the client timeout.
			if err := p.Ping(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("keep-alive ping failed", zap.Error(err), zap.String("url", p.url))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Ping performs a single request.
func (p *Pinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	p.logger.Info("keep-alive ping",
		zap.String("url", p.url),
		zap.Int("status", resp.StatusCode),
		zap.Int64("bytes", n))
	return nil
}
