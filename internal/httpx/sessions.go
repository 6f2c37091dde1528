// Package httpx owns the outbound HTTP machinery shared by the scrapers:
// per-shop sessions over one pooled transport, a robots.txt gate, and the
// retry-with-backoff utility used by both the scraping and storage paths.
package httpx

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// PoolConfig controls the session pool.
type PoolConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// Pool hands out one *http.Client per shop id. All clients share a single
// keep-alive transport; the transport's connection pool is the concurrency-
// safe shared resource.
type Pool struct {
	mu        sync.Mutex
	clients   map[int64]*http.Client
	transport *http.Transport
	cfg       PoolConfig
}

// NewPool builds a Pool with a pooled transport.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Pool{
		clients:   make(map[int64]*http.Client),
		transport: newTransport(),
		cfg:       cfg,
	}
}

// Client returns the session for the shop, creating it on first use.
func (p *Pool) Client(shopID int64) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients[shopID]
	if !ok {
		c = &http.Client{
			Transport: p.transport,
			Timeout:   p.cfg.Timeout,
		}
		p.clients[shopID] = c
	}
	return c
}

// Get issues a GET through the shop's session with the pool's user agent.
// The caller owns the response body.
func (p *Pool) Get(ctx context.Context, shopID int64, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.5")
	resp, err := p.Client(shopID).Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

// CloseIdleConnections drops the transport's idle keep-alive connections.
func (p *Pool) CloseIdleConnections() {
	p.transport.CloseIdleConnections()
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   6,
		IdleConnTimeout:       90 * time.Second,
	}
}
