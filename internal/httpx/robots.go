package httpx

import (
	"context"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const robotsTTL = 24 * time.Hour

// maxRobotsBody caps how much of a robots.txt response is parsed.
const maxRobotsBody = 512 * 1024

type robotsEntry struct {
	group   *robotstxt.Group
	expires time.Time
}

// RobotsGate answers whether a path on a shop may be fetched, caching one
// parsed robots.txt per host. Fetch failures degrade to allow-all: the gate
// is a politeness signal, not a correctness gate.
type RobotsGate struct {
	mu      sync.Mutex
	entries map[string]robotsEntry
	pool    *Pool
	agent   string
	clock   func() time.Time
}

// NewRobotsGate builds a gate that probes robots.txt through the pool.
func NewRobotsGate(pool *Pool, userAgent string) *RobotsGate {
	return &RobotsGate{
		entries: make(map[string]robotsEntry),
		pool:    pool,
		agent:   userAgent,
		clock:   time.Now,
	}
}

// Allowed reports whether rawURL may be fetched on behalf of the shop.
func (g *RobotsGate) Allowed(ctx context.Context, shopID int64, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	group := g.group(ctx, shopID, u)
	if group == nil {
		return true
	}
	return group.Test(u.Path)
}

func (g *RobotsGate) group(ctx context.Context, shopID int64, u *url.URL) *robotstxt.Group {
	host := u.Scheme + "://" + u.Host

	g.mu.Lock()
	entry, ok := g.entries[host]
	g.mu.Unlock()
	if ok && g.clock().Before(entry.expires) {
		return entry.group
	}

	group := g.fetchGroup(ctx, shopID, host)
	g.mu.Lock()
	g.entries[host] = robotsEntry{group: group, expires: g.clock().Add(robotsTTL)}
	g.mu.Unlock()
	return group
}

func (g *RobotsGate) fetchGroup(ctx context.Context, shopID int64, host string) *robotstxt.Group {
	resp, err := g.pool.Get(ctx, shopID, host+"/robots.txt")
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil
	}
	return data.FindGroup(g.agent)
}
