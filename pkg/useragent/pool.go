package useragent

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync/atomic"
)

// Default is the bare User-Agent the search sites accept from scripted clients.
const Default = "Mozilla/5.0"

// Browsers is a set of desktop browser User-Agents used when rotation is enabled.
var Browsers = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
}

// Pool hands out User-Agent strings for outbound requests.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool builds a pool from the given User-Agents, skipping blank entries.
// An empty pool falls back to Default.
func NewPool(uas ...string) *Pool {
	cleaned := make([]string, 0, len(uas))
	for _, ua := range uas {
		if ua = strings.TrimSpace(ua); ua != "" {
			cleaned = append(cleaned, ua)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{Default}
	}
	return &Pool{uas: cleaned}
}

// Next returns User-Agents in round-robin order. It is safe for concurrent use.
func (p *Pool) Next() string {
	if p == nil || len(p.uas) == 0 {
		return Default
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// Random returns a uniformly chosen User-Agent using crypto/rand.
func (p *Pool) Random() string {
	if p == nil || len(p.uas) == 0 {
		return Default
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.uas))))
	if err != nil {
		return p.Next()
	}
	return p.uas[n.Int64()]
}

// Len reports how many User-Agents the pool rotates through.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.uas)
}
