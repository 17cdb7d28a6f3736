package scrape

import (
	"math/rand"
	"sync"
)

const fallbackUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

// agentPool hands out a random client identity per fetch, with a fixed
// fallback when no pool is configured.
type agentPool struct {
	mu     sync.Mutex
	agents []string
	rng    *rand.Rand
}

func newAgentPool(agents []string, seed int64) *agentPool {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &agentPool{
		agents: agents,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (p *agentPool) pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.agents) == 0 {
		return fallbackUserAgent
	}
	return p.agents[p.rng.Intn(len(p.agents))]
}
