package proxy

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"resty.dev/v3"
)

const maxParallelChecks = 20

// Pool hands out scraper proxies in round-robin order.
type Pool interface {
	Next() string
	Size() int
}

// Checker reports whether a proxy can reach the test URL.
type Checker func(ctx context.Context, proxyURL, testURL string) bool

type pool struct {
	proxies []string
	current int
	mutex   sync.Mutex
}

// NewPool checks every configured proxy against testURL and keeps the ones
// that answered. An empty list yields a pool that always returns "".
func NewPool(ctx context.Context, proxies []string, testURL string, check Checker) (Pool, error) {
	if len(proxies) == 0 {
		return &pool{}, nil
	}
	if check == nil {
		check = checkProxy
	}

	log.Infof("🔄 Checking %d scraper proxies...", len(proxies))

	alive := make([]bool, len(proxies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelChecks)

	for i, proxyURL := range proxies {
		g.Go(func() error {
			if check(gctx, proxyURL, testURL) {
				alive[i] = true
				log.Debugf("✅ Proxy %s is reachable", proxyURL)
			} else {
				log.Infof("❌ Proxy %s failed the check, skipping", proxyURL)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	working := make([]string, 0, len(proxies))
	for i, ok := range alive {
		if ok {
			working = append(working, proxies[i])
		}
	}

	log.Infof("✅ Scraper proxy pool ready with %d of %d proxies", len(working), len(proxies))
	return &pool{proxies: working}, nil
}

func (p *pool) Next() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.proxies) == 0 {
		return ""
	}

	proxy := p.proxies[p.current]
	p.current = (p.current + 1) % len(p.proxies)
	return proxy
}

func (p *pool) Size() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.proxies)
}

func checkProxy(ctx context.Context, proxyURL, testURL string) bool {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(0).
		SetProxy(proxyURL).
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
		})

	resp, err := client.R().
		SetContext(ctx).
		Get(testURL)
	if err != nil {
		log.Debugf("Proxy check failed for %s: %v", proxyURL, err)
		return false
	}

	return !resp.IsError()
}
