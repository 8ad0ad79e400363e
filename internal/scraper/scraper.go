package scraper

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"dropified/tracksync/internal/config"
	"dropified/tracksync/internal/domain"
	"dropified/tracksync/internal/proxy"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"resty.dev/v3"
)

var (
	ErrCircuitOpen = errors.New("supplier scraping paused")
	ErrBlocked     = errors.New("supplier refused automated requests")
)

// blockMarkers are phrases suppliers show instead of the order page when
// they start refusing automated requests.
var blockMarkers = []string{"Access Denied", "captcha", "Too Many Requests"}

// Scraper reads order status straight from a supplier's order page, for
// source types that have a scraping profile configured.
type Scraper interface {
	Supports(sourceType domain.SourceType) bool
	GetOrderStatus(ctx context.Context, task *domain.OrderTrackingTask) (*domain.SupplierStatus, error)
}

type scraper struct {
	rl            ratelimit.Limiter
	profiles      map[domain.SourceType]config.ScraperProfile
	httpClient    *resty.Client
	proxies       proxy.Pool
	clientMutex   sync.Mutex
	breakerMutex  sync.RWMutex
	blockedUntil  time.Time
	blocks        int
	breakerPeriod time.Duration
}

func NewScraper(cfg config.ScraperConfig, proxies proxy.Pool) Scraper {
	rps := cfg.MaxRequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36").
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.5").
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
		})

	if proxies != nil {
		if proxyURL := proxies.Next(); proxyURL != "" {
			client.SetProxy(proxyURL)
			log.Infof("🔗 Scraper using initial proxy: %s", proxyURL)
		}
	}

	profiles := make(map[domain.SourceType]config.ScraperProfile, len(cfg.Profiles))
	for name, p := range cfg.Profiles {
		if p.URLTemplate == "" || p.StatusSelector == "" {
			log.Warnf("⚠️ Scraper profile %s is missing url_template or status_selector, ignoring", name)
			continue
		}
		profiles[domain.ParseSourceType(name)] = p
	}

	return &scraper{
		rl:            ratelimit.New(rps),
		profiles:      profiles,
		httpClient:    client,
		proxies:       proxies,
		breakerPeriod: 10 * time.Minute,
	}
}

func (s *scraper) Supports(sourceType domain.SourceType) bool {
	_, ok := s.profiles[sourceType]
	return ok
}

func (s *scraper) GetOrderStatus(ctx context.Context, task *domain.OrderTrackingTask) (*domain.SupplierStatus, error) {
	profile, ok := s.profiles[task.SourceType]
	if !ok {
		return nil, fmt.Errorf("no scraper profile for source type %s", task.SourceType)
	}

	ids := task.SourceIDs()
	if len(ids) == 0 {
		return nil, fmt.Errorf("order %s has no supplier order id", task.ID)
	}

	// bundles share one shipment page; the first supplier order stands for all
	url := strings.ReplaceAll(profile.URLTemplate, "%s", ids[0])

	html, err := s.fetchHTML(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch supplier page for order %s: %w", task.ID, err)
	}

	status, err := parseOrderPage(html, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse supplier page for order %s: %w", task.ID, err)
	}
	status.SourceURL = url
	return status, nil
}

func (s *scraper) isCircuitOpen() (bool, time.Duration) {
	s.breakerMutex.RLock()
	defer s.breakerMutex.RUnlock()

	remaining := time.Until(s.blockedUntil)
	return remaining > 0, remaining
}

// recordBlock counts a refusal and reports whether the breaker tripped. Each
// proxy gets one chance before direct scrapes pause.
func (s *scraper) recordBlock(rotated bool) bool {
	s.breakerMutex.Lock()
	defer s.breakerMutex.Unlock()

	s.blocks++
	if rotated && s.blocks <= s.proxies.Size() {
		return false
	}

	s.blocks = 0
	s.blockedUntil = time.Now().Add(s.breakerPeriod)
	log.Warnf("🚫 Supplier blocked scraping, pausing direct scrapes until %v",
		s.blockedUntil.Format("15:04:05"))
	return true
}

func (s *scraper) resetBlocks() {
	s.breakerMutex.Lock()
	s.blocks = 0
	s.breakerMutex.Unlock()
}

func (s *scraper) get(ctx context.Context, url string) (*resty.Response, error) {
	s.clientMutex.Lock()
	client := s.httpClient
	s.clientMutex.Unlock()

	return client.R().
		SetContext(ctx).
		Get(url)
}

func (s *scraper) rotateProxy() bool {
	if s.proxies == nil {
		return false
	}
	next := s.proxies.Next()
	if next == "" {
		return false
	}

	s.clientMutex.Lock()
	s.httpClient.SetProxy(next)
	s.clientMutex.Unlock()

	log.Infof("🔄 Switched scraper proxy to %s", next)
	return true
}

func (s *scraper) fetchHTML(ctx context.Context, url string) (string, error) {
	if open, remaining := s.isCircuitOpen(); open {
		return "", fmt.Errorf("%w for %v more", ErrCircuitOpen, remaining.Round(time.Second))
	}

	s.rl.Take()

	resp, err := s.get(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}

	if !isBlocked(resp) {
		s.resetBlocks()
		if resp.IsError() {
			return "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode(), resp.Status())
		}
		return resp.String(), nil
	}

	log.Warnf("🚫 Supplier refused scrape of %s", url)

	// the order fails either way; a fresh proxy only helps the next one
	if s.recordBlock(s.rotateProxy()) {
		return "", fmt.Errorf("%w: %w", ErrCircuitOpen, ErrBlocked)
	}
	return "", ErrBlocked
}

func isBlocked(resp *resty.Response) bool {
	if resp.StatusCode() == http.StatusTooManyRequests {
		return true
	}
	body := resp.String()
	for _, marker := range blockMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}
