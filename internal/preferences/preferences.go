package preferences

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"dropified/tracksync/internal/domain"

	log "github.com/sirupsen/logrus"
)

// Keys under which run preferences live in the account's user config.
const (
	KeyDelay           = "track_update_delay"
	KeyConcurrency     = "track_update_concurrency"
	KeyUnfulfilledOnly = "track_update_unfulfilled_only"
)

var keys = []string{KeyDelay, KeyConcurrency, KeyUnfulfilledOnly}

// UserConfig is the key/value settings endpoint of the backend.
type UserConfig interface {
	GetUserConfig(ctx context.Context, names []string) (map[string]string, error)
	SetUserConfig(ctx context.Context, name, value string) error
}

// Update carries the preferences a caller wants to change; nil fields are
// left alone.
type Update struct {
	DelaySeconds    *float64 `json:"delay_seconds,omitempty"`
	Concurrency     *int     `json:"concurrency,omitempty"`
	UnfulfilledOnly *bool    `json:"unfulfilled_only,omitempty"`
}

type Store struct {
	backend UserConfig

	mu      sync.Mutex
	current domain.RunConfiguration
	loading bool
	loaded  bool
	// keys applied by a caller while a load was in flight; the load keeps them
	touched map[string]bool
}

func NewStore(backend UserConfig, defaults domain.RunConfiguration) *Store {
	return &Store{backend: backend, current: defaults.Normalized()}
}

// Load replaces the defaults with the saved preferences. Failures are logged
// and leave the current values in place. Loaded values are not written back,
// and a key changed through Apply while the load runs keeps the new value.
func (s *Store) Load(ctx context.Context) domain.RunConfiguration {
	s.mu.Lock()
	s.loading = true
	s.touched = make(map[string]bool)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.touched = nil
		s.mu.Unlock()
	}()

	values, err := s.backend.GetUserConfig(ctx, keys)
	if err != nil {
		log.Warnf("⚠️ Failed to load run preferences, using defaults: %v", err)
		return s.Get()
	}

	defer func() {
		s.mu.Lock()
		s.loaded = true
		s.mu.Unlock()
	}()

	for _, key := range keys {
		raw, ok := values[key]
		if !ok || raw == "" {
			continue
		}
		if err := s.apply(ctx, key, raw, true); err != nil {
			log.Warnf("⚠️ Ignoring saved preference %s=%q: %v", key, raw, err)
		}
	}

	cfg := s.Get()
	log.Infof("⚙️ Run preferences loaded: delay %.1fs, concurrency %d, unfulfilled only %t",
		cfg.DelaySeconds, cfg.Concurrency, cfg.UnfulfilledOnly)
	return cfg
}

func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *Store) Get() domain.RunConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Apply changes the given preferences and saves each changed key.
func (s *Store) Apply(ctx context.Context, u Update) (domain.RunConfiguration, error) {
	if u.DelaySeconds != nil {
		if err := s.apply(ctx, KeyDelay, strconv.FormatFloat(*u.DelaySeconds, 'f', -1, 64), false); err != nil {
			return s.Get(), err
		}
	}
	if u.Concurrency != nil {
		if err := s.apply(ctx, KeyConcurrency, strconv.Itoa(*u.Concurrency), false); err != nil {
			return s.Get(), err
		}
	}
	if u.UnfulfilledOnly != nil {
		if err := s.apply(ctx, KeyUnfulfilledOnly, strconv.FormatBool(*u.UnfulfilledOnly), false); err != nil {
			return s.Get(), err
		}
	}
	return s.Get(), nil
}

func (s *Store) apply(ctx context.Context, key, raw string, fromLoad bool) error {
	s.mu.Lock()
	if fromLoad && s.touched[key] {
		s.mu.Unlock()
		return nil
	}
	next := s.current
	var stored string

	switch key {
	case KeyDelay:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("invalid delay: %w", err)
		}
		next.DelaySeconds = domain.ClampDelay(v)
		stored = strconv.FormatFloat(next.DelaySeconds, 'f', -1, 64)
	case KeyConcurrency:
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("invalid concurrency: %w", err)
		}
		next.Concurrency = domain.ClampConcurrency(v)
		stored = strconv.Itoa(next.Concurrency)
	case KeyUnfulfilledOnly:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("invalid unfulfilled only flag: %w", err)
		}
		next.UnfulfilledOnly = v
		stored = strconv.FormatBool(v)
	default:
		s.mu.Unlock()
		return fmt.Errorf("unknown preference %s", key)
	}

	changed := next != s.current
	s.current = next
	if !fromLoad && s.loading {
		s.touched[key] = true
	}
	save := changed && !fromLoad
	s.mu.Unlock()

	if !save {
		return nil
	}
	if err := s.backend.SetUserConfig(ctx, key, stored); err != nil {
		return fmt.Errorf("failed to save preference %s: %w", key, err)
	}
	log.Debugf("Saved preference %s=%s", key, stored)
	return nil
}
