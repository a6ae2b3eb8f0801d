package application

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/market-console/finance-portal/pkg/logging"
)

// PageFactory builds the page for a new session
type PageFactory func(sessionID string) *FinancePage

// StoreMetrics records session store activity
type StoreMetrics interface {
	SetActiveSessions(n int)
	RecordSessionEvicted()
}

// SessionStore keeps one FinancePage per console session. Entries expire
// after ttl without access; every eviction closes the page.
type SessionStore struct {
	cache   *cache.Cache
	factory PageFactory
	metrics StoreMetrics
	logger  *logging.Logger

	// serializes create-or-get so one session never gets two pages
	mu sync.Mutex
}

// NewSessionStore creates a store. metrics and logger may be nil.
func NewSessionStore(ttl time.Duration, factory PageFactory, metrics StoreMetrics, logger *logging.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = logging.Discard()
	}
	s := &SessionStore{
		cache:   cache.New(ttl, cleanupInterval(ttl)),
		factory: factory,
		metrics: metrics,
		logger:  logger.WithComponent("session-store"),
	}
	s.cache.OnEvicted(s.onEvicted)
	return s
}

func cleanupInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	return interval
}

func (s *SessionStore) onEvicted(id string, v interface{}) {
	if page, ok := v.(*FinancePage); ok {
		page.Close()
	}
	s.logger.Debug("Finance session evicted", "sessionId", id)
	if s.metrics != nil {
		s.metrics.RecordSessionEvicted()
		s.metrics.SetActiveSessions(s.cache.ItemCount())
	}
}

// GetOrCreate returns the session's page, creating it on first use, and
// slides its expiry.
func (s *SessionStore) GetOrCreate(id string) *FinancePage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache.Get(id); ok {
		page := v.(*FinancePage)
		if !page.Closed() {
			s.cache.SetDefault(id, page)
			return page
		}
	}

	// an expired entry may linger until the janitor runs; evict it so its
	// page is closed before the replacement goes in
	s.cache.Delete(id)

	page := s.factory(id)
	s.cache.SetDefault(id, page)
	if s.metrics != nil {
		s.metrics.SetActiveSessions(s.cache.ItemCount())
	}
	return page
}

// Get returns the session's page without creating one
func (s *SessionStore) Get(id string) (*FinancePage, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*FinancePage), true
}

// Delete evicts the session, closing its page
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cache.Get(id)
	s.cache.Delete(id)
	return ok
}

// Count returns the number of cached sessions
func (s *SessionStore) Count() int {
	return s.cache.ItemCount()
}

// Close evicts every session
func (s *SessionStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.DeleteExpired()
	for id := range s.cache.Items() {
		s.cache.Delete(id)
	}
}
