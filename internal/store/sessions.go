package store

import (
	"context"
	"sync"
	"time"

	"github.com/ayurmart/storefront/internal/metrics"
	"github.com/ayurmart/storefront/internal/storage"
	"go.uber.org/zap"
)

type sessionEntry struct {
	cart     *Cart
	wishlist *Wishlist
	lastSeen time.Time
}

// SweepResult reports one eviction pass.
type SweepResult struct {
	Evicted     int
	ActiveCarts int // carts still in memory that hold items
	CartItems   int // total quantity across those carts
}

// Sessions hands out one cart and one wishlist per session id, loading them
// from storage on first use. Idle sessions are dropped from memory by Run;
// their records stay in storage. A store still referenced after eviction
// forwards to the instance that replaces it.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry

	storage storage.Storage
	metrics *metrics.AppMetrics
	logger  *zap.Logger
	idleTTL time.Duration
	now     func() time.Time
}

func NewSessions(st storage.Storage, m *metrics.AppMetrics, logger *zap.Logger, idleTTL time.Duration) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Sessions{
		entries: make(map[string]*sessionEntry),
		storage: st,
		metrics: m,
		logger:  logger,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Cart returns the live cart of sessionID.
func (s *Sessions) Cart(sessionID string) *Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(sessionID)
	if e.cart == nil {
		e.cart = NewCart(NewPersister(s.storage, CartKeyPrefix+":"+sessionID, s.logger))
	}
	return e.cart
}

// Wishlist returns the live guest wishlist of sessionID.
func (s *Sessions) Wishlist(sessionID string) *Wishlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(sessionID)
	if e.wishlist == nil {
		e.wishlist = NewWishlist(NewPersister(s.storage, WishlistKeyPrefix+":"+sessionID, s.logger))
	}
	return e.wishlist
}

// Len is the number of sessions held in memory.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run evicts idle sessions and reports the cart gauges until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := s.Sweep()
			s.metrics.ActiveCartsCount.Record(ctx, int64(res.ActiveCarts), s.metrics.Attrs())
			s.metrics.CartItemsCount.Record(ctx, int64(res.CartItems), s.metrics.Attrs())
			if res.Evicted > 0 {
				s.logger.Debug("Evicted idle sessions",
					zap.Int("evicted", res.Evicted),
					zap.Int("active_carts", res.ActiveCarts),
				)
			}
		}
	}
}

// Sweep drops sessions idle for longer than the idle TTL and tallies the
// carts that remain.
func (s *Sessions) Sweep() SweepResult {
	cutoff := s.now().Add(-s.idleTTL)
	var res SweepResult

	s.mu.Lock()
	var live []*Cart
	for id, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			// Retired under s.mu so no replacement loads before the final save.
			if e.cart != nil {
				e.cart.retire(func() *Cart { return s.Cart(id) })
			}
			if e.wishlist != nil {
				e.wishlist.retire(func() *Wishlist { return s.Wishlist(id) })
			}
			delete(s.entries, id)
			res.Evicted++
			continue
		}
		if e.cart != nil {
			live = append(live, e.cart)
		}
	}
	s.mu.Unlock()

	for _, c := range live {
		if n := c.TotalItems(); n > 0 {
			res.ActiveCarts++
			res.CartItems += n
		}
	}
	return res
}

func (s *Sessions) entryLocked(sessionID string) *sessionEntry {
	e, ok := s.entries[sessionID]
	if !ok {
		e = &sessionEntry{}
		s.entries[sessionID] = e
	}
	e.lastSeen = s.now()
	return e
}
