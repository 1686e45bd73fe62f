package store

import (
	"sync"

	"github.com/ayurmart/storefront/internal/models"
)

// Wishlist is a deduplicated set of saved product snapshots. Snapshots are not
// refreshed from the catalog, so prices and stock may drift.
type Wishlist struct {
	mu        sync.Mutex
	items     []models.Product
	persister *Persister
	listeners listeners[[]models.Product]

	saveMu    sync.Mutex
	successor func() *Wishlist
}

// NewWishlist creates a wishlist and loads its persisted items. Duplicate ids
// in the stored record are collapsed to their first occurrence.
func NewWishlist(p *Persister) *Wishlist {
	loaded := loadItems[models.Product](p)
	seen := make(map[int64]bool, len(loaded))
	items := make([]models.Product, 0, len(loaded))
	for _, it := range loaded {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		items = append(items, it)
	}
	return &Wishlist{items: items, persister: p}
}

// Add saves product unless a product with the same id is present. It reports
// whether the product was added.
func (w *Wishlist) Add(product models.Product) bool {
	return w.mutate(func(t *Wishlist) bool {
		if t.indexLocked(product.ID) >= 0 {
			return false
		}
		t.items = append(t.items, product)
		return true
	})
}

// Remove drops the product with productID. Unknown ids are ignored.
func (w *Wishlist) Remove(productID int64) {
	w.mutate(func(t *Wishlist) bool {
		i := t.indexLocked(productID)
		if i < 0 {
			return false
		}
		t.items = append(t.items[:i:i], t.items[i+1:]...)
		return true
	})
}

func (w *Wishlist) Contains(productID int64) bool {
	t := w.acquire()
	defer t.mu.Unlock()
	return t.indexLocked(productID) >= 0
}

func (w *Wishlist) Clear() {
	w.mutate(func(t *Wishlist) bool {
		if len(t.items) == 0 {
			return false
		}
		t.items = nil
		return true
	})
}

// TotalItems is the number of saved products.
func (w *Wishlist) TotalItems() int {
	t := w.acquire()
	defer t.mu.Unlock()
	return len(t.items)
}

// Items returns a copy of the saved products.
func (w *Wishlist) Items() []models.Product {
	t := w.acquire()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Subscribe registers fn to run after every change; the result unsubscribes.
func (w *Wishlist) Subscribe(fn func([]models.Product)) func() {
	t := w.acquire()
	defer t.mu.Unlock()
	return t.listeners.add(fn)
}

// acquire locks and returns the live wishlist, following evictions.
func (w *Wishlist) acquire() *Wishlist {
	t := w
	for {
		t.mu.Lock()
		next := t.successor
		if next == nil {
			return t
		}
		t.mu.Unlock()
		t = next()
	}
}

func (w *Wishlist) retire(successor func() *Wishlist) {
	w.mu.Lock()
	w.saveMu.Lock()
	w.successor = successor
	w.saveMu.Unlock()
	w.mu.Unlock()
}

func (w *Wishlist) mutate(fn func(t *Wishlist) bool) bool {
	t := w.acquire()
	if !fn(t) {
		t.mu.Unlock()
		return false
	}
	items := t.snapshotLocked()

	t.saveMu.Lock()
	t.mu.Unlock()
	saveItems(t.persister, items)
	t.saveMu.Unlock()

	t.listeners.notify(items)
	return true
}

func (w *Wishlist) indexLocked(productID int64) int {
	for i := range w.items {
		if w.items[i].ID == productID {
			return i
		}
	}
	return -1
}

func (w *Wishlist) snapshotLocked() []models.Product {
	out := make([]models.Product, len(w.items))
	copy(out, w.items)
	return out
}
