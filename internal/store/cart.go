// Package store holds the per-session state layer of the storefront: the cart,
// the guest wishlist and the auth session. Cart and wishlist operations are
// total; they never fail and persist their item list after every change.
package store

import (
	"sync"
	"time"

	"github.com/ayurmart/storefront/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is one line of the cart. Lines are merged on (product id, variant id).
type CartItem struct {
	ID       string                 `json:"id"`
	Product  models.Product         `json:"product"`
	Variant  *models.ProductVariant `json:"variant,omitempty"`
	Quantity int                    `json:"quantity"`
	AddedAt  time.Time              `json:"added_at"`
}

// VariantID returns the variant id, or 0 for the base product.
func (i CartItem) VariantID() int64 {
	if i.Variant == nil {
		return 0
	}
	return i.Variant.ID
}

// UnitPrice is the variant price when overridden, else the product selling price.
func (i CartItem) UnitPrice() decimal.Decimal {
	return i.Product.PriceFor(i.Variant)
}

// LineTotal is UnitPrice × Quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i CartItem) matches(productID, variantID int64) bool {
	return i.Product.ID == productID && i.VariantID() == variantID
}

// CartState is what subscribers receive after each change.
type CartState struct {
	Items  []CartItem
	IsOpen bool
}

// Cart is the authoritative list of items a session intends to purchase.
type Cart struct {
	mu        sync.Mutex
	items     []CartItem
	open      bool
	persister *Persister
	listeners listeners[CartState]

	// saveMu orders writes to storage. It is taken before mu is released so
	// records land in mutation order.
	saveMu sync.Mutex
	// successor is set once the cart is evicted; calls are forwarded to the
	// cart it returns.
	successor func() *Cart

	now   func() time.Time
	newID func() string
}

// NewCart creates a cart and loads its persisted items.
func NewCart(p *Persister) *Cart {
	return &Cart{
		items:     loadItems[CartItem](p),
		persister: p,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// AddItem merges quantity into the line for (product, variant), or appends a new
// line. Quantities below 1 count as 1. Stock limits are the caller's concern.
func (c *Cart) AddItem(product models.Product, quantity int, variant *models.ProductVariant) CartItem {
	if quantity < 1 {
		quantity = 1
	}
	var variantID int64
	if variant != nil {
		variantID = variant.ID
	}

	var line CartItem
	c.mutate(true, func(t *Cart) bool {
		for i := range t.items {
			if t.items[i].matches(product.ID, variantID) {
				t.items[i].Quantity += quantity
				line = t.items[i]
				return true
			}
		}

		snapshot := product
		snapshot.Variants = nil
		line = CartItem{
			ID:       t.newID(),
			Product:  snapshot,
			Quantity: quantity,
			AddedAt:  t.now().UTC(),
		}
		if variant != nil {
			v := *variant
			line.Variant = &v
		}
		t.items = append(t.items, line)
		return true
	})
	return line
}

// RemoveItem drops the line with itemID. Unknown ids are ignored.
func (c *Cart) RemoveItem(itemID string) {
	c.mutate(true, func(t *Cart) bool {
		for i := range t.items {
			if t.items[i].ID == itemID {
				t.items = append(t.items[:i:i], t.items[i+1:]...)
				return true
			}
		}
		return false
	})
}

// UpdateQuantity overwrites a line's quantity; quantity <= 0 removes the line.
func (c *Cart) UpdateQuantity(itemID string, quantity int) {
	if quantity <= 0 {
		c.RemoveItem(itemID)
		return
	}
	c.mutate(true, func(t *Cart) bool {
		for i := range t.items {
			if t.items[i].ID == itemID {
				if t.items[i].Quantity == quantity {
					return false
				}
				t.items[i].Quantity = quantity
				return true
			}
		}
		return false
	})
}

// RemoveOrdered takes checked-out lines out of the cart. Each line loses the
// ordered quantity and is dropped when nothing is left, so lines added or
// topped up after the snapshot survive.
func (c *Cart) RemoveOrdered(ordered []CartItem) {
	if len(ordered) == 0 {
		return
	}
	c.mutate(true, func(t *Cart) bool {
		taken := make(map[string]int, len(ordered))
		for _, it := range ordered {
			taken[it.ID] += it.Quantity
		}
		changed := false
		kept := t.items[:0:0]
		for _, it := range t.items {
			q, ok := taken[it.ID]
			if !ok {
				kept = append(kept, it)
				continue
			}
			changed = true
			if it.Quantity > q {
				it.Quantity -= q
				kept = append(kept, it)
			}
		}
		if changed {
			t.items = kept
		}
		return changed
	})
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mutate(true, func(t *Cart) bool {
		if len(t.items) == 0 {
			return false
		}
		t.items = nil
		return true
	})
}

// Toggle flips the visibility flag. The flag is never persisted.
func (c *Cart) Toggle() {
	c.mutate(false, func(t *Cart) bool {
		t.open = !t.open
		return true
	})
}

// SetOpen sets the visibility flag.
func (c *Cart) SetOpen(open bool) {
	c.mutate(false, func(t *Cart) bool {
		if t.open == open {
			return false
		}
		t.open = open
		return true
	})
}

func (c *Cart) Open()  { c.SetOpen(true) }
func (c *Cart) Close() { c.SetOpen(false) }

func (c *Cart) IsOpen() bool {
	t := c.acquire()
	defer t.mu.Unlock()
	return t.open
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []CartItem {
	t := c.acquire()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Item looks a line up by id.
func (c *Cart) Item(itemID string) (CartItem, bool) {
	t := c.acquire()
	defer t.mu.Unlock()
	for _, it := range t.items {
		if it.ID == itemID {
			return it, true
		}
	}
	return CartItem{}, false
}

// TotalItems is the sum of quantities, not the number of lines.
func (c *Cart) TotalItems() int {
	return TotalItems(c.Items())
}

// TotalPrice is Σ unit price × quantity, excluding tax and shipping.
func (c *Cart) TotalPrice() decimal.Decimal {
	return TotalPrice(c.Items())
}

// Summary returns items and derived totals in one consistent snapshot.
func (c *Cart) Summary() CartSummary {
	t := c.acquire()
	items, open := t.snapshotLocked(), t.open
	t.mu.Unlock()
	return Summarize(items, open)
}

// Subscribe registers fn to run after every change; the result unsubscribes.
func (c *Cart) Subscribe(fn func(CartState)) func() {
	t := c.acquire()
	defer t.mu.Unlock()
	return t.listeners.add(fn)
}

// acquire locks and returns the live cart, following evictions.
func (c *Cart) acquire() *Cart {
	t := c
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

// retire hands the cart over to successor. A save in flight completes first,
// so a successor loading from storage sees the final record.
func (c *Cart) retire(successor func() *Cart) {
	c.mu.Lock()
	c.saveMu.Lock()
	c.successor = successor
	c.saveMu.Unlock()
	c.mu.Unlock()
}

// mutate applies fn to the live cart under its lock. When fn reports a change
// the item list is persisted (if persist is set) and subscribers are notified
// outside the lock.
func (c *Cart) mutate(persist bool, fn func(t *Cart) bool) {
	t := c.acquire()
	if !fn(t) {
		t.mu.Unlock()
		return
	}
	state := CartState{Items: t.snapshotLocked(), IsOpen: t.open}
	if !persist {
		t.mu.Unlock()
		t.listeners.notify(state)
		return
	}

	t.saveMu.Lock()
	t.mu.Unlock()
	saveItems(t.persister, state.Items)
	t.saveMu.Unlock()

	t.listeners.notify(state)
}

func (c *Cart) snapshotLocked() []CartItem {
	out := make([]CartItem, len(c.items))
	copy(out, c.items)
	return out
}
