package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/ayurmart/storefront/internal/models"
	"github.com/ayurmart/storefront/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProduct(id int64, price int64) models.Product {
	return models.Product{
		ID:           id,
		Slug:         fmt.Sprintf("product-%d", id),
		SKU:          fmt.Sprintf("SKU-%d", id),
		Name:         fmt.Sprintf("Product %d", id),
		BasePrice:    decimal.NewFromInt(price),
		SellingPrice: decimal.NewFromInt(price),
	}
}

func newTestCart(t *testing.T) (*Cart, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	return NewCart(NewPersister(mem, "ayurveda-cart:test", nil)), mem
}

func TestCartAddSameProductTwiceMergesLine(t *testing.T) {
	cart, _ := newTestCart(t)
	p1 := testProduct(1, 1999)

	first := cart.AddItem(p1, 1, nil)
	second := cart.AddItem(p1, 1, nil)

	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.True(t, cart.TotalPrice().Equal(decimal.NewFromInt(3998)), cart.TotalPrice().String())
	assert.Equal(t, 2, cart.TotalItems())
}

func TestCartRepeatedAddsSumQuantities(t *testing.T) {
	cart, _ := newTestCart(t)
	p := testProduct(7, 250)
	variant := &models.ProductVariant{ID: 3, Name: "120 tablets"}

	quantities := []int{1, 4, 2, 7}
	want := 0
	for _, q := range quantities {
		cart.AddItem(p, q, variant)
		want += q
	}

	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, want, items[0].Quantity)
	assert.Equal(t, int64(3), items[0].VariantID())
	assert.Equal(t, "120 tablets", items[0].Variant.Name)
}

func TestCartVariantsAreSeparateLines(t *testing.T) {
	cart, _ := newTestCart(t)
	p := testProduct(1, 100)

	cart.AddItem(p, 1, nil)
	cart.AddItem(p, 1, &models.ProductVariant{ID: 10, Name: "250 ml"})
	cart.AddItem(p, 1, &models.ProductVariant{ID: 11, Name: "500 ml"})

	assert.Len(t, cart.Items(), 3)
	assert.Equal(t, 3, cart.TotalItems())
}

func TestCartAddNormalisesQuantity(t *testing.T) {
	cart, _ := newTestCart(t)
	line := cart.AddItem(testProduct(1, 10), 0, nil)
	assert.Equal(t, 1, line.Quantity)
	line = cart.AddItem(testProduct(1, 10), -5, nil)
	assert.Equal(t, 2, line.Quantity)
}

func TestCartUpdateQuantityToZeroEmptiesCart(t *testing.T) {
	cart, _ := newTestCart(t)
	line := cart.AddItem(testProduct(1, 1999), 2, nil)

	cart.UpdateQuantity(line.ID, 0)

	assert.Empty(t, cart.Items())
	assert.Equal(t, 0, cart.TotalItems())
	assert.True(t, cart.TotalPrice().IsZero())
}

func TestCartUpdateQuantityNonPositiveEqualsRemove(t *testing.T) {
	for _, q := range []int{0, -1, -100} {
		t.Run(fmt.Sprint(q), func(t *testing.T) {
			updated, _ := newTestCart(t)
			removed, _ := newTestCart(t)
			for _, c := range []*Cart{updated, removed} {
				c.newID = sequentialIDs()
				c.AddItem(testProduct(1, 10), 1, nil)
				c.AddItem(testProduct(2, 20), 3, nil)
			}

			updated.UpdateQuantity("line-1", q)
			removed.RemoveItem("line-1")

			assert.Equal(t, lineKeys(removed.Items()), lineKeys(updated.Items()))
			assert.Equal(t, removed.TotalItems(), updated.TotalItems())
		})
	}
}

func TestCartUpdateQuantityOverwrites(t *testing.T) {
	cart, _ := newTestCart(t)
	line := cart.AddItem(testProduct(1, 10), 2, nil)

	cart.UpdateQuantity(line.ID, 5)

	got, ok := cart.Item(line.ID)
	require.True(t, ok)
	assert.Equal(t, 5, got.Quantity)
}

func TestCartRemoveIsIdempotent(t *testing.T) {
	cart, _ := newTestCart(t)
	line := cart.AddItem(testProduct(1, 10), 1, nil)
	cart.AddItem(testProduct(2, 10), 1, nil)

	cart.RemoveItem(line.ID)
	cart.RemoveItem(line.ID)
	cart.RemoveItem("does-not-exist")

	assert.Len(t, cart.Items(), 1)
}

func TestCartTotalsMatchLineSums(t *testing.T) {
	cart, _ := newTestCart(t)
	override := decimal.RequireFromString("349.50")
	cart.AddItem(testProduct(1, 120), 3, nil)
	cart.AddItem(testProduct(2, 80), 1, &models.ProductVariant{ID: 5, SellingPrice: &override})
	line := cart.AddItem(testProduct(3, 45), 2, nil)
	cart.UpdateQuantity(line.ID, 4)

	wantItems := 0
	wantPrice := decimal.Zero
	for _, it := range cart.Items() {
		wantItems += it.Quantity
		wantPrice = wantPrice.Add(it.UnitPrice().Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	assert.Equal(t, wantItems, cart.TotalItems())
	assert.True(t, wantPrice.Equal(cart.TotalPrice()))
	// 3*120 + 349.50 + 4*45
	assert.Equal(t, "889.5", cart.TotalPrice().String())
}

func TestCartPersistenceRoundTripPreservesOrder(t *testing.T) {
	mem := storage.NewMemory()
	cart := NewCart(NewPersister(mem, "ayurveda-cart:s1", nil))
	cart.AddItem(testProduct(3, 30), 1, nil)
	cart.AddItem(testProduct(1, 10), 2, nil)
	cart.AddItem(testProduct(2, 20), 3, &models.ProductVariant{ID: 9, Name: "Pack of 2"})

	reloaded := NewCart(NewPersister(mem, "ayurveda-cart:s1", nil))

	assert.Equal(t, lineKeys(cart.Items()), lineKeys(reloaded.Items()))
	assert.True(t, cart.TotalPrice().Equal(reloaded.TotalPrice()))
	assert.Equal(t, "Pack of 2", reloaded.Items()[2].Variant.Name)
}

func TestCartPersistsItemsNotOpenFlag(t *testing.T) {
	cart, mem := newTestCart(t)
	cart.Toggle()
	_, err := mem.Get(context.Background(), "ayurveda-cart:test")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	cart.AddItem(testProduct(1, 10), 1, nil)
	data, err := mem.Get(context.Background(), "ayurveda-cart:test")
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "items")
	assert.NotContains(t, raw, "is_open")

	reloaded := NewCart(NewPersister(mem, "ayurveda-cart:test", nil))
	assert.False(t, reloaded.IsOpen())
	assert.True(t, cart.IsOpen())
}

func TestCartOpenClose(t *testing.T) {
	cart, _ := newTestCart(t)
	var notified int
	cart.Subscribe(func(CartState) { notified++ })

	cart.Open()
	cart.Open()
	assert.True(t, cart.IsOpen())
	cart.Close()
	assert.False(t, cart.IsOpen())
	assert.Equal(t, 2, notified)
}

func TestCartClearPersistsEmptyList(t *testing.T) {
	cart, mem := newTestCart(t)
	cart.AddItem(testProduct(1, 10), 1, nil)
	cart.Clear()

	reloaded := NewCart(NewPersister(mem, "ayurveda-cart:test", nil))
	assert.Empty(t, reloaded.Items())
}

func TestCartMalformedRecordFallsBackToEmpty(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":   "{{{",
		"wrong type": `{"items": "nope"}`,
	} {
		t.Run(name, func(t *testing.T) {
			mem := storage.NewMemory()
			require.NoError(t, mem.Set(context.Background(), "k", []byte(payload)))

			cart := NewCart(NewPersister(mem, "k", nil))
			assert.Empty(t, cart.Items())

			cart.AddItem(testProduct(1, 10), 1, nil)
			assert.Len(t, NewCart(NewPersister(mem, "k", nil)).Items(), 1)
		})
	}
}

func TestCartWithoutPersister(t *testing.T) {
	cart := NewCart(nil)
	cart.AddItem(testProduct(1, 10), 1, nil)
	assert.Equal(t, 1, cart.TotalItems())
}

func TestCartSubscribe(t *testing.T) {
	cart, _ := newTestCart(t)
	var seen []int
	unsubscribe := cart.Subscribe(func(s CartState) {
		seen = append(seen, TotalItems(s.Items))
	})

	line := cart.AddItem(testProduct(1, 10), 2, nil)
	cart.UpdateQuantity(line.ID, 2) // unchanged, no notification
	cart.RemoveItem("missing")      // no-op, no notification
	cart.AddItem(testProduct(2, 10), 1, nil)
	unsubscribe()
	unsubscribe()
	cart.Clear()

	assert.Equal(t, []int{2, 3}, seen)
}

func TestCartSnapshotStripsVariantList(t *testing.T) {
	cart, _ := newTestCart(t)
	p := testProduct(1, 10)
	p.Variants = []models.ProductVariant{{ID: 1}, {ID: 2}}

	line := cart.AddItem(p, 1, &p.Variants[1])
	assert.Nil(t, line.Product.Variants)
	assert.Equal(t, int64(2), line.VariantID())
	assert.Len(t, p.Variants, 2)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("line-%d", n)
	}
}

func lineKeys(items []CartItem) []string {
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = fmt.Sprintf("%s/%d/%d/%d", it.ID, it.Product.ID, it.VariantID(), it.Quantity)
	}
	return keys
}

func TestCartRemoveOrderedKeepsLaterChanges(t *testing.T) {
	cart, mem := newTestCart(t)
	a := cart.AddItem(testProduct(1, 10), 2, nil)
	b := cart.AddItem(testProduct(2, 20), 1, nil)
	ordered := cart.Items()

	// Changes made while the order is being placed.
	cart.AddItem(testProduct(1, 10), 1, nil)
	c := cart.AddItem(testProduct(3, 30), 4, nil)

	cart.RemoveOrdered(ordered)

	items := cart.Items()
	require.Len(t, items, 2)
	assert.Equal(t, a.ID, items[0].ID)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, c.ID, items[1].ID)
	_, ok := cart.Item(b.ID)
	assert.False(t, ok)

	reloaded := NewCart(NewPersister(mem, "ayurveda-cart:test", nil))
	assert.Equal(t, 5, reloaded.TotalItems())
}

func TestCartRemoveOrderedEmptiesUnchangedCart(t *testing.T) {
	cart, _ := newTestCart(t)
	cart.AddItem(testProduct(1, 10), 2, nil)
	cart.AddItem(testProduct(2, 20), 1, nil)

	cart.RemoveOrdered(cart.Items())

	assert.Empty(t, cart.Items())
}
