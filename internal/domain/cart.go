package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is one line of the locally cached cart. Items are identified by
// ProductID for merging; ID only names the line.
type CartItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
	// Synced is set once the server has acknowledged the line.
	Synced bool `json:"synced"`
}

// NewItemID returns a time-ordered line identifier.
func NewItemID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Subtotal returns price times quantity.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the local cart snapshot for one session.
type Cart struct {
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FindItemIndex returns the index of the line for productID, or -1.
func (c *Cart) FindItemIndex(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Add merges item into the cart. An existing line for the same product has
// its quantity increased; otherwise item is appended under a fresh ID.
// The resulting line is returned.
func (c *Cart) Add(item CartItem) CartItem {
	if idx := c.FindItemIndex(item.ProductID); idx >= 0 {
		c.Items[idx].Quantity += item.Quantity
		c.Items[idx].Synced = false
		return c.Items[idx]
	}
	if item.ID == "" {
		item.ID = NewItemID()
	}
	item.Synced = false
	c.Items = append(c.Items, item)
	return item
}

// MarkSynced flags the line for productID as acknowledged by the server.
func (c *Cart) MarkSynced(productID string) bool {
	idx := c.FindItemIndex(productID)
	if idx < 0 {
		return false
	}
	c.Items[idx].Synced = true
	return true
}

// ItemCount returns the total quantity across all lines.
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// Total returns the sum of all line subtotals.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Reconcile merges the server cart into local. For a product present on both
// sides the server line wins (quantity and price). Server-only lines are
// taken as they are. Local-only lines that were never acknowledged are kept;
// acknowledged local-only lines were removed on the server and are dropped.
// Server lines come first, in server order, followed by the kept local lines.
func Reconcile(local, server []CartItem) []CartItem {
	localIdx := make(map[string]int, len(local))
	for i, item := range local {
		localIdx[item.ProductID] = i
	}

	merged := make([]CartItem, 0, len(local)+len(server))
	seen := make(map[string]bool, len(server))
	for _, s := range server {
		if seen[s.ProductID] {
			continue
		}
		seen[s.ProductID] = true

		line := s
		line.Synced = true
		if i, ok := localIdx[s.ProductID]; ok {
			line.ID = local[i].ID
			if line.Name == "" {
				line.Name = local[i].Name
			}
			if line.Image == "" {
				line.Image = local[i].Image
			}
		}
		if line.ID == "" {
			line.ID = NewItemID()
		}
		merged = append(merged, line)
	}

	for _, l := range local {
		if seen[l.ProductID] || l.Synced {
			continue
		}
		merged = append(merged, l)
	}
	return merged
}
