// Package cart holds the visitor's shopping cart. Transitions are pure; Store
// adds persistence on top.
package cart

import "github.com/shopspring/decimal"

// Product is the part of a catalog product the cart keeps.
type Product struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"imageUrl"`
	Size     string          `json:"size"`
}

// Item is one cart line. Quantity is always at least 1.
type Item struct {
	Product
	Quantity int `json:"quantity"`
}

// LineTotal is price times quantity.
func (it Item) LineTotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Cart is an ordered list of lines with at most one line per product id.
type Cart []Item

func (c Cart) index(id string) int {
	for i, it := range c {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// Add returns a cart with one more unit of p.
func (c Cart) Add(p Product) Cart {
	out := make(Cart, len(c), len(c)+1)
	copy(out, c)
	if i := out.index(p.ID); i >= 0 {
		out[i].Quantity++
		return out
	}
	return append(out, Item{Product: p, Quantity: 1})
}

// Remove returns a cart with one fewer unit of id. The line disappears when
// its last unit is removed; unknown ids leave the cart unchanged.
func (c Cart) Remove(id string) Cart {
	i := c.index(id)
	if i < 0 {
		return c.clone()
	}
	if c[i].Quantity > 1 {
		out := c.clone()
		out[i].Quantity--
		return out
	}
	out := make(Cart, 0, len(c)-1)
	out = append(out, c[:i]...)
	return append(out, c[i+1:]...)
}

// Clear returns an empty cart.
func (c Cart) Clear() Cart { return Cart{} }

func (c Cart) clone() Cart {
	out := make(Cart, len(c))
	copy(out, c)
	return out
}

// TotalItems sums the quantities.
func (c Cart) TotalItems() int {
	n := 0
	for _, it := range c {
		n += it.Quantity
	}
	return n
}

// TotalPrice sums the line totals.
func (c Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c {
		total = total.Add(it.LineTotal())
	}
	return total
}
