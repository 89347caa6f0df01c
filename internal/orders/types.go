package orders

import "time"

// Item is a single order line.
type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"` // positive
	Price    float64 `json:"price"`    // unit price, non-negative
}

// Order is one customer purchase tracked through fulfillment.
// Orders are created upstream; this service only reads them and changes Status.
type Order struct {
	ID              string    `json:"id"`
	Status          Status    `json:"status"`
	CustomerName    string    `json:"customerName,omitempty"`
	CustomerPhone   string    `json:"customerPhone,omitempty"`
	CustomerAddress string    `json:"customerAddress,omitempty"`
	Items           []Item    `json:"items"`
	TotalAmount     float64   `json:"totalAmount"` // trusted from upstream, not recomputed
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Product is only used by the dashboard low-stock widget.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
	IsActive bool    `json:"isActive"`
	ImageURL string  `json:"imageUrl,omitempty"`
}

// DefaultLowStockThreshold is the stock level at or below which an active product is flagged.
const DefaultLowStockThreshold = 10

// LowStock returns active products with stock <= threshold, in input order.
func LowStock(products []Product, threshold int) []Product {
	out := make([]Product, 0)
	for _, p := range products {
		if p.IsActive && p.Stock <= threshold {
			out = append(out, p)
		}
	}
	return out
}
