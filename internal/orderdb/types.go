package orderdb

import (
	"time"

	"github.com/imrishuroy/merchant-orderdesk/internal/orders"
)

// ItemRecord is one line item as stored in the orders table.
type ItemRecord struct {
	Name     string  `dynamodbav:"name"`
	Quantity int     `dynamodbav:"quantity"`
	Price    float64 `dynamodbav:"price"`
}

// OrderRecord represents the item stored in the Orders DynamoDB table.
type OrderRecord struct {
	OrderID         string       `dynamodbav:"order_id"`    // PK
	MerchantID      string       `dynamodbav:"merchant_id"` // GSI hash key
	Status          string       `dynamodbav:"status"`      // either vocabulary
	CustomerName    string       `dynamodbav:"customer_name,omitempty"`
	CustomerPhone   string       `dynamodbav:"customer_phone,omitempty"`
	CustomerAddress string       `dynamodbav:"customer_address,omitempty"`
	Items           []ItemRecord `dynamodbav:"items,omitempty"`
	TotalAmount     float64      `dynamodbav:"total_amount"`
	Notes           string       `dynamodbav:"notes,omitempty"`
	CreatedAt       string       `dynamodbav:"created_at"` // RFC3339
	UpdatedAt       string       `dynamodbav:"updated_at"`
}

// ProductRecord represents the item stored in the Products DynamoDB table.
type ProductRecord struct {
	ProductID  string  `dynamodbav:"product_id"` // PK
	MerchantID string  `dynamodbav:"merchant_id"`
	Name       string  `dynamodbav:"name"`
	Price      float64 `dynamodbav:"price"`
	Stock      int     `dynamodbav:"stock"`
	IsActive   bool    `dynamodbav:"is_active"`
	ImageURL   string  `dynamodbav:"image_url,omitempty"`
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (r OrderRecord) toOrder() orders.Order {
	status, _ := orders.NormalizeStatus(r.Status)
	items := make([]orders.Item, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, orders.Item{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
	}
	return orders.Order{
		ID:              r.OrderID,
		Status:          status,
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		CustomerAddress: r.CustomerAddress,
		Items:           items,
		TotalAmount:     r.TotalAmount,
		Notes:           r.Notes,
		CreatedAt:       parseTime(r.CreatedAt),
		UpdatedAt:       parseTime(r.UpdatedAt),
	}
}

func (r ProductRecord) toProduct() orders.Product {
	return orders.Product{
		ID:       r.ProductID,
		Name:     r.Name,
		Price:    r.Price,
		Stock:    r.Stock,
		IsActive: r.IsActive,
		ImageURL: r.ImageURL,
	}
}
