package orders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Upstream payloads spell the same field several ways (camelCase,
// snake_case, nested customer objects). Each list is tried in order.
var (
	idKeys       = []string{"id", "_id", "orderId", "order_id"}
	statusKeys   = []string{"status", "orderStatus", "order_status"}
	nameKeys     = []string{"customerName", "customer_name", "userName", "user_name"}
	phoneKeys    = []string{"customerPhone", "customer_phone", "phone"}
	addressKeys  = []string{"customerAddress", "customer_address", "deliveryAddress", "delivery_address", "address"}
	itemsKeys    = []string{"items", "orderItems", "order_items"}
	totalKeys    = []string{"totalAmount", "total_amount", "grandTotal", "grand_total", "total"}
	notesKeys    = []string{"notes", "note"}
	createdKeys  = []string{"createdAt", "created_at", "orderDate", "order_date"}
	updatedKeys  = []string{"updatedAt", "updated_at"}
	customerKeys = []string{"customer", "user"}

	custNameKeys    = []string{"fullName", "full_name", "name"}
	custPhoneKeys   = []string{"phone", "phoneNumber", "phone_number"}
	custAddressKeys = []string{"address"}

	itemNameKeys  = []string{"name", "productName", "product_name"}
	itemQtyKeys   = []string{"quantity", "qty"}
	itemPriceKeys = []string{"price", "unitPrice", "unit_price"}
	productKeys   = []string{"product"}

	productIDKeys     = []string{"id", "_id", "productId", "product_id"}
	productNameKeys   = []string{"name", "productName", "product_name"}
	productPriceKeys  = []string{"price"}
	productStockKeys  = []string{"stock", "stockQuantity", "stock_quantity", "quantity"}
	productActiveKeys = []string{"isActive", "is_active", "active"}
	productImageKeys  = []string{"imageUrl", "image_url", "image"}

	envelopeKeys = []string{"data", "orders", "products", "items", "result"}
)

type fields map[string]json.RawMessage

func (f fields) raw(keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok && !isNull(v) {
			return v, true
		}
	}
	return nil, false
}

func (f fields) str(keys []string) string {
	v, ok := f.raw(keys)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	// numeric ids
	return strings.Trim(string(v), `"`)
}

func (f fields) num(keys []string) float64 {
	v, ok := f.raw(keys)
	if !ok {
		return 0
	}
	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return n
		}
	}
	return 0
}

func (f fields) boolean(keys []string, def bool) bool {
	v, ok := f.raw(keys)
	if !ok {
		return def
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return def
}

func (f fields) timestamp(keys []string) time.Time {
	s := f.str(keys)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (f fields) object(keys []string) fields {
	v, ok := f.raw(keys)
	if !ok {
		return nil
	}
	var obj fields
	if err := json.Unmarshal(v, &obj); err != nil {
		return nil
	}
	return obj
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || string(bytes.TrimSpace(v)) == "null"
}

// unwrapList accepts either a bare JSON array or an object envelope holding one.
func unwrapList(body []byte) ([]fields, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if body[0] == '{' {
		var env fields
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		v, ok := env.raw(envelopeKeys)
		if !ok {
			return nil, fmt.Errorf("decode envelope: no list under %v", envelopeKeys)
		}
		body = v
	}
	var list []fields
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return list, nil
}

// DecodeOrders parses an upstream order list, normalizing field aliases and
// status vocabularies. Unknown statuses fall back to new.
func DecodeOrders(body []byte) ([]Order, error) {
	list, err := unwrapList(body)
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(list))
	for _, f := range list {
		out = append(out, decodeOrder(f))
	}
	return out, nil
}

func decodeOrder(f fields) Order {
	status, _ := NormalizeStatus(f.str(statusKeys))
	o := Order{
		ID:              f.str(idKeys),
		Status:          status,
		CustomerName:    f.str(nameKeys),
		CustomerPhone:   f.str(phoneKeys),
		CustomerAddress: f.str(addressKeys),
		TotalAmount:     f.num(totalKeys),
		Notes:           f.str(notesKeys),
		CreatedAt:       f.timestamp(createdKeys),
		UpdatedAt:       f.timestamp(updatedKeys),
	}
	if c := f.object(customerKeys); c != nil {
		if o.CustomerName == "" {
			o.CustomerName = c.str(custNameKeys)
		}
		if o.CustomerPhone == "" {
			o.CustomerPhone = c.str(custPhoneKeys)
		}
		if o.CustomerAddress == "" {
			o.CustomerAddress = c.str(custAddressKeys)
		}
	}
	o.Items = decodeItems(f)
	return o
}

func decodeItems(f fields) []Item {
	v, ok := f.raw(itemsKeys)
	if !ok {
		return []Item{}
	}
	var list []fields
	if err := json.Unmarshal(v, &list); err != nil {
		return []Item{}
	}
	items := make([]Item, 0, len(list))
	for _, it := range list {
		item := Item{
			Name:     it.str(itemNameKeys),
			Quantity: int(it.num(itemQtyKeys)),
			Price:    it.num(itemPriceKeys),
		}
		if p := it.object(productKeys); p != nil {
			if item.Name == "" {
				item.Name = p.str(productNameKeys)
			}
			if item.Price == 0 {
				item.Price = p.num(productPriceKeys)
			}
		}
		items = append(items, item)
	}
	return items
}

// DecodeProducts parses an upstream product list. A missing active flag means active.
func DecodeProducts(body []byte) ([]Product, error) {
	list, err := unwrapList(body)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(list))
	for _, f := range list {
		out = append(out, Product{
			ID:       f.str(productIDKeys),
			Name:     f.str(productNameKeys),
			Price:    f.num(productPriceKeys),
			Stock:    int(f.num(productStockKeys)),
			IsActive: f.boolean(productActiveKeys, true),
			ImageURL: f.str(productImageKeys),
		})
	}
	return out, nil
}
