package validation

import (
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/merchant-orderdesk/internal/orders"
)

// New returns a configured validator with the status_filter tag registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// status_filter accepts the "all" sentinel or anything ParseStatus knows,
	// so both vocabularies work in the query string.
	if err := v.RegisterValidation("status_filter", statusFilter); err != nil {
		panic(err)
	}
	return v
}

func statusFilter(fl validatorv10.FieldLevel) bool {
	raw := strings.TrimSpace(fl.Field().String())
	if strings.EqualFold(raw, orders.FilterAll) {
		return true
	}
	_, ok := orders.ParseStatus(raw)
	return ok
}

// Filter resolves a validated query value to the form FilterByStatus expects.
func (q ListOrdersQuery) Filter() string {
	raw := strings.TrimSpace(q.Status)
	if raw == "" || strings.EqualFold(raw, orders.FilterAll) {
		return orders.FilterAll
	}
	s, _ := orders.ParseStatus(raw)
	return string(s)
}
