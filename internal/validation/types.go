package validation

// TransitionRequest is the payload for POST /orders/:id/transition
type TransitionRequest struct {
	Action string `json:"action" validate:"required,oneof=advance cancel"`
}

// ListOrdersQuery is the query string accepted by GET /orders
type ListOrdersQuery struct {
	Status string `form:"status" validate:"omitempty,status_filter"` // "all" or any known status spelling
}

// SoundRequest is the payload for PUT /settings/sound
type SoundRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}
